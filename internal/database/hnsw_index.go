package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// TemplateIndexMetadata stores metadata for validating a cached HNSW index.
type TemplateIndexMetadata struct {
	TemplateCount int       `json:"template_count"`
	Dim           int       `json:"dim"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
}

const templateIndexVersion = 1

// TemplateIndex wraps an HNSW graph over employee templates. It only produces
// shortlists of employees; exact similarity is always recomputed by the caller.
type TemplateIndex struct {
	graph *hnsw.Graph[string]
	slots map[string][]int // employee ID -> indexed slots
	mu    sync.RWMutex
	path  string
}

// NewTemplateIndex creates a new empty index.
func NewTemplateIndex() *TemplateIndex {
	return &TemplateIndex{
		slots: make(map[string][]int),
	}
}

func newTemplateGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

func templateKey(employeeID string, slot int) string {
	return employeeID + "#" + strconv.Itoa(slot)
}

func employeeFromKey(key string) string {
	if i := strings.LastIndexByte(key, '#'); i >= 0 {
		return key[:i]
	}
	return key
}

// Build replaces the index contents with the given templates.
func (h *TemplateIndex) Build(templates []EmployeeTemplate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.slots = make(map[string][]int)
	if len(templates) == 0 {
		h.graph = nil
		return
	}

	g := newTemplateGraph()
	for _, t := range templates {
		if len(t.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(templateKey(t.EmployeeID, t.Slot), t.Embedding))
		h.slots[t.EmployeeID] = append(h.slots[t.EmployeeID], t.Slot)
	}
	h.graph = g
}

// Upsert adds a template or replaces its vector after evolution.
func (h *TemplateIndex) Upsert(t EmployeeTemplate) {
	if len(t.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newTemplateGraph()
	}
	key := templateKey(t.EmployeeID, t.Slot)
	if _, ok := h.graph.Lookup(key); ok {
		h.graph.Delete(key)
	} else {
		h.slots[t.EmployeeID] = append(h.slots[t.EmployeeID], t.Slot)
	}
	h.graph.Add(hnsw.MakeNode(key, t.Embedding))
}

// Remove drops every template of an employee.
func (h *TemplateIndex) Remove(employeeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph != nil {
		for _, slot := range h.slots[employeeID] {
			h.graph.Delete(templateKey(employeeID, slot))
		}
	}
	delete(h.slots, employeeID)
}

// Shortlist returns up to k distinct employee IDs whose templates are nearest to query.
func (h *TemplateIndex) Shortlist(query []float32, k int) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if h.graph.Len() == 0 || k <= 0 {
		return nil, nil
	}

	neighbors := h.graph.Search(query, k*HNSWSearchMultiplier)
	seen := make(map[string]bool, k)
	ids := make([]string, 0, k)
	for _, n := range neighbors {
		id := employeeFromKey(n.Key)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		if len(ids) == k {
			break
		}
	}
	return ids, nil
}

// Count returns the number of indexed templates.
func (h *TemplateIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.slots {
		n += len(s)
	}
	return n
}

// SetPath sets the path for saving/loading the index.
func (h *TemplateIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the graph and its metadata next to it. No-op without a path.
func (h *TemplateIndex) Save(dim int) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".meta")
		return nil
	}

	f, err := os.Create(h.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	count := 0
	for _, s := range h.slots {
		count += len(s)
	}
	meta, err := json.Marshal(TemplateIndexMetadata{
		TemplateCount: count,
		Dim:           dim,
		BuildTime:     time.Now(),
		Version:       templateIndexVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(h.path+".meta", meta, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadTemplateIndexMetadata loads metadata from the .meta file next to path.
func LoadTemplateIndexMetadata(path string) (TemplateIndexMetadata, error) {
	var metadata TemplateIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load imports a previously saved graph. The slot map is rebuilt from templates,
// which must be the same set the graph was saved with.
func (h *TemplateIndex) Load(path string, templates []EmployeeTemplate) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	g := newTemplateGraph()
	if err := g.Import(f); err != nil {
		return fmt.Errorf("failed to import HNSW index: %w", err)
	}

	h.graph = g
	h.slots = make(map[string][]int)
	for _, t := range templates {
		h.slots[t.EmployeeID] = append(h.slots[t.EmployeeID], t.Slot)
	}
	return nil
}

// RemoveTemplateIndexFiles deletes a persisted graph and its metadata.
func RemoveTemplateIndexFiles(path string) error {
	for _, p := range []string{path, path + ".meta"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}
