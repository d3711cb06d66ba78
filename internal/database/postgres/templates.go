package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/evoface/internal/database"
	"github.com/pgvector/pgvector-go"
)

const templateColumns = `employee_id, slot, embedding, mean, base_embedding, sample_count, last_updated`

// TemplateRepository is the PostgreSQL Identity Store with an optional in-memory
// HNSW index used to shortlist candidates.
type TemplateRepository struct {
	pool          *Pool
	hnswIndex     *database.TemplateIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewTemplateRepository creates a new PostgreSQL template repository.
func NewTemplateRepository(pool *Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// GetTemplates returns the templates of one employee ordered by slot.
func (r *TemplateRepository) GetTemplates(ctx context.Context, employeeID string) ([]database.EmployeeTemplate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM employee_templates WHERE employee_id = $1 ORDER BY slot`,
		employeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	return scanTemplates(rows)
}

// GetAllCandidates returns every employee's templates keyed by employee ID.
func (r *TemplateRepository) GetAllCandidates(ctx context.Context) (map[string][]database.EmployeeTemplate, error) {
	templates, err := r.allTemplates(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string][]database.EmployeeTemplate)
	for _, t := range templates {
		candidates[t.EmployeeID] = append(candidates[t.EmployeeID], t)
	}
	return candidates, nil
}

func (r *TemplateRepository) allTemplates(ctx context.Context) ([]database.EmployeeTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM employee_templates ORDER BY employee_id, slot`)
	if err != nil {
		return nil, fmt.Errorf("query all templates: %w", err)
	}
	defer rows.Close()

	return scanTemplates(rows)
}

// CommitTemplate upserts an evolved template. The registration embedding is only
// written when the row is first created.
func (r *TemplateRepository) CommitTemplate(ctx context.Context, t database.EmployeeTemplate) error {
	if t.SampleCount < 1 {
		return fmt.Errorf("commit template %s/%d: sample count must be at least 1", t.EmployeeID, t.Slot)
	}
	base := t.BaseEmbedding
	if len(base) == 0 {
		base = t.Embedding
	}
	mean := t.Mean
	if len(mean) == 0 {
		mean = t.Embedding
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO employee_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (employee_id, slot) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			mean = EXCLUDED.mean,
			sample_count = EXCLUDED.sample_count,
			last_updated = EXCLUDED.last_updated
	`,
		t.EmployeeID, t.Slot,
		pgvector.NewVector(t.Embedding), pgvector.NewVector(mean), pgvector.NewVector(base),
		t.SampleCount, t.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}

	r.indexUpsert(t)
	return nil
}

func scanTemplates(rows *sql.Rows) ([]database.EmployeeTemplate, error) {
	var templates []database.EmployeeTemplate
	for rows.Next() {
		var t database.EmployeeTemplate
		var emb, mean, base pgvector.Vector
		var lastUpdated time.Time
		if err := rows.Scan(&t.EmployeeID, &t.Slot, &emb, &mean, &base, &t.SampleCount, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.Embedding = emb.Slice()
		t.Mean = mean.Slice()
		t.BaseEmbedding = base.Slice()
		t.LastUpdated = lastUpdated
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// indexUpsert mirrors a committed template into the HNSW index when enabled.
func (r *TemplateRepository) indexUpsert(t database.EmployeeTemplate) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Upsert(t)
	}
}

// indexRemove drops an employee from the HNSW index when enabled.
func (r *TemplateRepository) indexRemove(employeeID string) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Remove(employeeID)
	}
}

// tryLoadTemplateIndex attempts to load the HNSW index from disk.
// Returns true if the cached graph matches the stored templates.
func (r *TemplateRepository) tryLoadTemplateIndex(indexPath string, templates []database.EmployeeTemplate) bool {
	metadata, err := database.LoadTemplateIndexMetadata(indexPath)
	if err != nil {
		fmt.Printf("Template index: metadata file error: %v (will rebuild)\n", err)
		return false
	}
	if metadata.TemplateCount != len(templates) {
		fmt.Printf("Template index: stale (db: count=%d, cached: count=%d) (will rebuild)\n",
			len(templates), metadata.TemplateCount)
		return false
	}

	index := database.NewTemplateIndex()
	if err := index.Load(indexPath, templates); err != nil {
		fmt.Printf("Template index: failed to load: %v (will rebuild)\n", err)
		return false
	}
	r.hnswIndex = index
	fmt.Printf("Template index: loaded from disk (fresh)\n")
	return true
}

// EnableHNSW loads or builds the in-memory HNSW index over all templates.
// If indexPath is provided, it will try to load from disk first and save after building.
func (r *TemplateRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	templates, err := r.allTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	if indexPath != "" && r.tryLoadTemplateIndex(indexPath, templates) {
		r.hnswEnabled = true
		return nil
	}

	r.hnswIndex = database.NewTemplateIndex()
	r.hnswIndex.SetPath(indexPath)
	r.hnswIndex.Build(templates)

	if indexPath != "" && len(templates) > 0 {
		if err := r.hnswIndex.Save(len(templates[0].Embedding)); err != nil {
			fmt.Printf("Warning: failed to save template HNSW index to disk: %v\n", err)
		}
	}

	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index
func (r *TemplateRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled
func (r *TemplateRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// Shortlist returns up to k employee IDs nearest to query according to the index.
func (r *TemplateRepository) Shortlist(query []float32, k int) ([]string, error) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled || r.hnswIndex == nil {
		return nil, errors.New("HNSW index not enabled")
	}
	return r.hnswIndex.Shortlist(query, k)
}

// RebuildIndex rebuilds the HNSW index from PostgreSQL data
func (r *TemplateRepository) RebuildIndex(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	if indexPath != "" {
		// Force a rebuild instead of reloading the cached graph.
		if err := database.RemoveTemplateIndexFiles(indexPath); err != nil {
			return err
		}
	}
	return r.EnableHNSW(ctx, indexPath)
}

// IndexCount returns the number of templates in the HNSW index
func (r *TemplateRepository) IndexCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// SaveIndex saves the current HNSW index to disk (if path configured)
func (r *TemplateRepository) SaveIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" || r.hnswIndex == nil {
		return nil
	}

	var dim int
	err := r.pool.QueryRow(context.Background(),
		"SELECT COALESCE(MAX(vector_dims(embedding)), 0) FROM employee_templates",
	).Scan(&dim)
	if err != nil {
		return fmt.Errorf("failed to get template dimension: %w", err)
	}

	if err := r.hnswIndex.Save(dim); err != nil {
		return fmt.Errorf("saving HNSW template index: %w", err)
	}
	return nil
}
