package biometric

import (
	"sort"
	"sync"

	"github.com/kozaktomas/evoface/internal/database"
)

// Arena is the in-memory copy of the Identity Store. Template slices are never
// mutated in place, so snapshots can be shared with concurrent readers.
type Arena struct {
	mu        sync.RWMutex
	templates map[string][]database.EmployeeTemplate
	locks     map[string]*sync.Mutex
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		templates: make(map[string][]database.EmployeeTemplate),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Load replaces the whole arena content.
func (a *Arena) Load(candidates map[string][]database.EmployeeTemplate) {
	templates := make(map[string][]database.EmployeeTemplate, len(candidates))
	for id, list := range candidates {
		templates[id] = cloneTemplates(list)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.templates = templates
}

// Set replaces the templates of one employee.
func (a *Arena) Set(employeeID string, list []database.EmployeeTemplate) {
	list = cloneTemplates(list)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.templates[employeeID] = list
}

// Remove drops an employee.
func (a *Arena) Remove(employeeID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.templates, employeeID)
}

// Snapshot returns the current candidates. The returned slices must not be modified.
func (a *Arena) Snapshot() map[string][]database.EmployeeTemplate {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string][]database.EmployeeTemplate, len(a.templates))
	for id, list := range a.templates {
		out[id] = list
	}
	return out
}

// Template returns a copy of one slot.
func (a *Arena) Template(employeeID string, slot int) (database.EmployeeTemplate, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, t := range a.templates[employeeID] {
		if t.Slot == slot {
			return t.Clone(), true
		}
	}
	return database.EmployeeTemplate{}, false
}

// Replace swaps in an updated slot, copying the employee's slice.
func (a *Arena) Replace(t database.EmployeeTemplate) {
	t = t.Clone()
	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.templates[t.EmployeeID]
	list := make([]database.EmployeeTemplate, 0, len(old)+1)
	replaced := false
	for _, cur := range old {
		if cur.Slot == t.Slot {
			list = append(list, t)
			replaced = true
			continue
		}
		list = append(list, cur)
	}
	if !replaced {
		list = append(list, t)
		sort.Slice(list, func(i, j int) bool { return list[i].Slot < list[j].Slot })
	}
	a.templates[t.EmployeeID] = list
}

// Len returns the number of employees.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.templates)
}

// Lock acquires the per-employee update lock and returns its release func.
func (a *Arena) Lock(employeeID string) func() {
	a.mu.Lock()
	l, ok := a.locks[employeeID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[employeeID] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func cloneTemplates(list []database.EmployeeTemplate) []database.EmployeeTemplate {
	out := make([]database.EmployeeTemplate, len(list))
	for i, t := range list {
		out[i] = t.Clone()
	}
	return out
}
