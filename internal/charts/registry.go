package charts

import (
	"sort"
	"sync"
)

// Registry binds chart names to live instances.
type Registry struct {
	mu     sync.Mutex
	charts map[string]Chart
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{charts: make(map[string]Chart)}
}

// Replace binds c to name, disposing whatever chart held the name before.
func (r *Registry) Replace(name string, c Chart) {
	r.mu.Lock()
	old := r.charts[name]
	r.charts[name] = c
	r.mu.Unlock()
	if old != nil && old != c {
		old.Dispose()
	}
}

// Remove disposes and unbinds name. Missing names are ignored.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	old := r.charts[name]
	delete(r.charts, name)
	r.mu.Unlock()
	if old != nil {
		old.Dispose()
	}
}

// Get returns the chart bound to name.
func (r *Registry) Get(name string) (Chart, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.charts[name]
	return c, ok
}

// Names returns the bound names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.charts))
	for n := range r.charts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DisposeAll disposes every bound chart and empties the registry.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	all := r.charts
	r.charts = make(map[string]Chart)
	r.mu.Unlock()
	for _, c := range all {
		c.Dispose()
	}
}
