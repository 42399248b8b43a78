package rules

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the known rule descriptors keyed by ID.
type Registry struct {
	mu    sync.RWMutex
	descs map[string]*Descriptor
}

// NewRegistry creates a Registry holding descs.
func NewRegistry(descs ...*Descriptor) (*Registry, error) {
	r := &Registry{descs: make(map[string]*Descriptor, len(descs))}
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d. Rule IDs must be unique and non-empty.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("rules: descriptor without ID")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.descs[d.ID]; dup {
		return fmt.Errorf("rules: duplicate rule ID %q", d.ID)
	}
	r.descs[d.ID] = d
	return nil
}

// Descriptors returns all descriptors sorted by ID.
func (r *Registry) Descriptors() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
