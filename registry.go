package variants

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Registry indexes descriptors by id. It is built once at startup and read
// concurrently afterwards.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

// NewRegistry constructs a registry guarding against duplicate ids.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]*Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register stores d under its id.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: descriptor is nil", ErrInvalidDescriptor)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.descriptors == nil {
		r.descriptors = make(map[string]*Descriptor)
	}
	if _, exists := r.descriptors[d.ID()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateVariant, d.ID())
	}
	r.descriptors[d.ID()] = d
	return nil
}

// Lookup returns the descriptor registered for id.
func (r *Registry) Lookup(id string) (*Descriptor, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[id]
	return d, ok
}

// All returns every descriptor sorted by id.
func (r *Registry) All() []*Descriptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]*Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	r.mu.RUnlock()
	SortDescriptors(out)
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}

// SortDescriptors orders ds by id in place.
func SortDescriptors(ds []*Descriptor) {
	slices.SortFunc(ds, func(a, b *Descriptor) int {
		return cmp.Compare(a.ID(), b.ID())
	})
}
