package routing

import (
	"maps"
	"slices"

	variants "github.com/goliatone/go-variants"
)

// Set is an unordered collection of descriptors deduplicated by id.
type Set struct {
	byID map[string]*variants.Descriptor
}

// NewSet builds a set from ds.
func NewSet(ds ...*variants.Descriptor) Set {
	var s Set
	s.Add(ds...)
	return s
}

// Add inserts ds. The first descriptor seen for an id wins.
func (s *Set) Add(ds ...*variants.Descriptor) {
	for _, d := range ds {
		if d == nil {
			continue
		}
		if s.byID == nil {
			s.byID = make(map[string]*variants.Descriptor)
		}
		if _, ok := s.byID[d.ID()]; !ok {
			s.byID[d.ID()] = d
		}
	}
}

// Len returns the number of descriptors.
func (s Set) Len() int {
	return len(s.byID)
}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// IDs returns the descriptor ids sorted lexicographically.
func (s Set) IDs() []string {
	return slices.Sorted(maps.Keys(s.byID))
}

// Descriptors returns the descriptors sorted by id.
func (s Set) Descriptors() []*variants.Descriptor {
	out := make([]*variants.Descriptor, 0, len(s.byID))
	for _, id := range s.IDs() {
		out = append(out, s.byID[id])
	}
	return out
}
