package variants

import (
	"maps"
	"slices"
)

// Assignment maps variant ids to the value assigned for a visitor.
type Assignment map[string]string

// Clone returns a copy of the assignment. A nil assignment clones to an empty
// one.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	maps.Copy(out, a)
	return out
}

// Merge returns a new assignment holding a overlaid with other.
func (a Assignment) Merge(other Assignment) Assignment {
	out := a.Clone()
	maps.Copy(out, other)
	return out
}

// Pick projects the assignment onto ids. Ids not present are skipped.
func (a Assignment) Pick(ids ...string) Assignment {
	out := make(Assignment, len(ids))
	for _, id := range ids {
		if value, ok := a[id]; ok {
			out[id] = value
		}
	}
	return out
}

// Has reports whether id carries a value.
func (a Assignment) Has(id string) bool {
	_, ok := a[id]
	return ok
}

// Equal reports whether both assignments hold the same pairs.
func (a Assignment) Equal(other Assignment) bool {
	return maps.Equal(a, other)
}

// IDs returns the assigned ids in lexicographic order.
func (a Assignment) IDs() []string {
	return slices.Sorted(maps.Keys(a))
}
