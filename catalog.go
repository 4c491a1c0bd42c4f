package variants

// CatalogEntry describes a descriptor in a JSON friendly shape.
type CatalogEntry struct {
	ID          string   `json:"id"`
	Values      []string `json:"values"`
	Fallback    string   `json:"fallback,omitempty"`
	HasFallback bool     `json:"has_fallback"`
	Provider    string   `json:"provider,omitempty"`
	Assigned    string   `json:"assigned,omitempty"`
}

// Catalog describes ds sorted by id. When assigned is non-nil each entry
// carries the value assigned for the current request.
func Catalog(assigned Assignment, ds ...*Descriptor) []CatalogEntry {
	sorted := make([]*Descriptor, 0, len(ds))
	for _, d := range ds {
		if d != nil {
			sorted = append(sorted, d)
		}
	}
	SortDescriptors(sorted)

	entries := make([]CatalogEntry, 0, len(sorted))
	for _, d := range sorted {
		fallback, hasFallback := d.Fallback()
		entries = append(entries, CatalogEntry{
			ID:          d.ID(),
			Values:      d.Values(),
			Fallback:    fallback,
			HasFallback: hasFallback,
			Provider:    d.Provider(),
			Assigned:    assigned[d.ID()],
		})
	}
	return entries
}
