package variants

import (
	"encoding/json"
)

// Source identifies where a resolved value came from.
type Source string

const (
	// SourcePersisted marks a value reused from a previous request.
	SourcePersisted Source = "persisted"
	// SourceProvider marks a value produced by the descriptor's resolver.
	SourceProvider Source = "provider"
	// SourceFallback marks a fallback used after the resolver failed.
	SourceFallback Source = "fallback"
)

// Trace captures how each applicable variant obtained its value during one
// resolution.
type Trace struct {
	Token   string       `json:"token,omitempty"`
	Entries []Provenance `json:"entries"`
}

// Provenance details a single variant resolution.
type Provenance struct {
	VariantID string `json:"variant_id"`
	Value     string `json:"value"`
	Source    Source `json:"source"`
	Provider  string `json:"provider,omitempty"`
}

// Lookup returns the provenance recorded for id.
func (t Trace) Lookup(id string) (Provenance, bool) {
	for _, entry := range t.Entries {
		if entry.VariantID == id {
			return entry, true
		}
	}
	return Provenance{}, false
}

// ToJSON serialises the trace into JSON for logging or debug endpoints.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
