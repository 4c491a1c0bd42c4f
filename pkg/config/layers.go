package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-variants/internal/hydrate"
)

// LoadLayers reads every document in paths and merges them before decoding,
// later documents overriding earlier ones. Nested sections merge key by key.
// Variant entries merge by id so an overlay can change a single variant, and
// entries with new ids are appended. The manifest path resolves against the
// first document's directory.
func LoadLayers(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no config files", ErrInvalid)
	}
	var merged map[string]any
	for _, path := range paths {
		format, err := hydrate.FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		doc, err := hydrate.Parse(data, format)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		merged = mergeDocument(doc, merged)
	}
	ctx := hydrate.Context{Source: strings.Join(paths, "+")}
	cfg, err := newDecoder().Decode(ctx, merged)
	if err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(paths[0])
	return &cfg, nil
}

// mergeDocument returns weak overlaid with strong.
func mergeDocument(strong, weak map[string]any) map[string]any {
	out := make(map[string]any, len(strong)+len(weak))
	for k, v := range weak {
		out[k] = v
	}
	for k, v := range strong {
		existing, ok := out[k]
		if !ok || v == nil {
			if v != nil {
				out[k] = v
			}
			continue
		}
		out[k] = mergeValue(k, v, existing)
	}
	return out
}

func mergeValue(key string, strong, weak any) any {
	switch s := strong.(type) {
	case map[string]any:
		if w, ok := weak.(map[string]any); ok {
			return mergeDocument(s, w)
		}
	case []any:
		if w, ok := weak.([]any); ok && key == "variants" {
			return mergeVariants(s, w)
		}
	}
	return strong
}

func mergeVariants(strong, weak []any) []any {
	out := make([]any, 0, len(weak)+len(strong))
	index := make(map[string]int, len(weak))
	for _, entry := range weak {
		if id, ok := variantKey(entry); ok {
			index[id] = len(out)
		}
		out = append(out, entry)
	}
	for _, entry := range strong {
		id, ok := variantKey(entry)
		if !ok {
			out = append(out, entry)
			continue
		}
		if i, exists := index[id]; exists {
			base, _ := out[i].(map[string]any)
			out[i] = mergeDocument(entry.(map[string]any), base)
			continue
		}
		index[id] = len(out)
		out = append(out, entry)
	}
	return out
}

func variantKey(entry any) (string, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["id"].(string)
	return id, ok && id != ""
}
