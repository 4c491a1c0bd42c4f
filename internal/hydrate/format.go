package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format names a document syntax.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
)

var ErrUnknownFormat = errors.New("hydrate: unknown document format")

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Parse reads data into a generic document. JSON input is accepted with
// comments and trailing commas. An empty document parses to an empty map.
func Parse(data []byte, format Format) (map[string]any, error) {
	out := map[string]any{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, err
		}
	case FormatJSON, FormatJSONC:
		stripped := jsonc.ToJSON(data)
		if len(strings.TrimSpace(string(stripped))) == 0 {
			return out, nil
		}
		if err := json.Unmarshal(stripped, &out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
