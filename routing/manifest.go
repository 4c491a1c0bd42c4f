package routing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/internal/hydrate"
	"gopkg.in/yaml.v3"
)

// ManifestVersion is the manifest schema written by WriteManifest.
const ManifestVersion = 1

// ErrUnknownVariant reports a manifest reference to an undeclared variant.
var ErrUnknownVariant = errors.New("routing: manifest references unknown variant")

// Manifest is the serialised route tree with variant ids per slot.
type Manifest struct {
	Version int          `json:"version" yaml:"version"`
	Root    ManifestNode `json:"root" yaml:"root"`
}

// ManifestNode is one node of a Manifest.
type ManifestNode struct {
	Segment    string            `json:"segment" yaml:"segment"`
	Components map[Slot]string   `json:"components,omitempty" yaml:"components,omitempty"`
	Variants   map[Slot][]string `json:"variants,omitempty" yaml:"variants,omitempty"`
	Children   []ManifestNode    `json:"children,omitempty" yaml:"children,omitempty"`
}

// Lookup resolves a variant id to its descriptor.
type Lookup func(id string) (*variants.Descriptor, bool)

// NewManifest serialises root. refs reports the variant ids referenced by a
// component file; a nil refs uses the descriptors attached to each node.
func NewManifest(root *Node, refs func(component string) []string) Manifest {
	return Manifest{Version: ManifestVersion, Root: manifestNode(root, refs)}
}

func manifestNode(n *Node, refs func(string) []string) ManifestNode {
	out := ManifestNode{Segment: n.Segment}
	for _, slot := range Slots {
		file, hasFile := n.Components[slot]
		if hasFile {
			if out.Components == nil {
				out.Components = make(map[Slot]string)
			}
			out.Components[slot] = file
		}
		var ids []string
		switch {
		case refs != nil && hasFile:
			ids = slices.Sorted(slices.Values(refs(file)))
			ids = slices.Compact(ids)
		case refs == nil:
			for _, d := range n.Variants[slot] {
				ids = append(ids, d.ID())
			}
		}
		if len(ids) > 0 {
			if out.Variants == nil {
				out.Variants = make(map[Slot][]string)
			}
			out.Variants[slot] = ids
		}
	}
	for _, child := range n.Children {
		out.Children = append(out.Children, manifestNode(child, refs))
	}
	return out
}

// Tree rebuilds the route tree, attaching the descriptors found by lookup.
func (m Manifest) Tree(lookup Lookup) (*Node, error) {
	return treeNode(m.Root, lookup)
}

func treeNode(m ManifestNode, lookup Lookup) (*Node, error) {
	n := NewNode(m.Segment)
	for slot, file := range m.Components {
		n.SetComponent(slot, file)
	}
	for _, slot := range Slots {
		for _, id := range m.Variants[slot] {
			if lookup == nil {
				return nil, fmt.Errorf("%w: %q (no lookup)", ErrUnknownVariant, id)
			}
			d, ok := lookup(id)
			if !ok {
				return nil, fmt.Errorf("%w: %q on %s of %q", ErrUnknownVariant, id, slot, m.Segment)
			}
			n.Attach(slot, d)
		}
	}
	for _, child := range m.Children {
		c, err := treeNode(child, lookup)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

// ParseManifest decodes a manifest document.
func ParseManifest(data []byte, format hydrate.Format) (Manifest, error) {
	decoder := hydrate.NewDecoder(hydrate.WithDisallowUnknownFields[Manifest]())
	m, err := decoder.DecodeBytes(hydrate.Context{Source: "manifest"}, data, format)
	if err != nil {
		return Manifest{}, err
	}
	if m.Version > ManifestVersion {
		return Manifest{}, fmt.Errorf("routing: manifest version %d is newer than %d", m.Version, ManifestVersion)
	}
	return m, nil
}

// LoadManifest decodes a manifest and rebuilds its route tree.
func LoadManifest(data []byte, format hydrate.Format, lookup Lookup) (*Node, error) {
	m, err := ParseManifest(data, format)
	if err != nil {
		return nil, err
	}
	return m.Tree(lookup)
}

// ReadManifest loads the manifest at path. The format follows the file
// extension.
func ReadManifest(path string, lookup Lookup) (*Node, error) {
	format, err := hydrate.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routing: reading %s: %w", path, err)
	}
	return LoadManifest(data, format, lookup)
}

// WriteManifest encodes m in format.
func WriteManifest(w io.Writer, m Manifest, format hydrate.Format) error {
	switch format {
	case hydrate.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("routing: encode manifest: %w", err)
		}
		return enc.Close()
	case hydrate.FormatJSON, hydrate.FormatJSONC:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("routing: encode manifest: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	default:
		return fmt.Errorf("%w: %q", hydrate.ErrUnknownFormat, format)
	}
}

// SaveManifest writes m to path in the format of its extension.
func SaveManifest(path string, m Manifest) error {
	format, err := hydrate.FormatFromPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if err := WriteManifest(f, m, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
