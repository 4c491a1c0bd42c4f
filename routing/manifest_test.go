package routing

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/internal/hydrate"
)

func sampleRegistry(t *testing.T) *variants.Registry {
	t.Helper()
	registry, err := variants.NewRegistry(theme, heroA, product, banner)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return registry
}

func TestManifestRoundTripPreservesMatches(t *testing.T) {
	registry := sampleRegistry(t)
	for _, format := range []hydrate.Format{hydrate.FormatYAML, hydrate.FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteManifest(&buf, NewManifest(sampleTree(), nil), format); err != nil {
				t.Fatalf("write: %v", err)
			}
			root, err := LoadManifest(buf.Bytes(), format, registry.Lookup)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			for _, path := range []string{"/", "/foo", "/bar/1", "/shop/sale"} {
				want, _ := Match(sampleTree(), path)
				got, err := Match(root, path)
				if err != nil {
					t.Fatalf("%s: %v", path, err)
				}
				if diff := cmp.Diff(want.IDs(), got.IDs()); diff != "" {
					t.Fatalf("%s: ids differ (-want +got):\n%s", path, diff)
				}
			}
		})
	}
}

func TestManifestFromComponentReferences(t *testing.T) {
	appDir := filepath.FromSlash("/srv/app")
	root, err := FromPaths(appDir, appPaths(appDir, "layout.tsx", "foo/page.tsx"))
	if err != nil {
		t.Fatalf("from paths: %v", err)
	}
	refs := map[string][]string{
		filepath.Join(appDir, "layout.tsx"):      {"theme", "theme"},
		filepath.Join(appDir, "foo", "page.tsx"): {"hero"},
	}
	m := NewManifest(root, func(file string) []string { return refs[file] })
	if diff := cmp.Diff([]string{"theme"}, m.Root.Variants[SlotLayout]); diff != "" {
		t.Fatalf("unexpected layout refs:\n%s", diff)
	}
	tree, err := m.Tree(sampleRegistry(t).Lookup)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	set, err := Match(tree, "/foo")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if diff := cmp.Diff([]string{"hero", "theme"}, set.IDs()); diff != "" {
		t.Fatalf("unexpected ids:\n%s", diff)
	}
}

func TestLoadManifestRejectsUnknownVariants(t *testing.T) {
	doc := []byte(`
version: 1
root:
  segment: ""
  children:
    - segment: __PAGE__
      variants:
        page: [ghost]
`)
	_, err := LoadManifest(doc, hydrate.FormatYAML, sampleRegistry(t).Lookup)
	if !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestLoadManifestJSONC(t *testing.T) {
	doc := []byte(`{
  // generated
  "version": 1,
  "root": {
    "segment": "",
    "variants": {"layout": ["theme"]},
    "children": [{"segment": "__PAGE__"},],
  },
}`)
	root, err := LoadManifest(doc, hydrate.FormatJSONC, sampleRegistry(t).Lookup)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	set, err := Match(root, "/")
	if err != nil || !set.Has("theme") {
		t.Fatalf("expected theme, got %v err=%v", set.IDs(), err)
	}
}

func TestParseManifestRejectsNewerVersion(t *testing.T) {
	if _, err := ParseManifest([]byte("version: 99\nroot: {segment: \"\"}\n"), hydrate.FormatYAML); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestSaveAndReadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "manifest.yaml")
	if err := SaveManifest(path, NewManifest(sampleTree(), nil)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
	root, err := ReadManifest(path, sampleRegistry(t).Lookup)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	set, err := Match(root, "/foo")
	if err != nil || !set.Has("hero") {
		t.Fatalf("expected hero, got %v err=%v", set.IDs(), err)
	}
}
