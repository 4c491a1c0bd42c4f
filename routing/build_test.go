package routing

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func appPaths(appDir string, rel ...string) []string {
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		out = append(out, filepath.Join(appDir, filepath.FromSlash(r)))
	}
	return out
}

func TestFromPathsBuildsSlotsAndLeaves(t *testing.T) {
	appDir := filepath.FromSlash("/srv/app")
	root, err := FromPaths(appDir, appPaths(appDir,
		"layout.tsx",
		"page.tsx",
		"foo/page.html",
		"bar/[barId]/template.tsx",
		"bar/[barId]/page.tsx",
		"bar/[barId]/not-found.tsx",
		"docs/default.gohtml",
	))
	if err != nil {
		t.Fatalf("from paths: %v", err)
	}

	if got := root.Components[SlotLayout]; got != filepath.Join(appDir, "layout.tsx") {
		t.Fatalf("unexpected root layout %q", got)
	}
	if _, ok := root.Child(PageSegment); !ok {
		t.Fatalf("expected root page leaf")
	}

	bar, ok := root.Child("bar")
	if !ok {
		t.Fatalf("expected bar node")
	}
	barID, ok := bar.Child("[barId]")
	if !ok || barID.Kind != Dynamic || barID.Param != "barId" {
		t.Fatalf("expected dynamic [barId] node, got %+v", barID)
	}
	wantSlots := map[Slot]string{
		SlotTemplate: filepath.Join(appDir, "bar", "[barId]", "template.tsx"),
		SlotNotFound: filepath.Join(appDir, "bar", "[barId]", "not-found.tsx"),
	}
	if diff := cmp.Diff(wantSlots, barID.Components); diff != "" {
		t.Fatalf("unexpected slots (-want +got):\n%s", diff)
	}

	docs, _ := root.Child("docs")
	leaf, ok := docs.Child(DefaultSegment)
	if !ok || leaf.Components[SlotDefault] == "" {
		t.Fatalf("expected default leaf under docs")
	}

	components := Components(root)
	if len(components) != 7 {
		t.Fatalf("expected 7 components, got %d", len(components))
	}
}

func TestFromPathsRejectsUnsupportedLayouts(t *testing.T) {
	appDir := filepath.FromSlash("/srv/app")
	cases := []struct {
		name string
		path string
		want error
	}{
		{"parallel", "@modal/page.tsx", ErrNotImplemented},
		{"intercepting", "feed/(.)photo/page.tsx", ErrNotImplemented},
		{"intercepting-parent", "feed/(..)(..)photo/page.tsx", ErrNotImplemented},
		{"unexpected", "bar/uses-variant.tsx", ErrUnexpectedFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromPaths(appDir, appPaths(appDir, "page.tsx", tc.path))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := FromPaths(appDir, []string{filepath.FromSlash("/elsewhere/page.tsx")}); err == nil {
		t.Fatalf("expected error for path outside app dir")
	}
}

func TestComponentSlot(t *testing.T) {
	cases := map[string]Slot{
		"layout.tsx":    SlotLayout,
		"not-found.js":  SlotNotFound,
		"page.gohtml":   SlotPage,
		"template.tmpl": SlotTemplate,
	}
	for name, want := range cases {
		got, ok := ComponentSlot(name)
		if !ok || got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
	for _, name := range []string{"page.go", "widget.tsx", "loading.tsx"} {
		if _, ok := ComponentSlot(name); ok {
			t.Fatalf("%s should not be a component", name)
		}
	}
}
