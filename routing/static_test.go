package routing

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	variants "github.com/goliatone/go-variants"
)

func TestStaticParamsProducesCartesianProduct(t *testing.T) {
	a := descriptor("a", "0", "1")
	b := descriptor("b", "0", "1")
	root := NewNode("")
	root.Ensure("foo").Page().Attach(SlotPage, a, b)

	tokens, err := StaticParams(root, "/foo")
	if err != nil {
		t.Fatalf("static params: %v", err)
	}
	want := []string{
		"__v-a.0..b.0",
		"__v-a.0..b.1",
		"__v-a.1..b.0",
		"__v-a.1..b.1",
	}
	if diff := cmp.Diff(want, tokens); diff != "" {
		t.Fatalf("unexpected tokens (-want +got):\n%s", diff)
	}

	seen := map[string]bool{}
	for _, token := range tokens {
		if seen[token] {
			t.Fatalf("duplicate token %s", token)
		}
		seen[token] = true
		decoded := variants.Decode(token)
		if len(decoded) != 2 {
			t.Fatalf("token %s decoded to %v", token, decoded)
		}
	}
}

func TestStaticParamsWithDynamicPattern(t *testing.T) {
	root := sampleTree()
	maps, err := StaticParamMaps(root, "/bar/[barId]")
	if err != nil {
		t.Fatalf("static params: %v", err)
	}
	if len(maps) != 8 {
		t.Fatalf("expected 2*2*2 combinations, got %d", len(maps))
	}
	for _, m := range maps {
		if _, ok := m[variants.ParamName]; !ok {
			t.Fatalf("expected %q key in %v", variants.ParamName, m)
		}
	}
}

func TestStaticParamsWithoutMatch(t *testing.T) {
	tokens, err := StaticParams(sampleTree(), "/missing")
	if err != nil {
		t.Fatalf("static params: %v", err)
	}
	if diff := cmp.Diff([]string{variants.TokenPrefix}, tokens); diff != "" {
		t.Fatalf("expected a single empty token:\n%s", diff)
	}
}

func TestPossibleAssignmentsOfEmptySet(t *testing.T) {
	got := PossibleAssignments(Set{})
	if len(got) != 1 || len(got[0]) != 0 {
		t.Fatalf("expected one empty assignment, got %v", got)
	}
}
