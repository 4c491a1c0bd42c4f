package state_test

import (
	"context"
	"errors"
	"testing"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/state"
)

func TestRefIdentifier(t *testing.T) {
	key, err := state.Ref{Visitor: "v-1"}.Identifier()
	if err != nil || key != "variants/v-1" {
		t.Fatalf("unexpected key %q err=%v", key, err)
	}
	key, err = state.Ref{Domain: "shop", Visitor: "v-1"}.Identifier()
	if err != nil || key != "shop/v-1" {
		t.Fatalf("unexpected key %q err=%v", key, err)
	}
	if _, err := (state.Ref{}).Identifier(); !errors.Is(err, state.ErrMissingVisitor) {
		t.Fatalf("expected ErrMissingVisitor, got %v", err)
	}
}

func TestMemoryStoreIsolatesVisitorsAndCopies(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	assigned := variants.Assignment{"a": "x"}
	if _, err := store.Save(ctx, state.Ref{Visitor: "one"}, assigned, state.Meta{Extra: map[string]string{"k": "v"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	assigned["a"] = "mutated"

	loaded, meta, ok, err := store.Load(ctx, state.Ref{Visitor: "one"})
	if err != nil || !ok || loaded["a"] != "x" {
		t.Fatalf("unexpected load %v ok=%v err=%v", loaded, ok, err)
	}
	meta.Extra["k"] = "changed"
	_, again, _, _ := store.Load(ctx, state.Ref{Visitor: "one"})
	if again.Extra["k"] != "v" {
		t.Fatalf("meta must be cloned on load")
	}

	if _, _, ok, _ := store.Load(ctx, state.Ref{Visitor: "two"}); ok {
		t.Fatalf("visitors must not share records")
	}
	if store.Len() != 1 {
		t.Fatalf("expected one record, got %d", store.Len())
	}
}

func TestMergeOverlaysExisting(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	ref := state.Ref{Visitor: "v"}

	merged, _, err := state.Merge(ctx, store, ref, variants.Assignment{"a": "x"}, state.Meta{})
	if err != nil || !merged.Equal(variants.Assignment{"a": "x"}) {
		t.Fatalf("unexpected first merge %v err=%v", merged, err)
	}
	merged, _, err = state.Merge(ctx, store, ref, variants.Assignment{"b": "y"}, state.Meta{})
	if err != nil || !merged.Equal(variants.Assignment{"a": "x", "b": "y"}) {
		t.Fatalf("expected existing values kept, got %v err=%v", merged, err)
	}
}

func TestMutatePropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := state.Mutate(context.Background(), state.NewMemoryStore(), state.Ref{Visitor: "v"}, state.Meta{}, func(variants.Assignment) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, _, err := state.Mutate(context.Background(), state.NewMemoryStore(), state.Ref{}, state.Meta{}, func(variants.Assignment) error { return nil }); !errors.Is(err, state.ErrMissingVisitor) {
		t.Fatalf("expected ErrMissingVisitor, got %v", err)
	}
}
