package state

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	variants "github.com/goliatone/go-variants"
)

// DefaultDomain namespaces assignment records.
const DefaultDomain = "variants"

var (
	ErrMissingVisitor = errors.New("state: visitor id is required")
	ErrMalformed      = errors.New("state: malformed assignment payload")
	ErrNoWriter       = errors.New("state: response writer is required to save")
)

// Ref identifies the persisted assignment of one visitor.
type Ref struct {
	Domain  string
	Visitor string
}

// Identifier returns the canonical key for ref.
func (r Ref) Identifier() (string, error) {
	if r.Visitor == "" {
		return "", ErrMissingVisitor
	}
	domain := r.Domain
	if domain == "" {
		domain = DefaultDomain
	}
	return fmt.Sprintf("%s/%s", domain, r.Visitor), nil
}

// Meta is storage-owned metadata attached to a saved assignment.
type Meta struct {
	MaxAge    time.Duration     `json:"max_age,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Store loads and saves one assignment map for one Ref.
type Store interface {
	Load(ctx context.Context, ref Ref) (assigned variants.Assignment, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, assigned variants.Assignment, meta Meta) (Meta, error)
}

// Mutator edits an assignment in place before it is saved.
type Mutator func(variants.Assignment) error

// Mutate loads the assignment for ref, applies fn and saves the result. A
// missing record starts from an empty assignment.
func Mutate(ctx context.Context, store Store, ref Ref, meta Meta, fn Mutator) (variants.Assignment, Meta, error) {
	if store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return nil, Meta{}, fmt.Errorf("state: mutator is required")
	}

	assigned, loadedMeta, ok, err := store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("state: load %q: %w", ref.Visitor, err)
	}
	if !ok {
		assigned = variants.Assignment{}
		loadedMeta = Meta{}
	}
	assigned = assigned.Clone()

	if err := fn(assigned); err != nil {
		return nil, loadedMeta, err
	}

	saved, err := store.Save(ctx, ref, assigned, mergeMeta(loadedMeta, meta))
	if err != nil {
		return nil, loadedMeta, fmt.Errorf("state: save %q: %w", ref.Visitor, err)
	}
	return assigned, saved, nil
}

// Merge saves existing overlaid with added.
func Merge(ctx context.Context, store Store, ref Ref, added variants.Assignment, meta Meta) (variants.Assignment, Meta, error) {
	return Mutate(ctx, store, ref, meta, func(assigned variants.Assignment) error {
		maps.Copy(assigned, added)
		return nil
	})
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.MaxAge != 0 {
		out.MaxAge = override.MaxAge
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	out.Extra = maps.Clone(meta.Extra)
	return out
}
