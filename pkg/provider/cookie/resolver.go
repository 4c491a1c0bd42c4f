// Package cookie resolves variants by picking a value uniformly at random and
// remembering it in the visitor's assignment cookie.
package cookie

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/state"
)

// ProviderID labels descriptors backed by this resolver.
const ProviderID = "cookie-variant"

// DefaultMaxAge is how long persisted assignments live.
const DefaultMaxAge = 24 * time.Hour

// ProviderKey locates the request scoped Resolver.
var ProviderKey = variants.NewProviderKey[*Resolver](ProviderID)

// Option configures a Resolver.
type Option func(*Resolver)

// WithRef selects the persisted record. The zero Ref suits cookie stores.
func WithRef(ref state.Ref) Option {
	return func(r *Resolver) {
		r.ref = ref
	}
}

// WithRand replaces the random source. fn must return a value in [0, n).
func WithRand(fn func(n int) int) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.rand = fn
		}
	}
}

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithLogger sets the logger used for load failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Resolver hands out random values for one request. Assignments already in
// the store are returned unchanged; fresh picks are staged until
// PersistAssignments runs.
type Resolver struct {
	store  state.Store
	ref    state.Ref
	rand   func(n int) int
	maxAge time.Duration
	logger *slog.Logger

	loadOnce sync.Once
	existing variants.Assignment

	mu     sync.Mutex
	staged variants.Assignment
}

// NewResolver binds a resolver to store. Construct one per request.
func NewResolver(store state.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		rand:   rand.IntN,
		maxAge: DefaultMaxAge,
		logger: variants.Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Existing returns the assignments loaded from the store. The store is read
// at most once per resolver; failures are logged and read as empty.
func (r *Resolver) Existing(ctx context.Context) variants.Assignment {
	r.loadOnce.Do(func() {
		r.existing = variants.Assignment{}
		if r.store == nil {
			return
		}
		assigned, _, ok, err := r.store.Load(ctx, r.ref)
		if err != nil {
			r.logger.WarnContext(ctx, "cookie resolver: load assignments failed", "error", err)
			return
		}
		if ok {
			r.existing = assigned.Clone()
		}
	})
	return r.existing.Clone()
}

// Resolve returns the existing value for id, or picks one of values and
// stages it. Existing values outside values are replaced. Repeated calls for
// the same id return the staged value.
func (r *Resolver) Resolve(ctx context.Context, id string, values []string) (string, error) {
	if value, ok := r.Existing(ctx)[id]; ok && slices.Contains(values, value) {
		return value, nil
	}
	if len(values) == 0 {
		return "", fmt.Errorf("cookie resolver: variant %q has no values", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if value, ok := r.staged[id]; ok {
		return value, nil
	}
	value := values[r.rand(len(values))]
	if r.staged == nil {
		r.staged = variants.Assignment{}
	}
	r.staged[id] = value
	return value, nil
}

// NewAssignments returns the values picked by this resolver, nil when none.
// Only cookie backed picks are tracked here; the gateway persists the
// resolver's Result.New instead, which covers every provider.
func (r *Resolver) NewAssignments() variants.Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.staged) == 0 {
		return nil
	}
	return r.staged.Clone()
}

// NeedsPersist reports whether any value was picked.
func (r *Resolver) NeedsPersist() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staged) > 0
}

// PersistAssignments saves the existing assignments overlaid with the staged
// ones into sink. Nothing is written when no value was picked. A nil sink
// writes back to the resolver's own store.
//
// It serves callers that use the cookie resolver on its own. The gateway does
// not call it: it writes variants.Result.New through state.Merge, so values
// from experiment and rule providers land in the same record.
func (r *Resolver) PersistAssignments(ctx context.Context, sink state.Store) (state.Meta, error) {
	added := r.NewAssignments()
	if added == nil {
		return state.Meta{}, nil
	}
	if sink == nil {
		sink = r.store
	}
	if sink == nil {
		return state.Meta{}, fmt.Errorf("cookie resolver: no store to persist into")
	}
	merged := r.Existing(ctx).Merge(added)
	meta, err := sink.Save(ctx, r.ref, merged, state.Meta{MaxAge: r.maxAge, UpdatedAt: time.Now()})
	if err != nil {
		return state.Meta{}, fmt.Errorf("cookie resolver: persist: %w", err)
	}
	return meta, nil
}

// Provider registers a per scope resolver over store.
func Provider(store state.Store, opts ...Option) variants.ScopeOption {
	return variants.WithProviderFactory(ProviderKey, func() *Resolver {
		return NewResolver(store, opts...)
	})
}

// NewVariant declares a descriptor resolved by the request's cookie resolver.
func NewVariant(id string, values []string, opts ...variants.DescriptorOption) (*variants.Descriptor, error) {
	allowed := append([]string(nil), values...)
	resolve := func(ctx context.Context) (string, error) {
		r, err := variants.LookupProvider(ctx, ProviderKey)
		if err != nil {
			return "", err
		}
		return r.Resolve(ctx, id, allowed)
	}
	opts = append([]variants.DescriptorOption{
		variants.WithProvider(ProviderID),
		variants.WithResolver(resolve),
	}, opts...)
	return variants.NewDescriptor(id, values, opts...)
}
