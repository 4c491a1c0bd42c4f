package variants

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/goliatone/go-variants/pkg/reqlocal"
)

// ProviderKey names a request scoped provider and carries its Go type.
type ProviderKey[T any] struct {
	id string
}

// NewProviderKey declares a provider id bound to type T.
func NewProviderKey[T any](id string) ProviderKey[T] {
	return ProviderKey[T]{id: id}
}

// ID returns the provider id.
func (k ProviderKey[T]) ID() string {
	return k.id
}

type providerSlot struct {
	once    sync.Once
	factory func() any
	value   any
}

func (s *providerSlot) get() any {
	s.once.Do(func() {
		s.value = s.factory()
	})
	return s.value
}

// Scope holds the state owned by one request: provider instances, the
// assignment broadcast to renderers and memoised token decodes. A Scope must
// not be shared between requests.
type Scope struct {
	providers map[string]*providerSlot
	assigned  *reqlocal.Cell[Assignment]
	timeout   time.Duration

	decodeMu sync.Mutex
	decoded  map[string]Assignment
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithProviderFactory registers factory under key. The factory runs at most
// once per scope, on first lookup.
func WithProviderFactory[T any](key ProviderKey[T], factory func() T) ScopeOption {
	return func(s *Scope) {
		if factory == nil {
			return
		}
		s.providers[key.id] = &providerSlot{factory: func() any { return factory() }}
	}
}

// WithProviderInstance registers an already constructed provider under key.
func WithProviderInstance[T any](key ProviderKey[T], value T) ScopeOption {
	return WithProviderFactory(key, func() T { return value })
}

// WithDeadlockTimeout bounds how long Assigned waits for ProvideToken.
func WithDeadlockTimeout(d time.Duration) ScopeOption {
	return func(s *Scope) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewScope constructs the state for one request.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{
		providers: make(map[string]*providerSlot),
		timeout:   reqlocal.DefaultTimeout,
		decoded:   make(map[string]Assignment),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.assigned = reqlocal.New(
		reqlocal.WithTimeout[Assignment](s.timeout),
		reqlocal.WithEqual(func(a, b Assignment) bool { return a.Equal(b) }),
	)
	return s
}

// Providers lists the registered provider ids.
func (s *Scope) Providers() []string {
	return slices.Sorted(maps.Keys(s.providers))
}

func (s *Scope) decode(token string) Assignment {
	s.decodeMu.Lock()
	defer s.decodeMu.Unlock()
	if cached, ok := s.decoded[token]; ok {
		return cached
	}
	decoded := Decode(token)
	s.decoded[token] = decoded
	return decoded
}

type scopeContextKey struct{}

// ContextWithScope binds s to ctx.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// ScopeFromContext returns the scope bound to ctx.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return s, ok && s != nil
}

// LookupProvider returns the request scoped provider registered under key.
func LookupProvider[T any](ctx context.Context, key ProviderKey[T]) (T, error) {
	var zero T
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return zero, ErrNoScope
	}
	slot, ok := s.providers[key.id]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrMissingProvider, key.id)
	}
	value, ok := slot.get().(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T", ErrProviderType, key.id, slot.get())
	}
	return value, nil
}
