// Package reqlocal provides a write-once value cell shared by the goroutines
// serving one request. Readers block until the value is set, bounded by a
// timeout that surfaces wiring mistakes as ErrDeadlock instead of a hang.
package reqlocal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// DefaultTimeout bounds Get when no timeout is configured.
const DefaultTimeout = 10 * time.Second

var (
	ErrDeadlock = errors.New("reqlocal: value was not set in time, possible deadlock")
	ErrConflict = errors.New("reqlocal: value already set to a different value")
)

// Option configures a Cell.
type Option[T any] func(*Cell[T])

// WithTimeout overrides DefaultTimeout. Non-positive durations are ignored.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(c *Cell[T]) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEqual sets the comparison used to accept repeated Set calls.
func WithEqual[T any](fn func(a, b T) bool) Option[T] {
	return func(c *Cell[T]) {
		if fn != nil {
			c.equal = fn
		}
	}
}

// Cell holds at most one value per request.
type Cell[T any] struct {
	mu      sync.Mutex
	set     bool
	value   T
	ready   chan struct{}
	timeout time.Duration
	equal   func(a, b T) bool
}

// New constructs an empty cell.
func New[T any](opts ...Option[T]) *Cell[T] {
	c := &Cell[T]{
		ready:   make(chan struct{}),
		timeout: DefaultTimeout,
		equal: func(a, b T) bool {
			return reflect.DeepEqual(a, b)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Set stores v and releases pending readers. Setting an equal value again is
// a no-op; a different value fails with ErrConflict.
func (c *Cell[T]) Set(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		if c.equal(c.value, v) {
			return nil
		}
		return ErrConflict
	}
	c.value = v
	c.set = true
	close(c.ready)
	return nil
}

// Get waits for Set. It fails with ErrDeadlock once the timeout elapses, or
// with the context error when ctx is done first.
func (c *Cell[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-c.ready:
		return c.value, nil
	default:
	}

	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-c.ready:
		return c.value, nil
	case <-timer.C:
		return zero, fmt.Errorf("%w: waited %s", ErrDeadlock, c.timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns the value without waiting.
func (c *Cell[T]) Peek() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.set
}

// Timeout returns the configured wait bound.
func (c *Cell[T]) Timeout() time.Duration {
	return c.timeout
}
