package variants

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// ResolveFunc produces a value for a variant that has not been assigned yet.
type ResolveFunc func(ctx context.Context) (string, error)

// Descriptor declares a variant: its id, the closed set of values it may take,
// an optional fallback and the strategy used to resolve a fresh value.
// Descriptors are immutable once constructed.
type Descriptor struct {
	id          string
	values      []string
	fallback    string
	hasFallback bool
	provider    string
	resolve     ResolveFunc
}

// DescriptorOption configures a Descriptor during construction.
type DescriptorOption func(*Descriptor)

// WithFallback sets the value used when resolution fails.
func WithFallback(value string) DescriptorOption {
	return func(d *Descriptor) {
		d.fallback = value
		d.hasFallback = true
	}
}

// WithResolver sets the resolution strategy.
func WithResolver(fn ResolveFunc) DescriptorOption {
	return func(d *Descriptor) {
		d.resolve = fn
	}
}

// WithProvider labels the descriptor with the id of the provider backing it.
func WithProvider(id string) DescriptorOption {
	return func(d *Descriptor) {
		d.provider = id
	}
}

// NewDescriptor validates and constructs a descriptor.
func NewDescriptor(id string, values []string, opts ...DescriptorOption) (*Descriptor, error) {
	d := &Descriptor{
		id:     id,
		values: slices.Clone(values),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustDescriptor is NewDescriptor for package level declarations. It panics on
// invalid input.
func MustDescriptor(id string, values []string, opts ...DescriptorOption) *Descriptor {
	d, err := NewDescriptor(id, values, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) validate() error {
	if d.id == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidDescriptor)
	}
	if len(d.values) == 0 {
		return fmt.Errorf("%w: %q declares no values", ErrInvalidDescriptor, d.id)
	}
	seen := make(map[string]struct{}, len(d.values))
	for _, value := range d.values {
		if value == "" {
			return fmt.Errorf("%w: %q declares an empty value", ErrInvalidDescriptor, d.id)
		}
		if _, dup := seen[value]; dup {
			return fmt.Errorf("%w: %q declares %q twice", ErrInvalidDescriptor, d.id, value)
		}
		seen[value] = struct{}{}
	}
	if d.hasFallback && !d.Allows(d.fallback) {
		return fmt.Errorf("%w: fallback %q of %q is not an allowed value", ErrInvalidDescriptor, d.fallback, d.id)
	}
	return nil
}

// ID returns the variant id.
func (d *Descriptor) ID() string {
	return d.id
}

// Values returns a copy of the allowed values in declaration order.
func (d *Descriptor) Values() []string {
	return slices.Clone(d.values)
}

// Fallback returns the fallback value and whether one is configured.
func (d *Descriptor) Fallback() (string, bool) {
	return d.fallback, d.hasFallback
}

// Provider returns the provider label, empty for ad hoc resolvers.
func (d *Descriptor) Provider() string {
	return d.provider
}

// Allows reports whether value is one of the declared values.
func (d *Descriptor) Allows(value string) bool {
	return slices.Contains(d.values, value)
}

// Resolve runs the resolution strategy. Failures fall back to the configured
// fallback after logging; without a fallback they surface as *ResolutionError.
func (d *Descriptor) Resolve(ctx context.Context) (string, error) {
	value, _, err := d.resolveValue(ctx, Logger())
	return value, err
}

func (d *Descriptor) resolveValue(ctx context.Context, logger *slog.Logger) (string, bool, error) {
	value, err := d.callResolve(ctx)
	if err == nil {
		return value, false, nil
	}
	if d.hasFallback {
		logger.ErrorContext(ctx, "variants: error resolving variant, using fallback value",
			"variant", d.id,
			"fallback", d.fallback,
			"error", err,
		)
		return d.fallback, true, nil
	}
	logger.ErrorContext(ctx, "variants: error resolving variant",
		"variant", d.id,
		"error", err,
	)
	return "", false, wrapResolutionError(d.id, d.provider, err)
}

func (d *Descriptor) callResolve(ctx context.Context) (string, error) {
	if d.resolve == nil {
		return "", ErrNoResolver
	}
	value, err := d.resolve(ctx)
	if err != nil {
		return "", err
	}
	if !d.Allows(value) {
		return "", fmt.Errorf("%w: %q is not one of %q", ErrValueNotAllowed, value, d.values)
	}
	return value, nil
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("variant(id:%s)", d.id)
}
