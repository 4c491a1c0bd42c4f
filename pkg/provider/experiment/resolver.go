package experiment

import (
	"context"
	"fmt"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/identity"
)

// ProviderID labels descriptors backed by this resolver.
const ProviderID = "experiments"

// ProviderKey locates the request scoped Resolver.
var ProviderKey = variants.NewProviderKey[*Resolver](ProviderID)

// Resolver asks a Client for the value of a variant.
type Resolver struct {
	client Client
}

// NewResolver wraps client. A nil client uses GlobalClient.
func NewResolver(client Client) *Resolver {
	if client == nil {
		client = GlobalClient()
	}
	return &Resolver{client: client}
}

// Resolve buckets bucket into one of values.
func (r *Resolver) Resolve(ctx context.Context, id string, values []string, bucket Context) (string, error) {
	if bucket.Experiment == "" {
		bucket.Experiment = id
	}
	value, err := r.client.Variation(ctx, bucket, values)
	if err != nil {
		return "", fmt.Errorf("experiment resolver: variation for %q: %w", id, err)
	}
	return value, nil
}

// Provider registers a resolver over client in a request scope.
func Provider(client Client) variants.ScopeOption {
	return variants.WithProviderFactory(ProviderKey, func() *Resolver {
		return NewResolver(client)
	})
}

// NewVariant declares a descriptor bucketed on the visitor id found on the
// request context. Without a visitor id resolution fails with
// ErrMissingUserID and the fallback, if any, applies.
func NewVariant(id string, values []string, opts ...variants.DescriptorOption) (*variants.Descriptor, error) {
	allowed := append([]string(nil), values...)
	resolve := func(ctx context.Context) (string, error) {
		r, err := variants.LookupProvider(ctx, ProviderKey)
		if err != nil {
			return "", err
		}
		userID, ok := identity.FromContext(ctx)
		if !ok {
			return "", ErrMissingUserID
		}
		return r.Resolve(ctx, id, allowed, Context{UserID: userID})
	}
	opts = append([]variants.DescriptorOption{
		variants.WithProvider(ProviderID),
		variants.WithResolver(resolve),
	}, opts...)
	return variants.NewDescriptor(id, values, opts...)
}
