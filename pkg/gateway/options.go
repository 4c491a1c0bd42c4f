package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/activity"
	"github.com/goliatone/go-variants/pkg/identity"
	"github.com/goliatone/go-variants/pkg/provider/experiment"
	"github.com/goliatone/go-variants/pkg/rules"
	"github.com/goliatone/go-variants/pkg/state"
)

// Option configures a Gateway.
type Option func(*Gateway)

// StoreFactory binds a Store to one request.
type StoreFactory func(r *http.Request, w http.ResponseWriter) state.Store

// ErrorHandler answers a request whose resolution failed.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithRegisterer registers the gateway metrics with reg. Without it metrics
// are collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(g *Gateway) {
		g.registerer = reg
	}
}

// WithStoreFactory replaces the assignment cookie store.
func WithStoreFactory(factory StoreFactory) Option {
	return func(g *Gateway) {
		if factory != nil {
			g.storeFactory = factory
		}
	}
}

// WithCookieOptions configures the default assignment cookie store.
func WithCookieOptions(opts ...state.CookieOption) Option {
	return func(g *Gateway) {
		g.cookieOpts = append(g.cookieOpts, opts...)
	}
}

// WithMaxAge sets the lifetime of persisted assignments.
func WithMaxAge(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.maxAge = d
		}
	}
}

// WithExperimentClient sets the client behind experiment variants.
func WithExperimentClient(client experiment.Client) Option {
	return func(g *Gateway) {
		g.experiment = client
	}
}

// WithRulesResolver sets the resolver behind rules variants.
func WithRulesResolver(resolver *rules.Resolver) Option {
	return func(g *Gateway) {
		if resolver != nil {
			g.rules = resolver
		}
	}
}

// WithScopeOptions adds providers to every request scope.
func WithScopeOptions(opts ...variants.ScopeOption) Option {
	return func(g *Gateway) {
		g.scopeOpts = append(g.scopeOpts, opts...)
	}
}

// WithDeadlockTimeout bounds how long renderers wait for the assignment.
func WithDeadlockTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.deadlock = d
		}
	}
}

// WithResolverOptions configures the variants.Resolver used per request.
func WithResolverOptions(opts ...variants.Option) Option {
	return func(g *Gateway) {
		g.resolverOpts = append(g.resolverOpts, opts...)
	}
}

// WithActivityHooks reports assignments and persisted writes to hooks.
func WithActivityHooks(hooks activity.Hooks) Option {
	return func(g *Gateway) {
		g.hooks = hooks.Clone()
	}
}

// WithErrorHandler replaces the default 500 response.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(g *Gateway) {
		if fn != nil {
			g.onError = fn
		}
	}
}

// WithSkipPrefixes leaves paths under prefixes untouched, for example assets
// and API routes.
func WithSkipPrefixes(prefixes ...string) Option {
	return func(g *Gateway) {
		for _, prefix := range prefixes {
			if prefix = strings.TrimSpace(prefix); prefix != "" {
				g.skip = append(g.skip, prefix)
			}
		}
	}
}

// WithGlobalVariants applies ds to every path, matched or not.
func WithGlobalVariants(ds ...*variants.Descriptor) Option {
	return func(g *Gateway) {
		g.global = append(g.global, ds...)
	}
}

// WithIdentity wraps Middleware with the visitor id middleware.
func WithIdentity(opts ...identity.Option) Option {
	return func(g *Gateway) {
		g.identityOn = true
		g.identityOpts = append(g.identityOpts, opts...)
	}
}

// WithIdentityCookie names the visitor cookie read when the identity
// middleware did not run.
func WithIdentityCookie(name string) Option {
	return func(g *Gateway) {
		if name != "" {
			g.identityCookie = name
			g.identityOpts = append(g.identityOpts, identity.WithCookieName(name))
		}
	}
}
