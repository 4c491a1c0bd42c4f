package variants

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-variants/pkg/activity"
)

// Option configures a Resolver.
type Option func(*resolverConfig)

type resolverConfig struct {
	logger      *slog.Logger
	hooks       activity.Hooks
	channel     string
	concurrency int
	visitor     func(context.Context) string
}

func applyOptions(opts []Option) resolverConfig {
	cfg := resolverConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *resolverConfig) {
		cfg.logger = logger
	}
}

// WithActivityHooks attaches hooks notified about fresh assignments. Hooks
// are cloned and nil entries dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := hooks.Clone()
	return func(cfg *resolverConfig) {
		cfg.hooks = normalized
	}
}

// WithActivityChannel overrides activity.DefaultChannel.
func WithActivityChannel(channel string) Option {
	return func(cfg *resolverConfig) {
		cfg.channel = channel
	}
}

// WithConcurrency caps how many descriptors resolve at once. Zero or
// negative means unbounded.
func WithConcurrency(n int) Option {
	return func(cfg *resolverConfig) {
		cfg.concurrency = n
	}
}

// WithVisitorFunc supplies the visitor id attached to activity events.
func WithVisitorFunc(fn func(context.Context) string) Option {
	return func(cfg *resolverConfig) {
		cfg.visitor = fn
	}
}
