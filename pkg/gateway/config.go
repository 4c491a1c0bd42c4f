package gateway

import (
	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/config"
	"github.com/goliatone/go-variants/pkg/rules"
	"github.com/goliatone/go-variants/routing"
)

// FromConfig builds a Gateway from a loaded configuration. Without a
// manifest every declared variant applies to every path. opts are applied
// after the configured ones.
func FromConfig(cfg *config.Config, opts ...Option) (*Gateway, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	cookieOpts, err := cfg.CookieOptions()
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithCookieOptions(cookieOpts...),
		WithMaxAge(cfg.Cookie.MaxAge.Std()),
		WithDeadlockTimeout(cfg.DeadlockTimeout.Std()),
		WithIdentityCookie(cfg.Identity.Cookie),
		WithExperimentClient(cfg.ExperimentClient()),
	}
	if cfg.Concurrency > 0 {
		base = append(base, WithResolverOptions(variants.WithConcurrency(cfg.Concurrency)))
	}
	if cfg.Providers()[config.ProviderRules] {
		resolver := rules.NewResolver()
		for _, v := range cfg.Variants {
			if v.Provider != config.ProviderRules {
				continue
			}
			if err := resolver.Compile(v.RuleSet()); err != nil {
				return nil, err
			}
		}
		base = append(base, WithRulesResolver(resolver))
	}

	var root *routing.Node
	if cfg.ManifestPath() != "" {
		root, err = cfg.RouteTree(registry)
		if err != nil {
			return nil, err
		}
	} else {
		root = routing.NewNode("")
		base = append(base, WithGlobalVariants(registry.All()...))
	}
	return New(root, registry, append(base, opts...)...)
}
