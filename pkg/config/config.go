// Package config loads the variants gateway configuration from YAML, JSON or
// JSONC files and turns the declared variants into descriptors.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/internal/hydrate"
	"github.com/goliatone/go-variants/pkg/identity"
	"github.com/goliatone/go-variants/pkg/provider/cookie"
	"github.com/goliatone/go-variants/pkg/provider/experiment"
	"github.com/goliatone/go-variants/pkg/rules"
	"github.com/goliatone/go-variants/pkg/state"
	"github.com/goliatone/go-variants/routing"
)

// Provider names accepted in VariantConfig.Provider.
const (
	ProviderCookie     = "cookie"
	ProviderExperiment = "experiment"
	ProviderRules      = "rules"
)

const (
	DefaultDeadlockTimeout = 10 * time.Second
	DefaultCookiePath      = "/"
)

var ErrInvalid = errors.New("config: invalid configuration")

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("variantid", validateTokenPart(variants.ValidateID))
	_ = configValidate.RegisterValidation("variantvalue", validateTokenPart(variants.ValidateValue))
}

// validateTokenPart rejects ids and values that would break token encoding.
func validateTokenPart(check func(string) error) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return check(fl.Field().String()) == nil
	}
}

// Config is the root document.
type Config struct {
	Cookie          CookieConfig     `json:"cookie" yaml:"cookie"`
	Identity        IdentityConfig   `json:"identity" yaml:"identity"`
	Experiment      ExperimentConfig `json:"experiment" yaml:"experiment"`
	DeadlockTimeout Duration         `json:"deadlock_timeout" yaml:"deadlock_timeout"`
	Concurrency     int              `json:"concurrency" yaml:"concurrency" validate:"gte=0"`
	// Manifest points at a route manifest written by variantscan. Relative
	// paths resolve against the config file.
	Manifest string          `json:"manifest" yaml:"manifest"`
	Variants []VariantConfig `json:"variants" yaml:"variants" validate:"dive"`

	baseDir string
}

// CookieConfig configures the assignment cookie.
type CookieConfig struct {
	Name   string   `json:"name" yaml:"name"`
	Path   string   `json:"path" yaml:"path"`
	MaxAge Duration `json:"max_age" yaml:"max_age"`
	Codec  string   `json:"codec" yaml:"codec" validate:"omitempty,oneof=json cbor"`
	Secure bool     `json:"secure" yaml:"secure"`
}

// IdentityConfig configures the visitor id cookie.
type IdentityConfig struct {
	Cookie   string   `json:"cookie" yaml:"cookie"`
	MaxAge   Duration `json:"max_age" yaml:"max_age"`
	Redirect *bool    `json:"redirect" yaml:"redirect"`
}

// ExperimentConfig configures the hash bucketing client.
type ExperimentConfig struct {
	// SDKKey seeds the hash. Empty reads experiment.SDKKeyEnv.
	SDKKey string `json:"sdk_key" yaml:"sdk_key"`
	Hash   string `json:"hash" yaml:"hash" validate:"omitempty,oneof=blake3 string"`
}

// VariantConfig declares one variant.
type VariantConfig struct {
	ID       string       `json:"id" yaml:"id" validate:"variantid"`
	Values   []string     `json:"values" yaml:"values" validate:"min=1,unique,dive,variantvalue"`
	Fallback *string      `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Provider string       `json:"provider" yaml:"provider" validate:"omitempty,oneof=cookie experiment rules"`
	Engine   rules.Engine `json:"engine,omitempty" yaml:"engine,omitempty" validate:"omitempty,oneof=expr cel js"`
	Rules    []rules.Rule `json:"rules,omitempty" yaml:"rules,omitempty" validate:"dive"`
	Default  string       `json:"default,omitempty" yaml:"default,omitempty"`
}

// Load reads the configuration at path. The format follows the extension.
func Load(path string) (*Config, error) {
	format, err := hydrate.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := decode(hydrate.Context{Source: path}, data, format)
	if err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes data in format, applies defaults and validates the result.
func Parse(data []byte, format hydrate.Format) (*Config, error) {
	return decode(hydrate.Context{Source: "inline"}, data, format)
}

func newDecoder() *hydrate.Decoder[Config] {
	return hydrate.NewDecoder(
		hydrate.WithDisallowUnknownFields[Config](),
		hydrate.WithPostHook[Config](func(_ hydrate.Context, cfg *Config) error {
			cfg.EnsureDefaults()
			return nil
		}),
		hydrate.WithPostHook[Config](func(_ hydrate.Context, cfg *Config) error {
			return cfg.Validate()
		}),
	)
}

func decode(ctx hydrate.Context, data []byte, format hydrate.Format) (*Config, error) {
	cfg, err := newDecoder().DecodeBytes(ctx, data, format)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnsureDefaults fills unset fields.
func (c *Config) EnsureDefaults() {
	if c.Cookie.Name == "" {
		c.Cookie.Name = state.DefaultCookieName
	}
	if c.Cookie.Path == "" {
		c.Cookie.Path = DefaultCookiePath
	}
	if c.Cookie.MaxAge <= 0 {
		c.Cookie.MaxAge = Duration(cookie.DefaultMaxAge)
	}
	if c.Cookie.Codec == "" {
		c.Cookie.Codec = state.JSONCodec{}.Name()
	}
	if c.Identity.Cookie == "" {
		c.Identity.Cookie = identity.DefaultCookieName
	}
	if c.Identity.MaxAge <= 0 {
		c.Identity.MaxAge = Duration(identity.DefaultMaxAge)
	}
	if c.Identity.Redirect == nil {
		redirect := true
		c.Identity.Redirect = &redirect
	}
	if c.Experiment.Hash == "" {
		c.Experiment.Hash = "blake3"
	}
	if c.DeadlockTimeout <= 0 {
		c.DeadlockTimeout = Duration(DefaultDeadlockTimeout)
	}
	for i := range c.Variants {
		if c.Variants[i].Provider == "" {
			c.Variants[i].Provider = ProviderCookie
		}
	}
}

// Validate checks struct tags and the relations between variants.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	seen := make(map[string]struct{}, len(c.Variants))
	for _, v := range c.Variants {
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("%w: variant %q declared twice", ErrInvalid, v.ID)
		}
		seen[v.ID] = struct{}{}
		if v.Provider != ProviderRules && (len(v.Rules) > 0 || v.Default != "" || v.Engine != "") {
			return fmt.Errorf("%w: variant %q declares rules but uses provider %q", ErrInvalid, v.ID, v.Provider)
		}
		if v.Provider == ProviderRules && len(v.Rules) == 0 && v.Default == "" {
			return fmt.Errorf("%w: variant %q uses rules without any rule or default", ErrInvalid, v.ID)
		}
	}
	return nil
}

// ManifestPath returns Manifest resolved against the config file directory.
func (c *Config) ManifestPath() string {
	if c.Manifest == "" || filepath.IsAbs(c.Manifest) || c.baseDir == "" {
		return c.Manifest
	}
	return filepath.Join(c.baseDir, c.Manifest)
}

// Registry builds a descriptor for every declared variant.
func (c *Config) Registry() (*variants.Registry, error) {
	registry, err := variants.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, v := range c.Variants {
		d, err := v.Descriptor()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(d); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// RouteTree reads the manifest and attaches descriptors from registry.
func (c *Config) RouteTree(registry *variants.Registry) (*routing.Node, error) {
	path := c.ManifestPath()
	if path == "" {
		return nil, fmt.Errorf("%w: manifest is not set", ErrInvalid)
	}
	return routing.ReadManifest(path, registry.Lookup)
}

// Descriptor constructs the descriptor for v with its provider strategy.
func (v VariantConfig) Descriptor() (*variants.Descriptor, error) {
	var opts []variants.DescriptorOption
	if v.Fallback != nil {
		opts = append(opts, variants.WithFallback(*v.Fallback))
	}
	switch v.Provider {
	case "", ProviderCookie:
		return cookie.NewVariant(v.ID, v.Values, opts...)
	case ProviderExperiment:
		return experiment.NewVariant(v.ID, v.Values, opts...)
	case ProviderRules:
		return rules.NewVariant(v.ID, v.Values, v.RuleSet(), opts...)
	default:
		return nil, fmt.Errorf("%w: variant %q has unknown provider %q", ErrInvalid, v.ID, v.Provider)
	}
}

// RuleSet returns the rules declared for v.
func (v VariantConfig) RuleSet() rules.RuleSet {
	return rules.RuleSet{Rules: v.Rules, Default: v.Default, Engine: v.Engine}
}

// CookieOptions returns the assignment cookie settings as store options.
func (c *Config) CookieOptions() ([]state.CookieOption, error) {
	codec, err := state.CodecByName(c.Cookie.Codec)
	if err != nil {
		return nil, err
	}
	return []state.CookieOption{
		state.WithCookieName(c.Cookie.Name),
		state.WithCookiePath(c.Cookie.Path),
		state.WithCodec(codec),
		state.WithSecure(c.Cookie.Secure),
	}, nil
}

// IdentityOptions returns the visitor cookie settings as middleware options.
func (c *Config) IdentityOptions() []identity.Option {
	redirect := c.Identity.Redirect == nil || *c.Identity.Redirect
	return []identity.Option{
		identity.WithCookieName(c.Identity.Cookie),
		identity.WithMaxAge(c.Identity.MaxAge.Std()),
		identity.WithRedirect(redirect),
	}
}

// ExperimentClient builds the hash client. Without an SDK key the process
// wide experiment.GlobalClient is returned.
func (c *Config) ExperimentClient() experiment.Client {
	var opts []experiment.ClientOption
	if c.Experiment.Hash == "string" {
		opts = append(opts, experiment.WithHash(experiment.StringHash))
	}
	if c.Experiment.SDKKey == "" && len(opts) == 0 {
		return experiment.GlobalClient()
	}
	key := c.Experiment.SDKKey
	if key == "" {
		key = os.Getenv(experiment.SDKKeyEnv)
	}
	if key == "" {
		key = experiment.DefaultSDKKey
	}
	return experiment.NewClient(key, opts...)
}

// Providers lists the provider names used by the declared variants.
func (c *Config) Providers() map[string]bool {
	out := make(map[string]bool, 3)
	for _, v := range c.Variants {
		out[v.Provider] = true
	}
	return out
}
