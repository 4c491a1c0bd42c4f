package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/internal/hydrate"
	"github.com/goliatone/go-variants/pkg/identity"
	"github.com/goliatone/go-variants/pkg/provider/cookie"
	"github.com/goliatone/go-variants/pkg/provider/experiment"
	"github.com/goliatone/go-variants/pkg/rules"
	"github.com/goliatone/go-variants/pkg/state"
	"github.com/goliatone/go-variants/routing"
)

const sampleYAML = `
cookie:
  max_age: 48h
  codec: cbor
deadlock_timeout: 2
manifest: routes.yaml
variants:
  - id: theme
    values: [light, dark]
    fallback: light
  - id: hero
    values: [a, b]
    provider: experiment
  - id: pricing
    values: [standard, discount]
    provider: rules
    engine: cel
    rules:
      - when: path.startsWith("/sale")
        value: discount
    default: standard
`

const sampleManifest = `
version: 1
root:
  segment: ""
  variants:
    layout: [theme]
  children:
    - segment: __PAGE__
      variants:
        page: [hero]
    - segment: shop
      children:
        - segment: __PAGE__
          variants:
            page: [pricing]
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), hydrate.FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Cookie.Name != state.DefaultCookieName || cfg.Cookie.Path != "/" {
		t.Fatalf("unexpected cookie defaults %+v", cfg.Cookie)
	}
	if cfg.Cookie.MaxAge.Std() != 48*time.Hour {
		t.Fatalf("expected 48h, got %s", cfg.Cookie.MaxAge)
	}
	if cfg.DeadlockTimeout.Std() != 2*time.Second {
		t.Fatalf("expected numeric seconds, got %s", cfg.DeadlockTimeout)
	}
	if cfg.Identity.Cookie != identity.DefaultCookieName || cfg.Identity.Redirect == nil || !*cfg.Identity.Redirect {
		t.Fatalf("unexpected identity defaults %+v", cfg.Identity)
	}
	if cfg.Variants[0].Provider != ProviderCookie {
		t.Fatalf("expected cookie provider by default, got %q", cfg.Variants[0].Provider)
	}
	want := map[string]bool{ProviderCookie: true, ProviderExperiment: true, ProviderRules: true}
	if diff := cmp.Diff(want, cfg.Providers()); diff != "" {
		t.Fatalf("providers differ (-want +got):\n%s", diff)
	}
}

func TestParseJSONC(t *testing.T) {
	doc := `{
		// visitor cookie
		"identity": {"cookie": "vid", "redirect": false},
		"variants": [{"id": "theme", "values": ["light", "dark"],},],
	}`
	cfg, err := Parse([]byte(doc), hydrate.FormatJSONC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Identity.Cookie != "vid" || *cfg.Identity.Redirect {
		t.Fatalf("unexpected identity %+v", cfg.Identity)
	}
	if len(cfg.IdentityOptions()) != 3 {
		t.Fatalf("expected identity options")
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field":     "variants: []\nbogus: 1\n",
		"dotted id":         "variants:\n  - id: a.b\n    values: [x]\n",
		"dotted value":      "variants:\n  - id: a\n    values: [x.1]\n",
		"no values":         "variants:\n  - id: a\n    values: []\n",
		"duplicate values":  "variants:\n  - id: a\n    values: [x, x]\n",
		"unknown provider":  "variants:\n  - id: a\n    values: [x]\n    provider: redis\n",
		"unknown codec":     "cookie:\n  codec: xml\n",
		"rules on cookie":   "variants:\n  - id: a\n    values: [x]\n    default: x\n",
		"empty rules":       "variants:\n  - id: a\n    values: [x]\n    provider: rules\n",
		"duplicate variant": "variants:\n  - id: a\n    values: [x]\n  - id: a\n    values: [y]\n",
		"bad duration":      "deadlock_timeout: soon\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), hydrate.FormatYAML); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestValidateWrapsErrInvalid(t *testing.T) {
	cfg := &Config{Variants: []VariantConfig{{ID: "a", Values: []string{"x"}, Provider: "redis"}}}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestRegistryBuildsProviderDescriptors(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), hydrate.FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	registry, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	wantProviders := map[string]string{
		"theme":   cookie.ProviderID,
		"hero":    experiment.ProviderID,
		"pricing": rules.ProviderID,
	}
	for id, provider := range wantProviders {
		d, ok := registry.Lookup(id)
		if !ok {
			t.Fatalf("missing %s", id)
		}
		if d.Provider() != provider {
			t.Fatalf("%s: expected provider %q, got %q", id, provider, d.Provider())
		}
	}
	if fallback, ok := mustLookup(t, registry, "theme").Fallback(); !ok || fallback != "light" {
		t.Fatalf("expected theme fallback light, got %q %v", fallback, ok)
	}

	ctx := variants.ContextWithScope(context.Background(), variants.NewScope(rules.Provider(rules.NewResolver())))
	ctx = rules.WithRequest(ctx, rules.Request{Path: "/sale/today"})
	value, err := mustLookup(t, registry, "pricing").Resolve(ctx)
	if err != nil || value != "discount" {
		t.Fatalf("expected discount, got %q err=%v", value, err)
	}
}

func TestRegistryRejectsFallbackOutsideValues(t *testing.T) {
	cfg, err := Parse([]byte("variants:\n  - id: a\n    values: [x]\n    fallback: y\n"), hydrate.FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := cfg.Registry(); !errors.Is(err, variants.ErrInvalidDescriptor) {
		t.Fatalf("expected ErrInvalidDescriptor, got %v", err)
	}
}

func TestLoadResolvesManifestRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "variants.yaml"), []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "routes.yaml"), []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	cfg, err := Load(filepath.Join(dir, "variants.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ManifestPath() != filepath.Join(dir, "routes.yaml") {
		t.Fatalf("unexpected manifest path %q", cfg.ManifestPath())
	}
	registry, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	root, err := cfg.RouteTree(registry)
	if err != nil {
		t.Fatalf("route tree: %v", err)
	}
	set, err := routing.Match(root, "/shop")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if diff := cmp.Diff([]string{"pricing", "theme"}, set.IDs()); diff != "" {
		t.Fatalf("ids differ (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	if _, err := Load("variants.toml"); !errors.Is(err, hydrate.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestCookieOptionsUseConfiguredCodec(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), hydrate.FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opts, err := cfg.CookieOptions()
	if err != nil {
		t.Fatalf("cookie options: %v", err)
	}
	store := state.NewCookieStore(nil, nil, opts...)
	if store.Name() != state.DefaultCookieName {
		t.Fatalf("unexpected cookie name %q", store.Name())
	}
}

func TestExperimentClientHonoursHash(t *testing.T) {
	cfg := &Config{Experiment: ExperimentConfig{SDKKey: "k", Hash: "string"}}
	client := cfg.ExperimentClient()
	got, err := client.Variation(context.Background(), experiment.Context{UserID: "hello"}, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("variation: %v", err)
	}
	if got != "b" {
		t.Fatalf("expected legacy string hash bucket b, got %q", got)
	}
	if (&Config{}).ExperimentClient() != experiment.GlobalClient() {
		t.Fatalf("expected global client without key")
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte(`"1m30s"`)); err != nil || d.Std() != 90*time.Second {
		t.Fatalf("expected 90s, got %s err=%v", d, err)
	}
	out, err := d.MarshalJSON()
	if err != nil || string(out) != `"1m30s"` {
		t.Fatalf("unexpected marshal %s err=%v", out, err)
	}
	if err := d.UnmarshalJSON([]byte(`true`)); err == nil || !strings.Contains(err.Error(), "duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func mustLookup(t *testing.T, registry *variants.Registry, id string) *variants.Descriptor {
	t.Helper()
	d, ok := registry.Lookup(id)
	if !ok {
		t.Fatalf("missing %s", id)
	}
	return d
}
