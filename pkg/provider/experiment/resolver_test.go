package experiment

import (
	"context"
	"errors"
	"testing"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/identity"
)

type fixedClient struct {
	value string
	err   error
	got   Context
}

func (c *fixedClient) Variation(_ context.Context, bucket Context, _ []string) (string, error) {
	c.got = bucket
	return c.value, c.err
}

func scopedContext(client Client, userID string) context.Context {
	ctx := variants.ContextWithScope(context.Background(), variants.NewScope(Provider(client)))
	if userID != "" {
		ctx = identity.ContextWithUserID(ctx, userID)
	}
	return ctx
}

func TestNewVariantBucketsOnVisitor(t *testing.T) {
	client := &fixedClient{value: "b"}
	hero, err := NewVariant("hero", []string{"a", "b"})
	if err != nil {
		t.Fatalf("new variant: %v", err)
	}
	value, err := hero.Resolve(scopedContext(client, "visitor-1"))
	if err != nil || value != "b" {
		t.Fatalf("expected b, got %q err=%v", value, err)
	}
	if client.got.UserID != "visitor-1" || client.got.Experiment != "hero" {
		t.Fatalf("unexpected bucketing context %+v", client.got)
	}
}

func TestNewVariantWithoutVisitor(t *testing.T) {
	hero, _ := NewVariant("hero", []string{"a", "b"})
	_, err := hero.Resolve(scopedContext(&fixedClient{value: "a"}, ""))
	if !errors.Is(err, ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
	var resErr *variants.ResolutionError
	if !errors.As(err, &resErr) || resErr.Provider != ProviderID {
		t.Fatalf("expected resolution error labelled %q, got %v", ProviderID, err)
	}

	withFallback, _ := NewVariant("hero", []string{"a", "b"}, variants.WithFallback("a"))
	value, err := withFallback.Resolve(scopedContext(&fixedClient{value: "b"}, ""))
	if err != nil || value != "a" {
		t.Fatalf("expected fallback a, got %q err=%v", value, err)
	}
}

func TestResolverWrapsClientErrors(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(&fixedClient{err: boom})
	_, err := r.Resolve(context.Background(), "hero", []string{"a"}, Context{UserID: "u"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if want := `experiment resolver: variation for "hero": boom`; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
