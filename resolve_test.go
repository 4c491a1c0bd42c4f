package variants

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-variants/pkg/activity"
)

func countingResolver(value string, calls *atomic.Int32) ResolveFunc {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestResolveNewAssignment(t *testing.T) {
	var calls atomic.Int32
	a := MustDescriptor("A", []string{"x", "y"}, WithResolver(countingResolver("x", &calls)))

	token, result, err := NewResolver().ResolveToken(context.Background(), []*Descriptor{a}, Assignment{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !result.Final.Equal(Assignment{"A": "x"}) {
		t.Fatalf("unexpected final %v", result.Final)
	}
	if !result.NeedsPersist || !result.New.Equal(Assignment{"A": "x"}) {
		t.Fatalf("expected new assignment to need persistence: %+v", result)
	}
	if !Decode(token).Equal(Assignment{"A": "x"}) {
		t.Fatalf("token %q does not decode to final", token)
	}
	if result.Trace.Token != token {
		t.Fatalf("expected token in trace, got %q", result.Trace.Token)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one backend call, got %d", calls.Load())
	}
}

func TestResolveReusesPersisted(t *testing.T) {
	var calls atomic.Int32
	a := MustDescriptor("A", []string{"x", "y"}, WithResolver(countingResolver("x", &calls)))

	for range 3 {
		result, err := NewResolver().Resolve(context.Background(), []*Descriptor{a}, Assignment{"A": "y"})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if result.Final["A"] != "y" {
			t.Fatalf("sticky value changed: %v", result.Final)
		}
		if result.NeedsPersist || result.New != nil {
			t.Fatalf("persisted values must not need persistence: %+v", result)
		}
		entry, ok := result.Trace.Lookup("A")
		if !ok || entry.Source != SourcePersisted {
			t.Fatalf("expected persisted provenance, got %+v", entry)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("backend must not be invoked for persisted ids, got %d calls", calls.Load())
	}
}

func TestResolveReplacesUnusablePersistedValues(t *testing.T) {
	var calls atomic.Int32
	a := MustDescriptor("a", []string{"x", "y"}, WithResolver(countingResolver("x", &calls)))
	b := MustDescriptor("b", []string{"on", "off"}, WithResolver(countingResolver("on", &calls)))

	var buf bytes.Buffer
	resolver := NewResolver(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	token, result, err := resolver.ResolveToken(context.Background(), []*Descriptor{a, b}, Assignment{"a": "x.y", "b": "maybe"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Assignment{"a": "x", "b": "on"}
	if !result.Final.Equal(want) || !result.New.Equal(want) || !result.NeedsPersist {
		t.Fatalf("expected unusable values to be re-resolved and persisted: %+v", result)
	}
	if token != "__v-a.x..b.on" {
		t.Fatalf("unexpected token %q", token)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected both ids to reach the backend, got %d calls", calls.Load())
	}
	if got := strings.Count(buf.String(), "discarding persisted value"); got != 2 {
		t.Fatalf("expected two warnings, got %d:\n%s", got, buf.String())
	}
}

func TestResolveLogsThroughResolverLogger(t *testing.T) {
	var buf bytes.Buffer
	a := MustDescriptor("a", []string{"x"}, WithFallback("x"), WithResolver(failing(errors.New("down"))))

	resolver := NewResolver(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	if _, err := resolver.Resolve(context.Background(), []*Descriptor{a}, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(buf.String(), "using fallback value") || !strings.Contains(buf.String(), "variant=a") {
		t.Fatalf("expected fallback log on resolver logger, got %q", buf.String())
	}
}

func TestResolveMixesPersistedAndNew(t *testing.T) {
	a := MustDescriptor("a", []string{"x", "y"}, WithResolver(constant("x")))
	b := MustDescriptor("b", []string{"on", "off"}, WithResolver(constant("on")))
	c := MustDescriptor("c", []string{"1", "2"}, WithFallback("2"), WithResolver(failing(errors.New("down"))))

	result, err := NewResolver(WithConcurrency(1)).Resolve(context.Background(), []*Descriptor{a, b, c, a}, Assignment{"a": "y", "unrelated": "z"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := Assignment{"a": "y", "b": "on", "c": "2"}
	if !result.Final.Equal(want) {
		t.Fatalf("expected %v, got %v", want, result.Final)
	}
	if !result.New.Equal(Assignment{"b": "on", "c": "2"}) {
		t.Fatalf("unexpected new %v", result.New)
	}
	if entry, _ := result.Trace.Lookup("c"); entry.Source != SourceFallback {
		t.Fatalf("expected fallback provenance for c, got %+v", entry)
	}
	if len(result.Trace.Entries) != 3 {
		t.Fatalf("expected duplicates to be collapsed, got %d entries", len(result.Trace.Entries))
	}
}

func TestResolvePropagatesFailure(t *testing.T) {
	boom := errors.New("boom")
	a := MustDescriptor("a", []string{"x"}, WithResolver(constant("x")))
	b := MustDescriptor("b", []string{"x"}, WithResolver(failing(boom)))

	_, err := NewResolver().Resolve(context.Background(), []*Descriptor{a, b}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestResolveEmitsActivity(t *testing.T) {
	capture := &activity.CaptureHook{}
	a := MustDescriptor("a", []string{"x"}, WithProvider("cookie-variant"), WithResolver(constant("x")))
	b := MustDescriptor("b", []string{"x"}, WithFallback("x"), WithResolver(failing(errors.New("down"))))
	c := MustDescriptor("c", []string{"x"}, WithResolver(constant("x")))

	resolver := NewResolver(
		WithActivityHooks(activity.Hooks{capture}),
		WithVisitorFunc(func(context.Context) string { return "visitor-1" }),
	)
	if _, err := resolver.Resolve(context.Background(), []*Descriptor{a, b, c}, Assignment{"c": "x"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	events := capture.Events()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d: %+v", len(events), events)
	}
	if events[0].Verb != activity.VerbVariantAssigned || events[0].ObjectID != "a" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Verb != activity.VerbVariantFallback || events[1].ObjectID != "b" {
		t.Fatalf("unexpected second event %+v", events[1])
	}
	if events[0].UserID != "visitor-1" || events[0].Channel != activity.DefaultChannel {
		t.Fatalf("unexpected event identity %+v", events[0])
	}
}

func TestResolveEmptyApplicable(t *testing.T) {
	token, result, err := NewResolver().ResolveToken(context.Background(), nil, Assignment{"a": "x"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if token != TokenPrefix || len(result.Final) != 0 || result.NeedsPersist {
		t.Fatalf("unexpected result token=%q %+v", token, result)
	}
}

func TestTraceJSONRoundTrip(t *testing.T) {
	trace := Trace{Token: "__v-a.x", Entries: []Provenance{{VariantID: "a", Value: "x", Source: SourceProvider, Provider: "experiments"}}}
	payload, err := trace.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	decoded, err := TraceFromJSON(payload)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if decoded.Token != trace.Token || len(decoded.Entries) != 1 || decoded.Entries[0] != trace.Entries[0] {
		t.Fatalf("unexpected decoded trace %+v", decoded)
	}
}
