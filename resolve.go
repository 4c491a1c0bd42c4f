package variants

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-variants/pkg/activity"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of resolving the applicable variants for a request.
type Result struct {
	// Final holds a value for every applicable variant.
	Final Assignment
	// New holds only the values resolved during this call, nil when none.
	New Assignment
	// NeedsPersist reports whether New must be written back to the store.
	NeedsPersist bool
	Trace        Trace
}

// Resolver orchestrates per request resolution of applicable variants.
type Resolver struct {
	cfg     resolverConfig
	emitter *activity.Emitter
}

// NewResolver constructs a Resolver.
func NewResolver(opts ...Option) *Resolver {
	cfg := applyOptions(opts)
	return &Resolver{
		cfg:     cfg,
		emitter: activity.NewEmitter(cfg.hooks, activity.Config{Enabled: true, Channel: cfg.channel}),
	}
}

func (r *Resolver) logger() *slog.Logger {
	return loggerOrDefault(r.cfg.logger)
}

// Resolve produces the final assignment for applicable. Variants already in
// persisted keep their value verbatim unless it is not encodable or not
// declared, in which case it is resolved again and staged for persistence.
// The rest are resolved concurrently
// through their descriptors. The first failure without a fallback aborts the
// whole resolution.
func (r *Resolver) Resolve(ctx context.Context, applicable []*Descriptor, persisted Assignment) (result Result, err error) {
	ctx, span := startResolveSpan(ctx, len(applicable), len(persisted))
	defer func() { endResolveSpan(span, result, err) }()

	entries := make([]Provenance, len(applicable))
	seen := make(map[string]struct{}, len(applicable))

	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.concurrency > 0 {
		g.SetLimit(r.cfg.concurrency)
	}
	for i, d := range applicable {
		if d == nil {
			continue
		}
		if _, dup := seen[d.ID()]; dup {
			continue
		}
		seen[d.ID()] = struct{}{}

		if value, ok := persisted[d.ID()]; ok {
			err := checkPersisted(d, value)
			if err == nil {
				entries[i] = Provenance{VariantID: d.ID(), Value: value, Source: SourcePersisted, Provider: d.Provider()}
				continue
			}
			r.logger().WarnContext(ctx, "variants: discarding persisted value",
				"variant", d.ID(),
				"value", value,
				"error", err,
			)
		}
		g.Go(func() error {
			start := time.Now()
			value, usedFallback, resolveErr := d.resolveValue(gctx, r.logger())
			source := SourceProvider
			if usedFallback {
				source = SourceFallback
			}
			recordResolution(gctx, d.ID(), source, time.Since(start), resolveErr)
			if resolveErr != nil {
				return resolveErr
			}
			entries[i] = Provenance{VariantID: d.ID(), Value: value, Source: source, Provider: d.Provider()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	result = Result{Final: Assignment{}, Trace: Trace{Entries: make([]Provenance, 0, len(seen))}}
	for _, entry := range entries {
		if entry.VariantID == "" {
			continue
		}
		result.Final[entry.VariantID] = entry.Value
		result.Trace.Entries = append(result.Trace.Entries, entry)
		if entry.Source == SourcePersisted {
			continue
		}
		if result.New == nil {
			result.New = Assignment{}
		}
		result.New[entry.VariantID] = entry.Value
	}
	result.NeedsPersist = len(result.New) > 0

	r.emit(ctx, result.Trace)
	return result, nil
}

// checkPersisted rejects stored values that cannot be encoded or that the
// descriptor no longer declares, such as a tampered cookie.
func checkPersisted(d *Descriptor, value string) error {
	if err := ValidateValue(value); err != nil {
		return err
	}
	if !d.Allows(value) {
		return fmt.Errorf("%w: %q is not one of %q", ErrValueNotAllowed, value, d.values)
	}
	return nil
}

// ResolveToken resolves applicable and encodes the final assignment projected
// onto applicable.
func (r *Resolver) ResolveToken(ctx context.Context, applicable []*Descriptor, persisted Assignment) (string, Result, error) {
	result, err := r.Resolve(ctx, applicable, persisted)
	if err != nil {
		return "", Result{}, err
	}
	token, err := EncodeApplicable(result.Final, applicable)
	if err != nil {
		return "", Result{}, err
	}
	result.Trace.Token = token
	return token, result, nil
}

func (r *Resolver) emit(ctx context.Context, trace Trace) {
	if !r.emitter.Enabled() {
		return
	}
	visitor := ""
	if r.cfg.visitor != nil {
		visitor = r.cfg.visitor(ctx)
	}
	for _, entry := range trace.Entries {
		input := activity.AssignmentEventInput{
			UserID:    visitor,
			VariantID: entry.VariantID,
			Value:     entry.Value,
			Provider:  entry.Provider,
		}
		var event activity.Event
		switch entry.Source {
		case SourceProvider:
			event = activity.BuildVariantAssignedEvent(input)
		case SourceFallback:
			event = activity.BuildVariantFallbackEvent(input)
		default:
			continue
		}
		if err := r.emitter.Emit(ctx, event); err != nil {
			r.logger().WarnContext(ctx, "variants: activity hook failed",
				"variant", entry.VariantID,
				"error", err,
			)
		}
	}
}
