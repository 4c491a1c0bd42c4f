// Package gateway applies variants at the HTTP edge. For every request it
// matches the path against the route tree, resolves the applicable variants,
// prepends the encoded assignment to the path and persists new values in a
// cookie. Renderer reverses the rewrite for page handlers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/activity"
	"github.com/goliatone/go-variants/pkg/identity"
	"github.com/goliatone/go-variants/pkg/provider/cookie"
	"github.com/goliatone/go-variants/pkg/provider/experiment"
	"github.com/goliatone/go-variants/pkg/reqlocal"
	"github.com/goliatone/go-variants/pkg/rules"
	"github.com/goliatone/go-variants/pkg/state"
	"github.com/goliatone/go-variants/routing"
)

var ErrNilRouteTree = errors.New("gateway: route tree is required")

// Outcome describes what Handle did with a request.
type Outcome struct {
	// PassThrough is set when the path already carries a token.
	PassThrough bool
	// Skipped is set for paths under a skip prefix.
	Skipped bool
	// Path is the path the request should be served from.
	Path   string
	Token  string
	Result variants.Result
}

// Rewritten reports whether Path differs from the incoming path.
func (o Outcome) Rewritten() bool {
	return !o.PassThrough && !o.Skipped
}

// Gateway resolves variants for incoming requests.
type Gateway struct {
	root     *routing.Node
	registry *variants.Registry
	global   []*variants.Descriptor

	logger       *slog.Logger
	registerer   prometheus.Registerer
	metrics      *metrics
	storeFactory StoreFactory
	cookieOpts   []state.CookieOption
	maxAge       time.Duration
	experiment   experiment.Client
	rules        *rules.Resolver
	scopeOpts    []variants.ScopeOption
	deadlock     time.Duration
	resolverOpts []variants.Option
	resolver     *variants.Resolver
	hooks        activity.Hooks
	emitter      *activity.Emitter
	onError      ErrorHandler
	skip         []string

	identityOn     bool
	identityOpts   []identity.Option
	identityCookie string
}

// New constructs a Gateway over root. registry lists every descriptor for the
// debug catalog; it may be nil.
func New(root *routing.Node, registry *variants.Registry, opts ...Option) (*Gateway, error) {
	if root == nil {
		return nil, ErrNilRouteTree
	}
	g := &Gateway{
		root:           root,
		registry:       registry,
		logger:         slog.New(slog.DiscardHandler),
		maxAge:         cookie.DefaultMaxAge,
		deadlock:       reqlocal.DefaultTimeout,
		identityCookie: identity.DefaultCookieName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.storeFactory == nil {
		cookieOpts := append([]state.CookieOption{state.WithCookieLogger(g.logger)}, g.cookieOpts...)
		g.storeFactory = func(r *http.Request, w http.ResponseWriter) state.Store {
			return state.NewCookieStore(r, w, cookieOpts...)
		}
	}
	if g.rules == nil {
		g.rules = rules.NewResolver(rules.WithEvaluatorLogger(rules.SlogEvaluatorLogger(g.logger)))
	}
	if g.onError == nil {
		g.onError = g.defaultError
	}
	g.metrics = newMetrics(g.registerer)
	g.emitter = activity.NewEmitter(g.hooks, activity.Config{Enabled: true})
	resolverOpts := []variants.Option{
		variants.WithLogger(g.logger),
		variants.WithActivityHooks(g.hooks),
		variants.WithVisitorFunc(visitorFromContext),
	}
	g.resolver = variants.NewResolver(append(resolverOpts, g.resolverOpts...)...)
	return g, nil
}

func visitorFromContext(ctx context.Context) string {
	id, _ := identity.FromContext(ctx)
	return id
}

// Registry returns the descriptor registry, possibly nil.
func (g *Gateway) Registry() *variants.Registry {
	return g.registry
}

// Handle resolves the variants applicable to r and returns where it should be
// served from. New assignments are written through w.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) (Outcome, error) {
	path := r.URL.Path
	if g.skipped(path) {
		g.metrics.requests.WithLabelValues(outcomeSkipped).Inc()
		return Outcome{Skipped: true, Path: path}, nil
	}
	if variants.HasTokenSegment(path) {
		g.metrics.requests.WithLabelValues(outcomePassThrough).Inc()
		return Outcome{PassThrough: true, Path: path}, nil
	}

	start := time.Now()
	outcome, err := g.resolve(w, r)
	g.metrics.latency.Observe(time.Since(start).Seconds())
	if err != nil {
		g.metrics.requests.WithLabelValues(outcomeError).Inc()
		g.metrics.errors.Inc()
		return Outcome{}, err
	}
	g.metrics.requests.WithLabelValues(outcomeRewritten).Inc()
	g.metrics.observeTrace(outcome.Result.Trace)
	return outcome, nil
}

func (g *Gateway) resolve(w http.ResponseWriter, r *http.Request) (Outcome, error) {
	ctx := r.Context()
	visitor, ok := g.visitorID(r)
	if ok {
		ctx = identity.ContextWithUserID(ctx, visitor)
	}

	store := g.storeFactory(r, w)
	ref := state.Ref{Domain: state.DefaultDomain, Visitor: visitor}
	cookies := cookie.NewResolver(store,
		cookie.WithRef(ref),
		cookie.WithMaxAge(g.maxAge),
		cookie.WithLogger(g.logger),
	)
	scope := variants.NewScope(g.scopeOptions(cookies)...)
	ctx = variants.ContextWithScope(ctx, scope)
	ruleReq := rules.RequestFromHTTP(r)
	ruleReq.UserID = visitor
	ctx = rules.WithRequest(ctx, ruleReq)

	applicable, err := g.applicable(r.URL.Path)
	if err != nil {
		return Outcome{}, err
	}

	persisted := cookies.Existing(ctx)
	token, result, err := g.resolver.ResolveToken(ctx, applicable, persisted)
	if err != nil {
		return Outcome{}, fmt.Errorf("gateway: resolve %s: %w", r.URL.Path, err)
	}

	if result.NeedsPersist {
		merged, _, err := state.Merge(ctx, store, ref, result.New, state.Meta{MaxAge: g.maxAge, UpdatedAt: time.Now()})
		if err != nil {
			return Outcome{}, fmt.Errorf("gateway: persist assignments: %w", err)
		}
		g.metrics.persisted.Inc()
		g.emitPersisted(ctx, store, visitor, merged, result.New)
	}

	g.logger.DebugContext(ctx, "gateway: rewrote request",
		"path", r.URL.Path,
		"token", token,
		"new", len(result.New),
	)
	return Outcome{
		Path:   "/" + token + r.URL.Path,
		Token:  token,
		Result: result,
	}, nil
}

func (g *Gateway) scopeOptions(cookies *cookie.Resolver) []variants.ScopeOption {
	opts := make([]variants.ScopeOption, 0, len(g.scopeOpts)+4)
	opts = append(opts,
		variants.WithDeadlockTimeout(g.deadlock),
		variants.WithProviderInstance(cookie.ProviderKey, cookies),
		experiment.Provider(g.experiment),
		rules.Provider(g.rules),
	)
	return append(opts, g.scopeOpts...)
}

// applicable returns the global descriptors plus those matched for path.
func (g *Gateway) applicable(path string) ([]*variants.Descriptor, error) {
	set, err := routing.Match(g.root, path)
	if err != nil && !errors.Is(err, routing.ErrNoMatch) {
		return nil, fmt.Errorf("gateway: match %s: %w", path, err)
	}
	set.Add(g.global...)
	return set.Descriptors(), nil
}

func (g *Gateway) skipped(path string) bool {
	for _, prefix := range g.skip {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Gateway) emitPersisted(ctx context.Context, store state.Store, visitor string, merged, added variants.Assignment) {
	if !g.emitter.Enabled() {
		return
	}
	event := activity.BuildAssignmentPersistedEvent(activity.PersistEventInput{
		UserID:     visitor,
		Store:      storeName(store),
		Assignment: merged,
		Added:      added,
		OccurredAt: time.Now(),
	})
	if err := g.emitter.Emit(ctx, event); err != nil {
		g.logger.WarnContext(ctx, "gateway: activity hook failed", "error", err)
	}
}

func storeName(store state.Store) string {
	if named, ok := store.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", store)
}

func (g *Gateway) defaultError(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.ErrorContext(r.Context(), "gateway: variant resolution failed",
		"path", r.URL.Path,
		"error", err,
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Middleware rewrites the request path before calling next.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome, err := g.Handle(w, r)
		if err != nil {
			g.onError(w, r, err)
			return
		}
		if !outcome.Rewritten() {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withPath(r, outcome.Path))
	})
	if !g.identityOn {
		return handler
	}
	return identity.Middleware(handler, g.identityOpts...)
}

func withPath(r *http.Request, path string) *http.Request {
	out := r.Clone(r.Context())
	out.URL.Path = path
	out.URL.RawPath = ""
	return out
}
