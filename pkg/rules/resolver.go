package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/pkg/identity"
)

// ProviderID labels descriptors backed by rules.
const ProviderID = "rules"

// ProviderKey locates the Resolver in a request scope.
var ProviderKey = variants.NewProviderKey[*Resolver](ProviderID)

// Rule assigns Value when When evaluates to true.
type Rule struct {
	When  string `json:"when" yaml:"when" validate:"required"`
	Value string `json:"value" yaml:"value" validate:"required"`
}

// RuleSet is an ordered list of rules and the value used when none match.
type RuleSet struct {
	Rules   []Rule `json:"rules" yaml:"rules"`
	Default string `json:"default,omitempty" yaml:"default,omitempty"`
	// Engine selects the evaluator, expr when empty.
	Engine Engine `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// Engine names a rule evaluator.
type Engine string

const (
	EngineExpr Engine = "expr"
	EngineCEL  Engine = "cel"
	EngineJS   Engine = "js"
)

// NewEvaluator constructs the evaluator for engine sharing cache and
// registry. An empty engine selects expr.
func NewEvaluator(engine Engine, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	switch engine {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(registry)), nil
	case EngineJS:
		evaluator := NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(registry))
		if evaluator == nil {
			return nil, fmt.Errorf("%w: %s requires the js_eval build tag", ErrEngineUnavailable, engine)
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEvaluator sets the evaluator used for engine.
func WithEvaluator(engine Engine, evaluator Evaluator) ResolverOption {
	return func(r *Resolver) {
		if evaluator != nil {
			r.evaluators[normalizeEngine(engine)] = evaluator
		}
	}
}

// WithFunctions replaces DefaultFunctions for evaluators built on demand.
func WithFunctions(registry *FunctionRegistry) ResolverOption {
	return func(r *Resolver) {
		if registry != nil {
			r.functions = registry.Clone()
		}
	}
}

// WithEvaluatorLogger reports every evaluated condition to logger.
func WithEvaluatorLogger(logger EvaluatorLogger) ResolverOption {
	return func(r *Resolver) {
		if logger == nil {
			r.logger = noopEvaluatorLogger{}
			return
		}
		r.logger = logger
	}
}

// WithClock overrides time.Now for the "now" binding.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver evaluates rule sets. It is safe for concurrent use and compiled
// conditions are shared across requests. Evaluators for engines not set with
// WithEvaluator are built on first use.
type Resolver struct {
	logger    EvaluatorLogger
	now       func() time.Time
	cache     ProgramCache
	functions *FunctionRegistry

	mu         sync.RWMutex
	evaluators map[Engine]Evaluator
	compiled   map[compiledKey]CompiledRule
}

type compiledKey struct {
	engine Engine
	expr   string
}

// NewResolver constructs a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger:     noopEvaluatorLogger{},
		now:        time.Now,
		cache:      NewMapCache(),
		functions:  DefaultFunctions(),
		evaluators: make(map[Engine]Evaluator),
		compiled:   make(map[compiledKey]CompiledRule),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func normalizeEngine(engine Engine) Engine {
	if engine == "" {
		return EngineExpr
	}
	return engine
}

func (r *Resolver) evaluator(engine Engine) (Evaluator, error) {
	engine = normalizeEngine(engine)
	r.mu.RLock()
	evaluator, ok := r.evaluators[engine]
	r.mu.RUnlock()
	if ok {
		return evaluator, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if evaluator, ok := r.evaluators[engine]; ok {
		return evaluator, nil
	}
	// Programs are cached per engine; expression text alone is ambiguous.
	evaluator, err := NewEvaluator(engine, prefixedCache{prefix: string(engine), cache: r.cache}, r.functions)
	if err != nil {
		return nil, err
	}
	r.evaluators[engine] = evaluator
	return evaluator, nil
}

type prefixedCache struct {
	prefix string
	cache  ProgramCache
}

func (c prefixedCache) Get(key string) (any, bool) {
	return c.cache.Get(c.prefix + "\x00" + key)
}

func (c prefixedCache) Set(key string, value any) {
	c.cache.Set(c.prefix+"\x00"+key, value)
}

// Compile checks every condition of set, caching the compiled programs.
func (r *Resolver) Compile(set RuleSet) error {
	for _, rule := range set.Rules {
		if _, err := r.compile(set.Engine, rule.When); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) compile(engine Engine, expression string) (CompiledRule, error) {
	key := compiledKey{engine: normalizeEngine(engine), expr: expression}
	r.mu.RLock()
	compiled, ok := r.compiled[key]
	r.mu.RUnlock()
	if ok {
		return compiled, nil
	}
	evaluator, err := r.evaluator(engine)
	if err != nil {
		return nil, err
	}
	compiled, err = evaluator.Compile(expression)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.compiled[key] = compiled
	r.mu.Unlock()
	return compiled, nil
}

// Resolve returns the value of the first rule whose condition holds for req,
// then set.Default, then ErrNoRuleMatched.
func (r *Resolver) Resolve(ctx context.Context, req Request, variantID string, set RuleSet) (string, error) {
	now := r.now()
	ruleCtx := RuleContext{
		Snapshot: req.snapshot(variantID),
		Now:      &now,
		Label:    variantID,
	}
	for i, rule := range set.Rules {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		matched, err := r.evaluate(ruleCtx, set.Engine, rule.When)
		if err != nil {
			return "", fmt.Errorf("rules: %s rule %d: %w", variantID, i, err)
		}
		if matched {
			return rule.Value, nil
		}
	}
	if set.Default != "" {
		return set.Default, nil
	}
	return "", ErrNoRuleMatched
}

func (r *Resolver) evaluate(ctx RuleContext, engine Engine, expression string) (bool, error) {
	start := time.Now()
	compiled, err := r.compile(engine, expression)
	var result any
	if err == nil {
		result, err = compiled.Evaluate(ctx)
	}
	if err == nil {
		if _, ok := result.(bool); !ok {
			err = wrapEvaluationError(string(normalizeEngine(engine)), expression, ctx.label(), fmt.Errorf("%w: got %T", ErrNonBooleanCondition, result))
		}
	}
	r.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   string(normalizeEngine(engine)),
		Expr:     expression,
		Label:    ctx.label(),
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Provider registers resolver in a request scope. The resolver is shared, not
// recreated per request.
func Provider(resolver *Resolver) variants.ScopeOption {
	return variants.WithProviderInstance(ProviderKey, resolver)
}

// NewVariant declares a descriptor resolved by evaluating set against the
// request bound with WithRequest. The visitor id from the identity cookie
// fills Request.UserID when it is empty. Values produced by rules must be
// declared in values.
func NewVariant(id string, values []string, set RuleSet, opts ...variants.DescriptorOption) (*variants.Descriptor, error) {
	resolve := func(ctx context.Context) (string, error) {
		r, err := variants.LookupProvider(ctx, ProviderKey)
		if err != nil {
			return "", err
		}
		req, _ := RequestFromContext(ctx)
		if req.UserID == "" {
			req.UserID, _ = identity.FromContext(ctx)
		}
		return r.Resolve(ctx, req, id, set)
	}
	opts = append([]variants.DescriptorOption{
		variants.WithProvider(ProviderID),
		variants.WithResolver(resolve),
	}, opts...)
	d, err := variants.NewDescriptor(id, values, opts...)
	if err != nil {
		return nil, err
	}
	for _, rule := range set.Rules {
		if !d.Allows(rule.Value) {
			return nil, fmt.Errorf("%w: rule value %q of %q is not an allowed value", variants.ErrInvalidDescriptor, rule.Value, id)
		}
	}
	if set.Default != "" && !d.Allows(set.Default) {
		return nil, fmt.Errorf("%w: default %q of %q is not an allowed value", variants.ErrInvalidDescriptor, set.Default, id)
	}
	return d, nil
}
