package rules

// JSEvaluatorOption configures the goja evaluator. Options are accepted in
// builds without the js_eval tag so callers compile either way.
type JSEvaluatorOption func(*jsEvaluator)

// JSWithProgramCache reuses compiled goja programs across evaluations.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(e *jsEvaluator) {
		e.cache = cache
	}
}

// JSWithFunctionRegistry exposes registered functions as globals of every
// runtime.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(e *jsEvaluator) {
		if registry != nil {
			e.registry = registry.Clone()
		}
	}
}

type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}
