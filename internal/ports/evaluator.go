package ports

// ConditionEvaluator decides which outgoing handle a condition step
// resolves. Implementations compile the expression against the run context
// bag; the engine treats the expression language as opaque.
type ConditionEvaluator interface {
	EvaluateCondition(expression string, env map[string]interface{}) (bool, error)
}

// ParamResolver substitutes context references inside node params before
// they reach an executor.
type ParamResolver interface {
	ResolveParams(params map[string]interface{}, env map[string]interface{}) (map[string]interface{}, error)
}
