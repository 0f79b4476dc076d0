// Package evaluator is the default condition and parameter evaluator. The
// engine treats the expression language as opaque; this implementation
// compiles conditions with expr-lang and resolves {{path}} parameter
// references against the run context bag.
package evaluator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/expr-lang/expr"

	"github.com/officeflow/officeflow/internal/domain"
)

type Evaluator struct{}

func New() *Evaluator {
	return &Evaluator{}
}

// EvaluateCondition compiles and runs the expression against the context
// bag. Missing variables evaluate to nil rather than failing compilation,
// so a condition over not-yet-produced output is false, not an error.
func (e *Evaluator) EvaluateCondition(expression string, env map[string]interface{}) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, domain.NewValidationError("expression", "condition expression is empty")
	}
	if env == nil {
		env = map[string]interface{}{}
	}

	program, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return false, domain.NewValidationError("expression",
			fmt.Sprintf("failed to compile condition: %v", err))
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, domain.NewValidationError("expression",
			fmt.Sprintf("failed to evaluate condition: %v", err))
	}

	truthy, ok := result.(bool)
	if !ok {
		return false, domain.NewValidationError("expression",
			fmt.Sprintf("condition must evaluate to a boolean, got %T", result))
	}
	return truthy, nil
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// ResolveParams substitutes {{dotted.path}} placeholders in string params
// with values from the context bag. A placeholder that is the entire string
// keeps the referenced value's type; embedded placeholders stringify.
// Unresolvable paths are left verbatim so the executor's own validation
// can name the missing field.
func (e *Evaluator) ResolveParams(params map[string]interface{}, env map[string]interface{}) (map[string]interface{}, error) {
	if len(params) == 0 {
		return params, nil
	}

	bag := gabs.Wrap(env)
	resolved := make(map[string]interface{}, len(params))
	for key, value := range params {
		resolved[key] = resolveValue(value, bag)
	}
	return resolved, nil
}

func resolveValue(value interface{}, bag *gabs.Container) interface{} {
	switch v := value.(type) {
	case string:
		return resolveString(v, bag)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = resolveValue(inner, bag)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = resolveValue(inner, bag)
		}
		return out
	default:
		return value
	}
}

func resolveString(s string, bag *gabs.Container) interface{} {
	matches := placeholderRe.FindStringSubmatch(s)
	if matches != nil && matches[0] == s {
		if lookup := bag.Path(matches[1]); lookup != nil {
			return lookup.Data()
		}
		return s
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		if lookup := bag.Path(path); lookup != nil {
			return fmt.Sprintf("%v", lookup.Data())
		}
		return match
	})
}
