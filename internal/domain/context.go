package domain

import (
	"dario.cat/mergo"
)

// MergeContext folds step output into the run's context variable bag.
// Later writers win so a retried attempt overwrites the output of the
// attempt it replaces.
func MergeContext(current, output map[string]interface{}) (map[string]interface{}, error) {
	if current == nil {
		current = make(map[string]interface{})
	}
	if len(output) == 0 {
		return current, nil
	}
	merged := make(map[string]interface{}, len(current)+len(output))
	for k, v := range current {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, output, mergo.WithOverride); err != nil {
		return nil, Error{
			Type:    ErrorTypeInternal,
			Message: "failed to merge run context",
			Details: map[string]interface{}{"error": err.Error()},
		}
	}
	return merged, nil
}
