package executors

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func stringListParam(params map[string]interface{}, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func int64Param(params map[string]interface{}, key string) int64 {
	switch v := params[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func mapParam(params map[string]interface{}, key string) map[string]interface{} {
	if v, ok := params[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

func valid() ports.ValidationResult {
	return ports.ValidationResult{Valid: true}
}

func invalid(errs ...string) ports.ValidationResult {
	return ports.ValidationResult{Valid: false, Errors: errs}
}

// fetchTokens resolves the org's tokens for a provider. Absent or
// undecryptable credentials are a terminal condition for the step.
func fetchTokens(ctx context.Context, source ports.CredentialSource, orgID string, provider domain.Provider) (domain.TokenSet, *domain.ExecutionError) {
	if source == nil {
		return domain.TokenSet{}, domain.NewExecutionError(domain.ErrClassCredentialsNotFound,
			"no credential source configured")
	}

	cred, err := source.Retrieve(ctx, orgID, provider)
	if err != nil {
		if execErr, ok := err.(*domain.ExecutionError); ok {
			return domain.TokenSet{}, execErr
		}
		return domain.TokenSet{}, domain.NewExecutionError(domain.ErrClassCredentialsNotFound,
			"credential lookup failed: %v", err)
	}
	if cred == nil {
		return domain.TokenSet{}, domain.NewExecutionError(domain.ErrClassCredentialsNotFound,
			"no %s credential stored for organization %s", provider, orgID)
	}
	return cred.Tokens, nil
}

// providerFailure classifies a provider call error: context expiry is a
// timeout handled by the dispatcher, everything else is a retryable
// provider fault.
func providerFailure(ctx context.Context, err error) ports.ExecutionResult {
	if ctx.Err() != nil {
		return ports.FailedResult(domain.NewExecutionError(domain.ErrClassExecution,
			"provider call aborted: %v", ctx.Err()))
	}
	return ports.RetryResult(domain.NewExecutionError(domain.ErrClassProvider, "%v", err))
}
