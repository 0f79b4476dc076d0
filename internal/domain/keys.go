package domain

import (
	"fmt"
)

func DefinitionKey(definitionID string) string {
	return fmt.Sprintf("definition:%s", definitionID)
}

func RunStateKey(runID string) string {
	return fmt.Sprintf("run:state:%s", runID)
}

func RunStatusIndexKey(status RunStatus, runID string) string {
	return fmt.Sprintf("run:index:status:%s:%s", status, runID)
}

func StepKey(runID, nodeID string) string {
	return fmt.Sprintf("run:step:%s:%s", runID, nodeID)
}

func StepPrefix(runID string) string {
	return fmt.Sprintf("run:step:%s:", runID)
}

func IdempotencyKey(runID, nodeID string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", runID, nodeID, attempt)
}

func IdempotencyClaimKey(idempotencyKey string) string {
	return fmt.Sprintf("run:idempotency:%s", idempotencyKey)
}

func CredentialKey(orgID string, provider Provider) string {
	return fmt.Sprintf("credential:%s:%s", orgID, provider)
}

func AttemptHistoryKey(runID, nodeID string, attempt int) string {
	return fmt.Sprintf("run:attempt:%s:%s:%04d", runID, nodeID, attempt)
}

func AttemptHistoryPrefix(runID, nodeID string) string {
	return fmt.Sprintf("run:attempt:%s:%s:", runID, nodeID)
}
