package executors

import (
	"context"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/officeflow/officeflow/internal/ports"
)

// TriggerExecutor completes immediately with the trigger payload as
// output; the payload was already folded into the run context when the
// run was seeded.
type TriggerExecutor struct{}

func NewTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{}
}

func (e *TriggerExecutor) Type() domain.NodeType {
	return domain.NodeTypeTrigger
}

func (e *TriggerExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	return valid()
}

func (e *TriggerExecutor) Execute(_ context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	output := map[string]interface{}{
		"event": stringParam(input.Params, "event"),
	}
	if trigger := mapParam(input.Context, "trigger"); trigger != nil {
		output["payload"] = trigger
	}
	return ports.SuccessResult(output)
}

func (e *TriggerExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeTrigger,
		Description: "Entry point fired by a lifecycle event",
		Properties: map[string]ports.SchemaField{
			"event": {Type: "string", Description: "lifecycle event name, e.g. employee.onboarding"},
		},
	}
}

// ScheduleExecutor is the entry point for time-based runs. The wall-clock
// firing itself comes from an external trigger source; by the time this
// executes, the schedule has already fired.
type ScheduleExecutor struct{}

func NewScheduleExecutor() *ScheduleExecutor {
	return &ScheduleExecutor{}
}

func (e *ScheduleExecutor) Type() domain.NodeType {
	return domain.NodeTypeSchedule
}

func (e *ScheduleExecutor) Validate(params map[string]interface{}) ports.ValidationResult {
	if stringParam(params, "cron") == "" {
		return invalid("schedule requires a cron expression")
	}
	return valid()
}

func (e *ScheduleExecutor) Execute(_ context.Context, input ports.ExecutionInput) ports.ExecutionResult {
	return ports.SuccessResult(map[string]interface{}{
		"cron": stringParam(input.Params, "cron"),
	})
}

func (e *ScheduleExecutor) Schema() ports.Schema {
	return ports.Schema{
		Type:        domain.NodeTypeSchedule,
		Description: "Entry point fired by an external schedule",
		Required:    []string{"cron"},
		Properties: map[string]ports.SchemaField{
			"cron": {Type: "string", Description: "cron expression evaluated by the external trigger source"},
		},
	}
}
