// Package taskexec runs the dependency-ordered task plans built by
// multi-step executors, such as the account teardown flow. Tasks run in
// ascending priority order; a task whose dependencies did not complete is
// failed without being attempted. The executor never aborts early: every
// remaining task is tried and the full completed/failed/warnings report is
// returned, so a partial teardown is still fully visible to the caller.
package taskexec

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/officeflow/officeflow/internal/domain"
)

// Handler executes a single task type against a provider.
type Handler func(ctx context.Context, task domain.Task) error

type Executor struct {
	handlers map[domain.TaskType]Handler
	critical map[domain.TaskType]bool
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		handlers: make(map[domain.TaskType]Handler),
		critical: make(map[domain.TaskType]bool),
		logger:   logger.With("component", "taskexec"),
	}
}

func (e *Executor) RegisterHandler(taskType domain.TaskType, handler Handler) {
	e.handlers[taskType] = handler
}

// MarkCritical flags a task type whose failure raises an elevated warning
// in the report. Subsequent tasks still run.
func (e *Executor) MarkCritical(taskType domain.TaskType) {
	e.critical[taskType] = true
}

func (e *Executor) Execute(ctx context.Context, plan domain.TaskPlan) domain.TaskReport {
	report := domain.TaskReport{
		CompletedTasks: []string{},
		FailedTasks:    []domain.TaskFailure{},
		Warnings:       []string{},
	}

	ordered := make([]domain.Task, len(plan.Tasks))
	copy(ordered, plan.Tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	completed := make(map[string]bool, len(ordered))

	for _, task := range ordered {
		if unmet := e.unmetDependencies(task, completed); len(unmet) > 0 {
			e.logger.Warn("skipping task with unmet dependencies",
				"task_id", task.ID,
				"task_type", task.Type,
				"unmet", unmet,
			)
			report.FailedTasks = append(report.FailedTasks, domain.TaskFailure{
				TaskID:          task.ID,
				Reason:          fmt.Sprintf("unmet dependencies: %v", unmet),
				UnmetDependency: true,
			})
			continue
		}

		handler, ok := e.handlers[task.Type]
		if !ok {
			report.FailedTasks = append(report.FailedTasks, domain.TaskFailure{
				TaskID: task.ID,
				Reason: fmt.Sprintf("no handler registered for task type %q", task.Type),
			})
			continue
		}

		start := time.Now()
		err := handler(ctx, task)
		duration := time.Since(start)

		if err != nil {
			e.logger.Error("task failed",
				"task_id", task.ID,
				"task_type", task.Type,
				"duration", duration,
				"error", err.Error(),
			)
			report.FailedTasks = append(report.FailedTasks, domain.TaskFailure{
				TaskID: task.ID,
				Reason: err.Error(),
			})
			if e.critical[task.Type] {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("critical task %q (%s) failed: %v; continuing with remaining tasks", task.ID, task.Type, err))
			}
			continue
		}

		e.logger.Debug("task completed",
			"task_id", task.ID,
			"task_type", task.Type,
			"duration", duration,
		)
		completed[task.ID] = true
		report.CompletedTasks = append(report.CompletedTasks, task.ID)
	}

	report.Success = len(report.FailedTasks) == 0
	return report
}

func (e *Executor) unmetDependencies(task domain.Task, completed map[string]bool) []string {
	var unmet []string
	for _, dep := range task.DependsOn {
		if !completed[dep] {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}
