package taskexec

import (
	"context"
	"errors"
	"testing"

	"github.com/officeflow/officeflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func teardownPlan() domain.TaskPlan {
	return domain.TaskPlan{Tasks: []domain.Task{
		{ID: "disable", Type: domain.TaskTypeDisableAccount, Priority: 1},
		{ID: "remove-groups", Type: domain.TaskTypeRemoveGroups, Priority: 2, DependsOn: []string{"disable"}},
		{ID: "revoke-licenses", Type: domain.TaskTypeRevokeLicenses, Priority: 3, DependsOn: []string{"remove-groups"}},
	}}
}

func TestExecute_AllSucceed(t *testing.T) {
	e := New(nil)

	var order []string
	for _, tt := range []domain.TaskType{
		domain.TaskTypeDisableAccount,
		domain.TaskTypeRemoveGroups,
		domain.TaskTypeRevokeLicenses,
	} {
		taskType := tt
		e.RegisterHandler(taskType, func(_ context.Context, task domain.Task) error {
			order = append(order, task.ID)
			return nil
		})
	}

	report := e.Execute(context.Background(), teardownPlan())

	assert.True(t, report.Success)
	assert.Equal(t, []string{"disable", "remove-groups", "revoke-licenses"}, report.CompletedTasks)
	assert.Equal(t, []string{"disable", "remove-groups", "revoke-licenses"}, order)
	assert.Empty(t, report.FailedTasks)
}

func TestExecute_RootFailureCascadesWithoutAttempts(t *testing.T) {
	e := New(nil)

	attempted := map[string]int{}
	e.RegisterHandler(domain.TaskTypeDisableAccount, func(_ context.Context, task domain.Task) error {
		attempted[task.ID]++
		return errors.New("provider unavailable")
	})
	e.RegisterHandler(domain.TaskTypeRemoveGroups, func(_ context.Context, task domain.Task) error {
		attempted[task.ID]++
		return nil
	})
	e.RegisterHandler(domain.TaskTypeRevokeLicenses, func(_ context.Context, task domain.Task) error {
		attempted[task.ID]++
		return nil
	})

	report := e.Execute(context.Background(), teardownPlan())

	assert.False(t, report.Success)
	assert.Empty(t, report.CompletedTasks)
	require.Len(t, report.FailedTasks, 3)

	assert.Equal(t, "disable", report.FailedTasks[0].TaskID)
	assert.False(t, report.FailedTasks[0].UnmetDependency)

	assert.Equal(t, "remove-groups", report.FailedTasks[1].TaskID)
	assert.True(t, report.FailedTasks[1].UnmetDependency)
	assert.Equal(t, "revoke-licenses", report.FailedTasks[2].TaskID)
	assert.True(t, report.FailedTasks[2].UnmetDependency)

	// Dependents were failed without being attempted.
	assert.Equal(t, 1, attempted["disable"])
	assert.Zero(t, attempted["remove-groups"])
	assert.Zero(t, attempted["revoke-licenses"])
}

func TestExecute_CriticalFailureWarnsAndContinues(t *testing.T) {
	e := New(nil)
	e.MarkCritical(domain.TaskTypeDisableAccount)

	e.RegisterHandler(domain.TaskTypeDisableAccount, func(context.Context, domain.Task) error {
		return errors.New("account not found")
	})
	e.RegisterHandler(domain.TaskTypeArchiveMailbox, func(context.Context, domain.Task) error {
		return nil
	})

	plan := domain.TaskPlan{Tasks: []domain.Task{
		{ID: "disable", Type: domain.TaskTypeDisableAccount, Priority: 1},
		{ID: "archive", Type: domain.TaskTypeArchiveMailbox, Priority: 2},
	}}

	report := e.Execute(context.Background(), plan)

	assert.False(t, report.Success)
	assert.Equal(t, []string{"archive"}, report.CompletedTasks)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "critical task")
}

func TestExecute_MidPlanFailureStillRunsIndependentTasks(t *testing.T) {
	e := New(nil)

	e.RegisterHandler(domain.TaskTypeDisableAccount, func(context.Context, domain.Task) error { return nil })
	e.RegisterHandler(domain.TaskTypeRemoveGroups, func(context.Context, domain.Task) error {
		return errors.New("group api quota exceeded")
	})
	e.RegisterHandler(domain.TaskTypeRevokeSessions, func(context.Context, domain.Task) error { return nil })

	plan := domain.TaskPlan{Tasks: []domain.Task{
		{ID: "disable", Type: domain.TaskTypeDisableAccount, Priority: 1},
		{ID: "groups", Type: domain.TaskTypeRemoveGroups, Priority: 2, DependsOn: []string{"disable"}},
		{ID: "sessions", Type: domain.TaskTypeRevokeSessions, Priority: 3, DependsOn: []string{"disable"}},
	}}

	report := e.Execute(context.Background(), plan)

	assert.False(t, report.Success)
	assert.Equal(t, []string{"disable", "sessions"}, report.CompletedTasks)
	require.Len(t, report.FailedTasks, 1)
	assert.Equal(t, "groups", report.FailedTasks[0].TaskID)
}

func TestExecute_PriorityOrderingIsStable(t *testing.T) {
	e := New(nil)

	var order []string
	e.RegisterHandler(domain.TaskTypeRevokeSessions, func(_ context.Context, task domain.Task) error {
		order = append(order, task.ID)
		return nil
	})

	plan := domain.TaskPlan{Tasks: []domain.Task{
		{ID: "c", Type: domain.TaskTypeRevokeSessions, Priority: 2},
		{ID: "a", Type: domain.TaskTypeRevokeSessions, Priority: 1},
		{ID: "b", Type: domain.TaskTypeRevokeSessions, Priority: 2},
	}}

	report := e.Execute(context.Background(), plan)

	assert.True(t, report.Success)
	assert.Equal(t, []string{"a", "c", "b"}, order, "equal priorities keep plan order")
}

func TestExecute_MissingHandler(t *testing.T) {
	e := New(nil)

	plan := domain.TaskPlan{Tasks: []domain.Task{
		{ID: "x", Type: domain.TaskTypeTransferData, Priority: 1},
	}}

	report := e.Execute(context.Background(), plan)

	assert.False(t, report.Success)
	require.Len(t, report.FailedTasks, 1)
	assert.Contains(t, report.FailedTasks[0].Reason, "no handler registered")
}

func TestExecute_EmptyPlan(t *testing.T) {
	e := New(nil)

	report := e.Execute(context.Background(), domain.TaskPlan{})

	assert.True(t, report.Success)
	assert.Empty(t, report.CompletedTasks)
	assert.Empty(t, report.FailedTasks)
}
