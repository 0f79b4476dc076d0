package domain

type TaskType string

const (
	TaskTypeDisableAccount TaskType = "disable_account"
	TaskTypeRemoveGroups   TaskType = "remove_groups"
	TaskTypeRevokeLicenses TaskType = "revoke_licenses"
	TaskTypeTransferData   TaskType = "transfer_data"
	TaskTypeRevokeSessions TaskType = "revoke_sessions"
	TaskTypeArchiveMailbox TaskType = "archive_mailbox"
)

type Task struct {
	ID        string                 `json:"id"`
	Type      TaskType               `json:"type"`
	Priority  int                    `json:"priority"`
	DependsOn []string               `json:"depends_on,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// TaskPlan is owned by the step that built it and discarded once the plan
// report is folded into the step output.
type TaskPlan struct {
	Tasks []Task `json:"tasks"`
}

type TaskFailure struct {
	TaskID          string `json:"task_id"`
	Reason          string `json:"reason"`
	UnmetDependency bool   `json:"unmet_dependency"`
}

type TaskReport struct {
	Success        bool          `json:"success"`
	CompletedTasks []string      `json:"completed_tasks"`
	FailedTasks    []TaskFailure `json:"failed_tasks"`
	Warnings       []string      `json:"warnings"`
}
