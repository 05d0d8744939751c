package entity

import "time"

// Task status constants
const (
	TaskStatusNew         = "new"
	TaskStatusInProgress  = "in_progress"
	TaskStatusCompleted   = "completed"
	TaskStatusCancelled   = "cancelled"
	TaskStatusOverdue     = "overdue"
	TaskStatusTransferred = "transferred"
)

// Task is a unit of work tracked by the generic task subsystem.
// A task is workflow-owned iff WorkflowID and StepNumber are set; the engine
// creates such tasks and afterwards only reads their status to decide
// advancement.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Priority    string `json:"priority,omitempty"`
	Status      string `json:"status"`

	// Workflow ownership (zero values for standalone tasks)
	WorkflowID   string `json:"workflow_id,omitempty"`
	WorkflowName string `json:"workflow_name,omitempty"`
	StepNumber   int    `json:"step_number,omitempty"`

	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	CreatedBy  string `json:"created_by,omitempty"`

	// SLA inputs: deadline = CreatedAt + DaysToComplete days (default 1)
	DaysToComplete int        `json:"days_to_complete,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var terminalTaskStatuses = map[string]bool{
	TaskStatusCompleted:   true,
	TaskStatusCancelled:   true,
	TaskStatusTransferred: true,
}

// IsWorkflowOwned reports whether the task belongs to a workflow step.
func (t *Task) IsWorkflowOwned() bool {
	return t.WorkflowID != "" && t.StepNumber > 0
}

// IsTerminal reports whether the task has reached a final status.
// Overdue is not terminal: an overdue task can still be completed.
func (t *Task) IsTerminal() bool {
	return terminalTaskStatuses[t.Status]
}
