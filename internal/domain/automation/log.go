package automation

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryType identifies the kind of automation log entry.
type EntryType string

const (
	EntryWorkflowStart     EntryType = "workflow_start"
	EntryTaskCreated       EntryType = "task_created"
	EntryStepAdvanced      EntryType = "step_advanced"
	EntryWorkflowCompleted EntryType = "workflow_completed"
	EntrySLAWarning        EntryType = "sla_warning"
	EntryTaskOverdue       EntryType = "task_overdue"
)

// Payload is one well-typed log payload variant. Exactly one payload struct
// exists per entry type, so log consumers never need runtime type inspection
// of an untyped attribute bag.
type Payload interface {
	EntryType() EntryType
}

// LogEntry is one append-only record of an engine or monitor event.
// Entries are never mutated or deleted.
type LogEntry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Details   Payload   `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowStartPayload records the creation of a workflow instance.
type WorkflowStartPayload struct {
	InstanceID   string `json:"instance_id"`
	WorkflowID   string `json:"workflow_id"`
	WorkflowName string `json:"workflow_name"`
	ClientID     string `json:"client_id"`
	ClientName   string `json:"client_name"`
	StartedBy    string `json:"started_by"`
}

func (WorkflowStartPayload) EntryType() EntryType { return EntryWorkflowStart }

// TaskCreatedPayload records a task created for a workflow step.
type TaskCreatedPayload struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	WorkflowID  string    `json:"workflow_id"`
	StepNumber  int       `json:"step_number"`
	ClientID    string    `json:"client_id"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	DueDate     time.Time `json:"due_date"`
	AutoCreated bool      `json:"auto_created"`
}

func (TaskCreatedPayload) EntryType() EntryType { return EntryTaskCreated }

// StepAdvancedPayload records an instance advancing to its next step.
type StepAdvancedPayload struct {
	InstanceID string `json:"instance_id"`
	WorkflowID string `json:"workflow_id"`
	ClientID   string `json:"client_id"`
	FromStep   int    `json:"from_step"`
	ToStep     int    `json:"to_step"`
}

func (StepAdvancedPayload) EntryType() EntryType { return EntryStepAdvanced }

// WorkflowCompletedPayload records an instance reaching its terminal state.
type WorkflowCompletedPayload struct {
	InstanceID string `json:"instance_id"`
	WorkflowID string `json:"workflow_id"`
	ClientID   string `json:"client_id"`
	FinalStep  int    `json:"final_step"`
}

func (WorkflowCompletedPayload) EntryType() EntryType { return EntryWorkflowCompleted }

// SLAWarningPayload records an at-risk warning sent for a task.
type SLAWarningPayload struct {
	TaskID         string `json:"task_id"`
	Title          string `json:"title"`
	AssignedTo     string `json:"assigned_to,omitempty"`
	RemainingHours int    `json:"remaining_hours"`
}

func (SLAWarningPayload) EntryType() EntryType { return EntrySLAWarning }

// TaskOverduePayload records a task crossing its deadline.
type TaskOverduePayload struct {
	TaskID       string `json:"task_id"`
	Title        string `json:"title"`
	AssignedTo   string `json:"assigned_to,omitempty"`
	HoursOverdue int    `json:"hours_overdue"`
}

func (TaskOverduePayload) EntryType() EntryType { return EntryTaskOverdue }

// NewLogEntry builds a log entry for the given payload. The entry type is
// derived from the payload so the two can never disagree.
func NewLogEntry(id string, details Payload, createdAt time.Time) *LogEntry {
	return &LogEntry{
		ID:        id,
		Type:      details.EntryType(),
		Details:   details,
		CreatedAt: createdAt,
	}
}

// DecodePayload unmarshals raw JSON details into the payload variant for the
// given entry type.
func DecodePayload(entryType EntryType, raw []byte) (Payload, error) {
	var p Payload
	switch entryType {
	case EntryWorkflowStart:
		p = &WorkflowStartPayload{}
	case EntryTaskCreated:
		p = &TaskCreatedPayload{}
	case EntryStepAdvanced:
		p = &StepAdvancedPayload{}
	case EntryWorkflowCompleted:
		p = &WorkflowCompletedPayload{}
	case EntrySLAWarning:
		p = &SLAWarningPayload{}
	case EntryTaskOverdue:
		p = &TaskOverduePayload{}
	default:
		return nil, fmt.Errorf("unknown log entry type: %s", entryType)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", entryType, err)
	}
	return p, nil
}
