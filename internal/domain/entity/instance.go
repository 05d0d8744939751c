package entity

import "time"

// Instance status constants
const (
	InstanceStatusActive    = "active"
	InstanceStatusCompleted = "completed"
)

// WorkflowInstance is one running execution of a Workflow for a specific client.
// CurrentStep advances monotonically until no next step exists, then the
// instance transitions to completed and is never mutated again.
//
// WorkflowVersion pins the definition snapshot the instance was started with,
// so editing a workflow never changes the meaning of CurrentStep for instances
// already in flight.
//
// Revision implements optimistic concurrency: every update is a compare-and-swap
// against the revision read, and a lost race surfaces as ErrStaleInstance
// instead of a silent double-advance.
type WorkflowInstance struct {
	ID              string     `json:"id"`
	WorkflowID      string     `json:"workflow_id"`
	WorkflowVersion int        `json:"workflow_version"`
	WorkflowName    string     `json:"workflow_name"`
	ClientID        string     `json:"client_id"`
	ClientName      string     `json:"client_name"`
	StartedBy       string     `json:"started_by"`
	CurrentStep     int        `json:"current_step"`
	Status          string     `json:"status"`
	Revision        int64      `json:"revision"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// IsActive returns true while the instance can still advance.
func (i *WorkflowInstance) IsActive() bool {
	return i.Status == InstanceStatusActive
}
