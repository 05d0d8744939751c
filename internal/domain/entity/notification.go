package entity

import "time"

// Notification type constants
const (
	NotificationTypeSLAWarning  = "sla_warning"
	NotificationTypeTaskOverdue = "task_overdue"
)

// Notification is a message addressed to a single user. The automation core
// creates notifications; the notification subsystem owns them afterwards.
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	TaskID     string    `json:"task_id,omitempty"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}
