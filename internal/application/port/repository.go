package port

import (
	"context"
	"time"

	"github.com/agency-crm/automation-core/internal/domain/automation"
	"github.com/agency-crm/automation-core/internal/domain/entity"
)

// WorkflowRepository defines persistence operations for Workflow definitions.
// Definitions are immutable once referenced by an instance: every edit is a new
// version, and old versions stay readable through GetVersion.
type WorkflowRepository interface {
	// Create persists a workflow definition (a new id or a new version of an
	// existing id).
	Create(ctx context.Context, workflow *entity.Workflow) error

	// GetByID retrieves the latest version of a workflow, or nil if absent.
	GetByID(ctx context.Context, id string) (*entity.Workflow, error)

	// GetVersion retrieves a pinned version of a workflow, or nil if absent.
	GetVersion(ctx context.Context, id string, version int) (*entity.Workflow, error)
}

// InstanceRepository defines persistence operations for WorkflowInstance.
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error

	// GetByID retrieves an instance by id, or nil if absent.
	GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error)

	// GetByClient retrieves all instances for a client, newest first.
	GetByClient(ctx context.Context, clientID string) ([]*entity.WorkflowInstance, error)

	// GetActive retrieves the active instances for (workflowID, clientID),
	// newest first. The engine enforces at-most-one at start time but must
	// tolerate historic duplicates.
	GetActive(ctx context.Context, workflowID, clientID string) ([]*entity.WorkflowInstance, error)

	// Update persists the instance with a compare-and-swap on Revision.
	// Returns automation.ErrStaleInstance when the stored revision no longer
	// matches, and bumps instance.Revision on success.
	Update(ctx context.Context, instance *entity.WorkflowInstance) error
}

// TaskRepository defines persistence operations for Task.
type TaskRepository interface {
	Create(ctx context.Context, task *entity.Task) error

	// GetByID retrieves a task by id, or nil if absent.
	GetByID(ctx context.Context, id string) (*entity.Task, error)

	// GetByWorkflowStep retrieves the task for (workflowID, clientID,
	// stepNumber), or nil if absent. Backed by a composite index; the newest
	// task wins if duplicates exist.
	GetByWorkflowStep(ctx context.Context, workflowID, clientID string, stepNumber int) (*entity.Task, error)

	// ListByWorkflow retrieves all tasks owned by a workflow.
	ListByWorkflow(ctx context.Context, workflowID string) ([]*entity.Task, error)

	// ListOpen retrieves all tasks not yet in a terminal status.
	ListOpen(ctx context.Context) ([]*entity.Task, error)

	// ListCreatedBetween retrieves tasks whose CreatedAt falls in [start, end].
	ListCreatedBetween(ctx context.Context, start, end time.Time) ([]*entity.Task, error)

	// UpdateStatus sets the task status and refreshes UpdatedAt.
	UpdateStatus(ctx context.Context, id, status string) error

	// MarkOverdue flips a task to overdue iff it is still in a non-terminal,
	// non-overdue status. Returns true when this call performed the
	// transition, false when another sweep already did (or the task moved to
	// a terminal status in between).
	MarkOverdue(ctx context.Context, id string) (bool, error)
}

// AutomationLogRepository defines the append-only automation audit log.
type AutomationLogRepository interface {
	// Append persists a log entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry *automation.LogEntry) error

	// ListRecent retrieves the newest entries for the live-activity feed.
	ListRecent(ctx context.Context, limit int) ([]*automation.LogEntry, error)
}

// NotificationRepository defines persistence operations for Notification.
type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
}

// WarningLedger is the keyed dedupe store for SLA warnings: key = task id,
// value = expiry timestamp. Backed by a shared table so process restarts or
// horizontal scaling neither duplicate nor lose warnings.
type WarningLedger interface {
	// Claim records a warning for the task expiring at expiresAt. Returns true
	// when no unexpired claim existed (the caller should send the warning) and
	// false when the task was already warned within the current window.
	Claim(ctx context.Context, taskID string, expiresAt time.Time) (bool, error)
}
