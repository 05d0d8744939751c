package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/internal/domain/entity"
	"github.com/agency-crm/automation-core/pkg/database"
)

// TaskRepository implements port.TaskRepository on SQLite. Workflow-owned
// lookups ride the (workflow_id, client_id, step_number) index so the engine
// never scans the full table on a gate check.
type TaskRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *database.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `id, title, description, type, priority, status,
	workflow_id, workflow_name, step_number, client_id, client_name,
	assigned_to, created_by, days_to_complete, due_date, created_at, updated_at`

// Create persists a new task.
func (r *TaskRepository) Create(ctx context.Context, task *entity.Task) error {
	var workflowID, workflowName sql.NullString
	if task.WorkflowID != "" {
		workflowID = sql.NullString{String: task.WorkflowID, Valid: true}
	}
	if task.WorkflowName != "" {
		workflowName = sql.NullString{String: task.WorkflowName, Valid: true}
	}
	var dueDate sql.NullTime
	if task.DueDate != nil {
		dueDate = sql.NullTime{Time: *task.DueDate, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, description, type, priority, status,
			workflow_id, workflow_name, step_number, client_id, client_name,
			assigned_to, created_by, days_to_complete, due_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Title, task.Description, task.Type, task.Priority, task.Status,
		workflowID, workflowName, task.StepNumber, task.ClientID, task.ClientName,
		task.AssignedTo, task.CreatedBy, task.DaysToComplete, dueDate,
		task.CreatedAt, task.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.String("task_id", task.ID),
			zap.String("workflow_id", task.WorkflowID),
			zap.Error(err))
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by id, or nil if absent.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task", zap.String("task_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// GetByWorkflowStep retrieves the newest task for (workflowID, clientID, stepNumber).
func (r *TaskRepository) GetByWorkflowStep(ctx context.Context, workflowID, clientID string, stepNumber int) (*entity.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE workflow_id = ? AND client_id = ? AND step_number = ?
		ORDER BY created_at DESC LIMIT 1
	`, workflowID, clientID, stepNumber)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task by workflow step",
			zap.String("workflow_id", workflowID),
			zap.String("client_id", clientID),
			zap.Int("step_number", stepNumber),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get task by workflow step: %w", err)
	}
	return task, nil
}

// ListByWorkflow retrieves all tasks owned by a workflow.
func (r *TaskRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*entity.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE workflow_id = ? ORDER BY step_number, created_at`, workflowID)
	if err != nil {
		r.logger.Error("Failed to list tasks by workflow", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks by workflow: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListOpen retrieves all tasks not in a terminal status.
func (r *TaskRepository) ListOpen(ctx context.Context) ([]*entity.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status NOT IN (?, ?, ?)
		ORDER BY created_at
	`, entity.TaskStatusCompleted, entity.TaskStatusCancelled, entity.TaskStatusTransferred)
	if err != nil {
		r.logger.Error("Failed to list open tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to list open tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListCreatedBetween retrieves tasks created inside [start, end].
func (r *TaskRepository) ListCreatedBetween(ctx context.Context, start, end time.Time) ([]*entity.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at
	`, start, end)
	if err != nil {
		r.logger.Error("Failed to list tasks by creation range", zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks by creation range: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UpdateStatus sets the task status and refreshes updated_at.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		r.logger.Error("Failed to update task status",
			zap.String("task_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// MarkOverdue flips the task to overdue iff it is still open. The conditional
// update makes the overdue transition happen at most once even under
// overlapping sweeps.
func (r *TaskRepository) MarkOverdue(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status NOT IN (?, ?, ?, ?)
	`, entity.TaskStatusOverdue, id,
		entity.TaskStatusCompleted, entity.TaskStatusCancelled,
		entity.TaskStatusTransferred, entity.TaskStatusOverdue)
	if err != nil {
		r.logger.Error("Failed to mark task overdue", zap.String("task_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark task overdue: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func scanTask(row rowScanner) (*entity.Task, error) {
	var task entity.Task
	var workflowID, workflowName sql.NullString
	var dueDate sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Type,
		&task.Priority,
		&task.Status,
		&workflowID,
		&workflowName,
		&task.StepNumber,
		&task.ClientID,
		&task.ClientName,
		&task.AssignedTo,
		&task.CreatedBy,
		&task.DaysToComplete,
		&dueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if workflowID.Valid {
		task.WorkflowID = workflowID.String
	}
	if workflowName.Valid {
		task.WorkflowName = workflowName.String
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*entity.Task, error) {
	var tasks []*entity.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

var _ port.TaskRepository = (*TaskRepository)(nil)
