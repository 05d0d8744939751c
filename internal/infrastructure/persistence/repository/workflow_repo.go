package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/internal/domain/entity"
	"github.com/agency-crm/automation-core/pkg/database"
)

// WorkflowRepository implements port.WorkflowRepository on SQLite.
// Each saved version archives its step snapshot in workflow_steps; the
// workflows row tracks the latest version.
type WorkflowRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *database.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// Create persists the workflow and its step snapshot for workflow.Version.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *entity.Workflow) error {
	err := r.db.WithTransaction(func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflows (id, name, description, is_active, latest_version)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				is_active = excluded.is_active,
				latest_version = excluded.latest_version,
				updated_at = CURRENT_TIMESTAMP
		`, workflow.ID, workflow.Name, workflow.Description, workflow.IsActive, workflow.Version)
		if err != nil {
			return fmt.Errorf("upsert workflow: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM workflow_steps WHERE workflow_id = ? AND version = ?`,
			workflow.ID, workflow.Version); err != nil {
			return fmt.Errorf("clear step snapshot: %w", err)
		}

		for _, step := range workflow.Steps {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO workflow_steps (
					workflow_id, version, step_number, name, description,
					task_type, days_to_complete, assignee_role,
					auto_create, requires_previous_completion
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, workflow.ID, workflow.Version, step.StepNumber, step.Name, step.Description,
				step.TaskType, step.DaysToComplete, step.AssigneeRole,
				step.AutoCreate, step.RequiresPreviousCompletion)
			if err != nil {
				return fmt.Errorf("insert step %d: %w", step.StepNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create workflow",
			zap.String("workflow_id", workflow.ID),
			zap.Int("version", workflow.Version),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetByID retrieves the latest version of a workflow, or nil if absent.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	return r.get(ctx, id, 0)
}

// GetVersion retrieves a pinned version of a workflow, or nil if absent.
func (r *WorkflowRepository) GetVersion(ctx context.Context, id string, version int) (*entity.Workflow, error) {
	return r.get(ctx, id, version)
}

func (r *WorkflowRepository) get(ctx context.Context, id string, version int) (*entity.Workflow, error) {
	var workflow entity.Workflow
	var latest int
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_active, latest_version, created_at, updated_at
		FROM workflows WHERE id = ?
	`, id).Scan(&workflow.ID, &workflow.Name, &workflow.Description,
		&workflow.IsActive, &latest, &workflow.CreatedAt, &workflow.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("workflow_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if version == 0 {
		version = latest
	}
	workflow.Version = version

	rows, err := r.db.QueryContext(ctx, `
		SELECT step_number, name, description, task_type, days_to_complete,
			assignee_role, auto_create, requires_previous_completion
		FROM workflow_steps
		WHERE workflow_id = ? AND version = ?
		ORDER BY step_number
	`, id, version)
	if err != nil {
		r.logger.Error("Failed to get workflow steps",
			zap.String("workflow_id", id),
			zap.Int("version", version),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var step entity.WorkflowStep
		if err := rows.Scan(&step.StepNumber, &step.Name, &step.Description,
			&step.TaskType, &step.DaysToComplete, &step.AssigneeRole,
			&step.AutoCreate, &step.RequiresPreviousCompletion); err != nil {
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		workflow.Steps = append(workflow.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read workflow steps: %w", err)
	}
	if len(workflow.Steps) == 0 {
		// Version never existed
		return nil, nil
	}

	return &workflow, nil
}

var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
