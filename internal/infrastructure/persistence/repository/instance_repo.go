package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/internal/domain/automation"
	"github.com/agency-crm/automation-core/internal/domain/entity"
	"github.com/agency-crm/automation-core/pkg/database"
)

// InstanceRepository implements port.InstanceRepository on SQLite.
type InstanceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *database.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `id, workflow_id, workflow_version, workflow_name,
	client_id, client_name, started_by, current_step, status, revision,
	started_at, completed_at`

// Create persists a new instance at revision 0.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.WorkflowInstance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (
			id, workflow_id, workflow_version, workflow_name,
			client_id, client_name, started_by, current_step, status, revision, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, instance.ID, instance.WorkflowID, instance.WorkflowVersion, instance.WorkflowName,
		instance.ClientID, instance.ClientName, instance.StartedBy,
		instance.CurrentStep, instance.Status, instance.StartedAt)
	if err != nil {
		r.logger.Error("Failed to create workflow instance",
			zap.String("instance_id", instance.ID),
			zap.String("workflow_id", instance.WorkflowID),
			zap.Error(err))
		return fmt.Errorf("failed to create workflow instance: %w", err)
	}
	instance.Revision = 0
	return nil
}

// GetByID retrieves an instance by id, or nil if absent.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances WHERE id = ?`, id)

	instance, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow instance", zap.String("instance_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	return instance, nil
}

// GetByClient retrieves all instances for a client, newest first.
func (r *InstanceRepository) GetByClient(ctx context.Context, clientID string) ([]*entity.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances
		 WHERE client_id = ? ORDER BY started_at DESC`, clientID)
	if err != nil {
		r.logger.Error("Failed to get instances by client", zap.String("client_id", clientID), zap.Error(err))
		return nil, fmt.Errorf("failed to get instances by client: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// GetActive retrieves active instances for (workflowID, clientID), newest first.
func (r *InstanceRepository) GetActive(ctx context.Context, workflowID, clientID string) ([]*entity.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances
		 WHERE workflow_id = ? AND client_id = ? AND status = ?
		 ORDER BY started_at DESC`, workflowID, clientID, entity.InstanceStatusActive)
	if err != nil {
		r.logger.Error("Failed to get active instances",
			zap.String("workflow_id", workflowID),
			zap.String("client_id", clientID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// Update persists the instance with a compare-and-swap on Revision.
func (r *InstanceRepository) Update(ctx context.Context, instance *entity.WorkflowInstance) error {
	var completedAt sql.NullTime
	if instance.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *instance.CompletedAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_instances
		SET current_step = ?, status = ?, completed_at = ?, revision = revision + 1
		WHERE id = ? AND revision = ?
	`, instance.CurrentStep, instance.Status, completedAt, instance.ID, instance.Revision)
	if err != nil {
		r.logger.Error("Failed to update workflow instance",
			zap.String("instance_id", instance.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update workflow instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("instance %s revision %d: %w", instance.ID, instance.Revision, automation.ErrStaleInstance)
	}

	instance.Revision++
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*entity.WorkflowInstance, error) {
	var instance entity.WorkflowInstance
	var completedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.WorkflowID,
		&instance.WorkflowVersion,
		&instance.WorkflowName,
		&instance.ClientID,
		&instance.ClientName,
		&instance.StartedBy,
		&instance.CurrentStep,
		&instance.Status,
		&instance.Revision,
		&instance.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}
	return &instance, nil
}

func scanInstances(rows *sql.Rows) ([]*entity.WorkflowInstance, error) {
	var instances []*entity.WorkflowInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)
