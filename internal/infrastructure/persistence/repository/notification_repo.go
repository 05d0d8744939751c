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

// NotificationRepository implements port.NotificationRepository on SQLite.
// The automation core only writes notifications; reading and read-state are
// the notification subsystem's concern.
type NotificationRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *database.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

// Create persists a notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	var taskID, workflowID sql.NullString
	if notification.TaskID != "" {
		taskID = sql.NullString{String: notification.TaskID, Valid: true}
	}
	if notification.WorkflowID != "" {
		workflowID = sql.NullString{String: notification.WorkflowID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, task_id, workflow_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, notification.ID, notification.UserID, notification.Type, notification.Title,
		notification.Message, taskID, workflowID, notification.IsRead, notification.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.String("notification_id", notification.ID),
			zap.String("user_id", notification.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
