// Package notify implements the notification delivery port on top of the
// notification store. Downstream channels (push, in-app) consume the stored
// rows; this core only hands records over.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/internal/domain/entity"
)

// StoreNotifier persists notifications for the notification subsystem to pick
// up. Delivery is best-effort: a missing user id is skipped silently and never
// fails the caller.
type StoreNotifier struct {
	notifications port.NotificationRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewStoreNotifier creates a store-backed notifier.
func NewStoreNotifier(notifications port.NotificationRepository, logger *zap.Logger) *StoreNotifier {
	return &StoreNotifier{
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// Deliver stores the notification addressed to userID and returns its id.
func (n *StoreNotifier) Deliver(ctx context.Context, userID string, notification *entity.Notification) (string, error) {
	if userID == "" {
		n.logger.Debug("Skipping notification without recipient",
			zap.String("type", notification.Type),
			zap.String("task_id", notification.TaskID))
		return "", nil
	}

	stored := *notification
	stored.ID = uuid.NewString()
	stored.UserID = userID
	stored.IsRead = false
	stored.CreatedAt = n.now()

	if err := n.notifications.Create(ctx, &stored); err != nil {
		return "", fmt.Errorf("store notification: %w", err)
	}
	return stored.ID, nil
}

var _ port.Notifier = (*StoreNotifier)(nil)
