package port

import (
	"context"

	"github.com/agency-crm/automation-core/internal/domain/entity"
)

// Notifier delivers a notification to a user and returns the stored
// notification id. Delivery is best-effort: implementations must not fail on a
// missing or unknown user id, and callers never roll back on delivery errors.
type Notifier interface {
	Deliver(ctx context.Context, userID string, notification *entity.Notification) (string, error)
}
