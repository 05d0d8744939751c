package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/pkg/database"
)

// WarningLedger implements port.WarningLedger on a shared SQLite table, so a
// process restart or a second engine instance neither duplicates nor loses
// SLA warnings. Expired claims are purged lazily as part of each Claim.
type WarningLedger struct {
	db     *database.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewWarningLedger creates a store-backed warning ledger.
func NewWarningLedger(db *database.DB, logger *zap.Logger) *WarningLedger {
	return &WarningLedger{db: db, logger: logger, now: time.Now}
}

// Claim records a warning claim for the task unless an unexpired one exists.
// The delete-then-insert pair runs in one transaction; INSERT OR IGNORE makes
// the surviving row the single winner under concurrent sweeps.
func (l *WarningLedger) Claim(ctx context.Context, taskID string, expiresAt time.Time) (bool, error) {
	claimed := false
	err := l.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sla_warnings WHERE task_id = ? AND expires_at <= ?`,
			taskID, l.now()); err != nil {
			return fmt.Errorf("purge expired claim: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sla_warnings (task_id, expires_at) VALUES (?, ?)`,
			taskID, expiresAt)
		if err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		claimed = affected == 1
		return nil
	})
	if err != nil {
		l.logger.Error("Failed to claim SLA warning",
			zap.String("task_id", taskID),
			zap.Error(err))
		return false, fmt.Errorf("failed to claim SLA warning: %w", err)
	}
	return claimed, nil
}

var _ port.WarningLedger = (*WarningLedger)(nil)
