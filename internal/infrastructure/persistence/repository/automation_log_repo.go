package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/internal/domain/automation"
	"github.com/agency-crm/automation-core/pkg/database"
)

// AutomationLogRepository implements the append-only automation audit log on
// SQLite. Entries are inserted once and never updated or deleted.
type AutomationLogRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAutomationLogRepository creates a new automation log repository.
func NewAutomationLogRepository(db *database.DB, logger *zap.Logger) port.AutomationLogRepository {
	return &AutomationLogRepository{db: db, logger: logger}
}

// Append persists a log entry with its payload serialized as JSON.
func (r *AutomationLogRepository) Append(ctx context.Context, entry *automation.LogEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal log details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_log (id, type, details, created_at)
		VALUES (?, ?, ?, ?)
	`, entry.ID, string(entry.Type), string(details), entry.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to append automation log entry",
			zap.String("entry_id", entry.ID),
			zap.String("type", string(entry.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to append automation log entry: %w", err)
	}
	return nil
}

// ListRecent retrieves the newest entries for the live-activity feed.
func (r *AutomationLogRepository) ListRecent(ctx context.Context, limit int) ([]*automation.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, details, created_at
		FROM automation_log
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		r.logger.Error("Failed to list automation log entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list automation log entries: %w", err)
	}
	defer rows.Close()

	var entries []*automation.LogEntry
	for rows.Next() {
		var entry automation.LogEntry
		var entryType, details string
		if err := rows.Scan(&entry.ID, &entryType, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan automation log entry: %w", err)
		}

		entry.Type = automation.EntryType(entryType)
		payload, err := automation.DecodePayload(entry.Type, []byte(details))
		if err != nil {
			return nil, fmt.Errorf("failed to decode log entry %s: %w", entry.ID, err)
		}
		entry.Details = payload
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

var _ port.AutomationLogRepository = (*AutomationLogRepository)(nil)
