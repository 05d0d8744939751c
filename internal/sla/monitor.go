// Package sla watches task deadlines, escalates breaches exactly once, and
// aggregates SLA reports. The monitor holds no scheduler of its own: an
// external cron trigger invokes RunChecks periodically.
package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/internal/domain/automation"
	"github.com/agency-crm/automation-core/internal/domain/entity"
)

// Config holds SLA monitoring parameters.
type Config struct {
	// WarningWindowHours is the span before the deadline in which a task
	// counts as at-risk.
	WarningWindowHours int
	// WarningTTL is the dedupe window: at most one warning per task per TTL.
	WarningTTL time.Duration
}

// DefaultConfig returns the standard 4-hour warning window with a 24-hour
// dedupe TTL.
func DefaultConfig() Config {
	return Config{
		WarningWindowHours: 4,
		WarningTTL:         24 * time.Hour,
	}
}

// Monitor flags overdue tasks and issues at-risk warnings. All sweep methods
// degrade gracefully: a transient failure in a periodic sweep is logged and
// produces an empty result instead of surfacing to the trigger.
type Monitor struct {
	tasks    port.TaskRepository
	notifier port.Notifier
	auditLog port.AutomationLogRepository
	ledger   port.WarningLedger
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// MonitorOption configures the monitor.
type MonitorOption func(*Monitor)

// WithClock overrides the monitor's clock.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor creates an SLA monitor.
func NewMonitor(
	tasks port.TaskRepository,
	notifier port.Notifier,
	auditLog port.AutomationLogRepository,
	ledger port.WarningLedger,
	cfg Config,
	logger *zap.Logger,
	opts ...MonitorOption,
) *Monitor {
	if cfg.WarningWindowHours <= 0 {
		cfg.WarningWindowHours = DefaultConfig().WarningWindowHours
	}
	if cfg.WarningTTL <= 0 {
		cfg.WarningTTL = DefaultConfig().WarningTTL
	}

	m := &Monitor{
		tasks:    tasks,
		notifier: notifier,
		auditLog: auditLog,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunChecks runs the overdue and at-risk sweeps and logs a summary. This is
// the entry point an external cron invokes; the two predicates are mutually
// exclusive, so sweep order does not matter.
func (m *Monitor) RunChecks(ctx context.Context) {
	overdue := m.CheckOverdueTasks(ctx)
	warned := m.CheckSLAWarnings(ctx)

	m.logger.Info("SLA sweep completed",
		zap.Int("newly_overdue", len(overdue)),
		zap.Int("warned", len(warned)))
}

// CheckOverdueTasks scans open tasks and flags every newly-overdue one: the
// status flips to overdue, the assignee is notified, and the breach is logged.
// Safe to call repeatedly: the overdue transition is a conditional update that
// succeeds at most once per task, so re-running produces no duplicates.
func (m *Monitor) CheckOverdueTasks(ctx context.Context) []*entity.Task {
	tasks, err := m.tasks.ListOpen(ctx)
	if err != nil {
		m.logger.Error("Failed to list open tasks for overdue sweep", zap.Error(err))
		return nil
	}

	now := m.now()
	var flagged []*entity.Task

	for _, task := range tasks {
		if task.IsTerminal() || task.Status == entity.TaskStatusOverdue {
			continue
		}
		if !IsOverdue(task, now) {
			continue
		}

		claimed, err := m.tasks.MarkOverdue(ctx, task.ID)
		if err != nil {
			m.logger.Error("Failed to mark task overdue",
				zap.String("task_id", task.ID),
				zap.Error(err))
			continue
		}
		if !claimed {
			// Another sweep got there first.
			continue
		}
		task.Status = entity.TaskStatusOverdue

		hoursOverdue := -RemainingHours(task, now)
		m.notifyOverdue(ctx, task, hoursOverdue)
		m.appendLog(ctx, &automation.TaskOverduePayload{
			TaskID:       task.ID,
			Title:        task.Title,
			AssignedTo:   task.AssignedTo,
			HoursOverdue: hoursOverdue,
		})

		flagged = append(flagged, task)
	}

	return flagged
}

// CheckSLAWarnings scans open, non-overdue tasks and sends at most one warning
// per task per dedupe window to the assignee.
func (m *Monitor) CheckSLAWarnings(ctx context.Context) []*entity.Task {
	tasks, err := m.tasks.ListOpen(ctx)
	if err != nil {
		m.logger.Error("Failed to list open tasks for warning sweep", zap.Error(err))
		return nil
	}

	now := m.now()
	var warned []*entity.Task

	for _, task := range tasks {
		if task.IsTerminal() || task.Status == entity.TaskStatusOverdue {
			continue
		}
		if !IsAtRisk(task, now, m.cfg.WarningWindowHours) {
			continue
		}

		claimed, err := m.ledger.Claim(ctx, task.ID, now.Add(m.cfg.WarningTTL))
		if err != nil {
			m.logger.Error("Failed to claim warning for task",
				zap.String("task_id", task.ID),
				zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		remaining := RemainingHours(task, now)
		m.notifyAtRisk(ctx, task, remaining)
		m.appendLog(ctx, &automation.SLAWarningPayload{
			TaskID:         task.ID,
			Title:          task.Title,
			AssignedTo:     task.AssignedTo,
			RemainingHours: remaining,
		})

		warned = append(warned, task)
	}

	return warned
}

// Report aggregates SLA statistics over tasks created inside [start, end].
// On a read failure it returns a zero-valued report rather than an error.
func (m *Monitor) Report(ctx context.Context, start, end time.Time) *Report {
	report := &Report{StartDate: start, EndDate: end}

	tasks, err := m.tasks.ListCreatedBetween(ctx, start, end)
	if err != nil {
		m.logger.Error("Failed to list tasks for SLA report", zap.Error(err))
		return report
	}

	now := m.now()
	var completionHours float64
	completed := 0

	for _, task := range tasks {
		report.TotalTasks++
		switch {
		case task.Status == entity.TaskStatusCompleted:
			report.OnTime++
			completed++
			completionHours += task.UpdatedAt.Sub(task.CreatedAt).Hours()
		case task.Status == entity.TaskStatusOverdue:
			report.Overdue++
		case !task.IsTerminal() && IsAtRisk(task, now, m.cfg.WarningWindowHours):
			report.AtRisk++
		}
	}

	if completed > 0 {
		report.AverageCompletionHours = completionHours / float64(completed)
	}
	return report
}

// Report is the aggregation returned by Monitor.Report.
type Report struct {
	StartDate              time.Time `json:"start_date"`
	EndDate                time.Time `json:"end_date"`
	TotalTasks             int       `json:"total_tasks"`
	OnTime                 int       `json:"on_time"`
	Overdue                int       `json:"overdue"`
	AtRisk                 int       `json:"at_risk"`
	AverageCompletionHours float64   `json:"average_completion_hours"`
}

// notifyOverdue sends the breach notification to the assignee. Skipped
// silently when the task is unassigned; delivery failures are logged only.
func (m *Monitor) notifyOverdue(ctx context.Context, task *entity.Task, hoursOverdue int) {
	if task.AssignedTo == "" {
		return
	}

	notification := &entity.Notification{
		Type:       entity.NotificationTypeTaskOverdue,
		Title:      "Task overdue",
		Message:    fmt.Sprintf("Task %q is %d hours past its deadline", task.Title, hoursOverdue),
		TaskID:     task.ID,
		WorkflowID: task.WorkflowID,
	}
	if _, err := m.notifier.Deliver(ctx, task.AssignedTo, notification); err != nil {
		m.logger.Error("Failed to deliver overdue notification",
			zap.String("task_id", task.ID),
			zap.String("assigned_to", task.AssignedTo),
			zap.Error(err))
	}
}

// notifyAtRisk sends the SLA warning to the assignee.
func (m *Monitor) notifyAtRisk(ctx context.Context, task *entity.Task, remainingHours int) {
	if task.AssignedTo == "" {
		return
	}

	notification := &entity.Notification{
		Type:       entity.NotificationTypeSLAWarning,
		Title:      "Task approaching deadline",
		Message:    fmt.Sprintf("Task %q is due in %d hours", task.Title, remainingHours),
		TaskID:     task.ID,
		WorkflowID: task.WorkflowID,
	}
	if _, err := m.notifier.Deliver(ctx, task.AssignedTo, notification); err != nil {
		m.logger.Error("Failed to deliver SLA warning",
			zap.String("task_id", task.ID),
			zap.String("assigned_to", task.AssignedTo),
			zap.Error(err))
	}
}

func (m *Monitor) appendLog(ctx context.Context, payload automation.Payload) {
	entry := automation.NewLogEntry(uuid.NewString(), payload, m.now())
	if err := m.auditLog.Append(ctx, entry); err != nil {
		m.logger.Error("Failed to append automation log entry",
			zap.String("entry_type", string(entry.Type)),
			zap.Error(err))
	}
}
