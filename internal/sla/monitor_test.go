package sla

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/domain/automation"
	"github.com/agency-crm/automation-core/internal/domain/entity"
)

// mockTaskStore is an in-memory TaskRepository for monitor tests.
type mockTaskStore struct {
	tasks   map[string]*entity.Task
	listErr error
}

func newMockTaskStore(tasks ...*entity.Task) *mockTaskStore {
	store := &mockTaskStore{tasks: make(map[string]*entity.Task)}
	for _, task := range tasks {
		store.tasks[task.ID] = task
	}
	return store
}

func (s *mockTaskStore) Create(_ context.Context, task *entity.Task) error {
	s.tasks[task.ID] = task
	return nil
}

func (s *mockTaskStore) GetByID(_ context.Context, id string) (*entity.Task, error) {
	return s.tasks[id], nil
}

func (s *mockTaskStore) GetByWorkflowStep(_ context.Context, workflowID, clientID string, stepNumber int) (*entity.Task, error) {
	for _, task := range s.tasks {
		if task.WorkflowID == workflowID && task.ClientID == clientID && task.StepNumber == stepNumber {
			return task, nil
		}
	}
	return nil, nil
}

func (s *mockTaskStore) ListByWorkflow(_ context.Context, workflowID string) ([]*entity.Task, error) {
	var out []*entity.Task
	for _, task := range s.tasks {
		if task.WorkflowID == workflowID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *mockTaskStore) ListOpen(_ context.Context) ([]*entity.Task, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*entity.Task
	for _, task := range s.tasks {
		if !task.IsTerminal() {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *mockTaskStore) ListCreatedBetween(_ context.Context, start, end time.Time) ([]*entity.Task, error) {
	var out []*entity.Task
	for _, task := range s.tasks {
		if !task.CreatedAt.Before(start) && !task.CreatedAt.After(end) {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *mockTaskStore) UpdateStatus(_ context.Context, id, status string) error {
	if task, ok := s.tasks[id]; ok {
		task.Status = status
	}
	return nil
}

func (s *mockTaskStore) MarkOverdue(_ context.Context, id string) (bool, error) {
	task, ok := s.tasks[id]
	if !ok || task.IsTerminal() || task.Status == entity.TaskStatusOverdue {
		return false, nil
	}
	task.Status = entity.TaskStatusOverdue
	return true, nil
}

// mockNotifier records every delivery.
type mockNotifier struct {
	delivered []*entity.Notification
	users     []string
}

func (n *mockNotifier) Deliver(_ context.Context, userID string, notification *entity.Notification) (string, error) {
	n.delivered = append(n.delivered, notification)
	n.users = append(n.users, userID)
	return "notif-id", nil
}

// mockAuditLog records appended entries.
type mockAuditLog struct {
	entries []*automation.LogEntry
}

func (l *mockAuditLog) Append(_ context.Context, entry *automation.LogEntry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *mockAuditLog) ListRecent(_ context.Context, limit int) ([]*automation.LogEntry, error) {
	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]*automation.LogEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

func (l *mockAuditLog) entryTypes() []automation.EntryType {
	types := make([]automation.EntryType, 0, len(l.entries))
	for _, entry := range l.entries {
		types = append(types, entry.Type)
	}
	return types
}

type monitorFixture struct {
	monitor  *Monitor
	tasks    *mockTaskStore
	notifier *mockNotifier
	auditLog *mockAuditLog
}

func newMonitorFixture(t *testing.T, now time.Time, tasks ...*entity.Task) *monitorFixture {
	t.Helper()

	store := newMockTaskStore(tasks...)
	notifier := &mockNotifier{}
	auditLog := &mockAuditLog{}
	ledger := NewMemoryWarningLedger()
	ledger.now = func() time.Time { return now }

	monitor := NewMonitor(store, notifier, auditLog, ledger, DefaultConfig(), zap.NewNop(),
		WithClock(func() time.Time { return now }))

	return &monitorFixture{monitor: monitor, tasks: store, notifier: notifier, auditLog: auditLog}
}

func TestCheckOverdueTasks(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("flags an overdue task exactly once", func(t *testing.T) {
		task := &entity.Task{
			ID:             "t1",
			Title:          "Collect signed forms",
			Status:         entity.TaskStatusInProgress,
			AssignedTo:     "agent-7",
			DaysToComplete: 1,
			CreatedAt:      now.Add(-30 * time.Hour),
		}
		f := newMonitorFixture(t, now, task)

		flagged := f.monitor.CheckOverdueTasks(ctx)
		require.Len(t, flagged, 1)
		assert.Equal(t, entity.TaskStatusOverdue, task.Status)

		require.Len(t, f.notifier.delivered, 1)
		assert.Equal(t, "agent-7", f.notifier.users[0])
		assert.Equal(t, entity.NotificationTypeTaskOverdue, f.notifier.delivered[0].Type)

		require.Len(t, f.auditLog.entries, 1)
		assert.Equal(t, automation.EntryTaskOverdue, f.auditLog.entries[0].Type)
		payload, ok := f.auditLog.entries[0].Details.(*automation.TaskOverduePayload)
		require.True(t, ok)
		assert.Equal(t, 6, payload.HoursOverdue)

		// A second sweep finds nothing new.
		assert.Empty(t, f.monitor.CheckOverdueTasks(ctx))
		assert.Len(t, f.notifier.delivered, 1)
		assert.Len(t, f.auditLog.entries, 1)
	})

	t.Run("skips unassigned tasks for notification but still logs", func(t *testing.T) {
		task := &entity.Task{
			ID:        "t2",
			Title:     "Unowned follow-up",
			Status:    entity.TaskStatusNew,
			CreatedAt: now.Add(-48 * time.Hour),
		}
		f := newMonitorFixture(t, now, task)

		flagged := f.monitor.CheckOverdueTasks(ctx)
		require.Len(t, flagged, 1)
		assert.Empty(t, f.notifier.delivered)
		assert.Len(t, f.auditLog.entries, 1)
	})

	t.Run("ignores tasks still inside their window", func(t *testing.T) {
		task := &entity.Task{
			ID:             "t3",
			Status:         entity.TaskStatusNew,
			DaysToComplete: 3,
			CreatedAt:      now.Add(-24 * time.Hour),
		}
		f := newMonitorFixture(t, now, task)

		assert.Empty(t, f.monitor.CheckOverdueTasks(ctx))
		assert.Empty(t, f.notifier.delivered)
	})

	t.Run("ignores terminal tasks regardless of deadline", func(t *testing.T) {
		task := &entity.Task{
			ID:        "t4",
			Status:    entity.TaskStatusCancelled,
			CreatedAt: now.Add(-72 * time.Hour),
		}
		f := newMonitorFixture(t, now, task)

		assert.Empty(t, f.monitor.CheckOverdueTasks(ctx))
	})
}

func TestCheckSLAWarnings(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("warns an at-risk task once per dedupe window", func(t *testing.T) {
		// 3 hours remain out of a 24-hour window.
		task := &entity.Task{
			ID:             "t1",
			Title:          "Submit policy documents",
			Status:         entity.TaskStatusInProgress,
			AssignedTo:     "agent-3",
			DaysToComplete: 1,
			CreatedAt:      now.Add(-21 * time.Hour),
		}
		f := newMonitorFixture(t, now, task)

		warned := f.monitor.CheckSLAWarnings(ctx)
		require.Len(t, warned, 1)

		require.Len(t, f.notifier.delivered, 1)
		assert.Equal(t, entity.NotificationTypeSLAWarning, f.notifier.delivered[0].Type)

		require.Len(t, f.auditLog.entries, 1)
		payload, ok := f.auditLog.entries[0].Details.(*automation.SLAWarningPayload)
		require.True(t, ok)
		assert.Equal(t, 3, payload.RemainingHours)

		// Re-running inside the dedupe window stays silent.
		assert.Empty(t, f.monitor.CheckSLAWarnings(ctx))
		assert.Len(t, f.notifier.delivered, 1)
	})

	t.Run("leaves tasks outside the warning window alone", func(t *testing.T) {
		task := &entity.Task{
			ID:             "t2",
			Status:         entity.TaskStatusNew,
			AssignedTo:     "agent-3",
			DaysToComplete: 2,
			CreatedAt:      now.Add(-10 * time.Hour),
		}
		f := newMonitorFixture(t, now, task)

		assert.Empty(t, f.monitor.CheckSLAWarnings(ctx))
		assert.Empty(t, f.notifier.delivered)
	})

	t.Run("never warns an overdue task", func(t *testing.T) {
		task := &entity.Task{
			ID:             "t3",
			Status:         entity.TaskStatusOverdue,
			AssignedTo:     "agent-3",
			DaysToComplete: 1,
			CreatedAt:      now.Add(-30 * time.Hour),
		}
		f := newMonitorFixture(t, now, task)

		assert.Empty(t, f.monitor.CheckSLAWarnings(ctx))
	})
}

func TestRunChecks_BucketsAreDisjoint(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	overdue := &entity.Task{
		ID:             "late",
		Status:         entity.TaskStatusInProgress,
		AssignedTo:     "agent-1",
		DaysToComplete: 1,
		CreatedAt:      now.Add(-26 * time.Hour),
	}
	atRisk := &entity.Task{
		ID:             "closing-in",
		Status:         entity.TaskStatusInProgress,
		AssignedTo:     "agent-2",
		DaysToComplete: 1,
		CreatedAt:      now.Add(-22 * time.Hour),
	}
	f := newMonitorFixture(t, now, overdue, atRisk)

	f.monitor.RunChecks(ctx)

	// One notification per task, each from exactly one sweep.
	require.Len(t, f.notifier.delivered, 2)
	assert.ElementsMatch(t,
		[]automation.EntryType{automation.EntryTaskOverdue, automation.EntrySLAWarning},
		f.auditLog.entryTypes())
}

func TestReport(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-7 * 24 * time.Hour)
	ctx := context.Background()

	completedFast := &entity.Task{
		ID:        "done-1",
		Status:    entity.TaskStatusCompleted,
		CreatedAt: now.Add(-50 * time.Hour),
		UpdatedAt: now.Add(-40 * time.Hour),
	}
	completedSlow := &entity.Task{
		ID:        "done-2",
		Status:    entity.TaskStatusCompleted,
		CreatedAt: now.Add(-60 * time.Hour),
		UpdatedAt: now.Add(-40 * time.Hour),
	}
	overdue := &entity.Task{
		ID:        "late",
		Status:    entity.TaskStatusOverdue,
		CreatedAt: now.Add(-48 * time.Hour),
	}
	atRisk := &entity.Task{
		ID:             "closing-in",
		Status:         entity.TaskStatusInProgress,
		DaysToComplete: 1,
		CreatedAt:      now.Add(-22 * time.Hour),
	}
	healthy := &entity.Task{
		ID:             "fresh",
		Status:         entity.TaskStatusNew,
		DaysToComplete: 5,
		CreatedAt:      now.Add(-2 * time.Hour),
	}
	outsideRange := &entity.Task{
		ID:        "ancient",
		Status:    entity.TaskStatusCompleted,
		CreatedAt: now.Add(-30 * 24 * time.Hour),
		UpdatedAt: now.Add(-29 * 24 * time.Hour),
	}

	f := newMonitorFixture(t, now, completedFast, completedSlow, overdue, atRisk, healthy, outsideRange)

	report := f.monitor.Report(ctx, start, now)
	require.NotNil(t, report)

	assert.Equal(t, 5, report.TotalTasks)
	assert.Equal(t, 2, report.OnTime)
	assert.Equal(t, 1, report.Overdue)
	assert.Equal(t, 1, report.AtRisk)
	// (10h + 20h) / 2
	assert.InDelta(t, 15.0, report.AverageCompletionHours, 0.001)
}
