package engine

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

// mockWorkflowRepo holds workflow definitions keyed by id and version.
type mockWorkflowRepo struct {
	workflows map[string][]*entity.Workflow
}

func newMockWorkflowRepo(workflows ...*entity.Workflow) *mockWorkflowRepo {
	repo := &mockWorkflowRepo{workflows: make(map[string][]*entity.Workflow)}
	for _, w := range workflows {
		repo.workflows[w.ID] = append(repo.workflows[w.ID], w)
	}
	return repo
}

func (r *mockWorkflowRepo) Create(_ context.Context, workflow *entity.Workflow) error {
	r.workflows[workflow.ID] = append(r.workflows[workflow.ID], workflow)
	return nil
}

func (r *mockWorkflowRepo) GetByID(_ context.Context, id string) (*entity.Workflow, error) {
	versions := r.workflows[id]
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[len(versions)-1], nil
}

func (r *mockWorkflowRepo) GetVersion(_ context.Context, id string, version int) (*entity.Workflow, error) {
	for _, w := range r.workflows[id] {
		if w.Version == version {
			return w, nil
		}
	}
	return nil, nil
}

// mockInstanceRepo is an in-memory InstanceRepository with revision bumping.
type mockInstanceRepo struct {
	instances map[string]*entity.WorkflowInstance
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: make(map[string]*entity.WorkflowInstance)}
}

func (r *mockInstanceRepo) Create(_ context.Context, instance *entity.WorkflowInstance) error {
	r.instances[instance.ID] = instance
	return nil
}

func (r *mockInstanceRepo) GetByID(_ context.Context, id string) (*entity.WorkflowInstance, error) {
	return r.instances[id], nil
}

func (r *mockInstanceRepo) GetByClient(_ context.Context, clientID string) ([]*entity.WorkflowInstance, error) {
	var out []*entity.WorkflowInstance
	for _, instance := range r.instances {
		if instance.ClientID == clientID {
			out = append(out, instance)
		}
	}
	return out, nil
}

func (r *mockInstanceRepo) GetActive(_ context.Context, workflowID, clientID string) ([]*entity.WorkflowInstance, error) {
	var out []*entity.WorkflowInstance
	for _, instance := range r.instances {
		if instance.WorkflowID == workflowID && instance.ClientID == clientID && instance.IsActive() {
			out = append(out, instance)
		}
	}
	return out, nil
}

func (r *mockInstanceRepo) Update(_ context.Context, instance *entity.WorkflowInstance) error {
	stored, ok := r.instances[instance.ID]
	if !ok || stored.Revision != instance.Revision {
		return automation.ErrStaleInstance
	}
	instance.Revision++
	r.instances[instance.ID] = instance
	return nil
}

// mockTaskRepo is an in-memory TaskRepository.
type mockTaskRepo struct {
	tasks []*entity.Task
}

func (r *mockTaskRepo) Create(_ context.Context, task *entity.Task) error {
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *mockTaskRepo) GetByID(_ context.Context, id string) (*entity.Task, error) {
	for _, task := range r.tasks {
		if task.ID == id {
			return task, nil
		}
	}
	return nil, nil
}

func (r *mockTaskRepo) GetByWorkflowStep(_ context.Context, workflowID, clientID string, stepNumber int) (*entity.Task, error) {
	// Newest first, matching the store-backed implementation.
	for i := len(r.tasks) - 1; i >= 0; i-- {
		task := r.tasks[i]
		if task.WorkflowID == workflowID && task.ClientID == clientID && task.StepNumber == stepNumber {
			return task, nil
		}
	}
	return nil, nil
}

func (r *mockTaskRepo) ListByWorkflow(_ context.Context, workflowID string) ([]*entity.Task, error) {
	var out []*entity.Task
	for _, task := range r.tasks {
		if task.WorkflowID == workflowID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (r *mockTaskRepo) ListOpen(_ context.Context) ([]*entity.Task, error) {
	var out []*entity.Task
	for _, task := range r.tasks {
		if !task.IsTerminal() {
			out = append(out, task)
		}
	}
	return out, nil
}

func (r *mockTaskRepo) ListCreatedBetween(_ context.Context, start, end time.Time) ([]*entity.Task, error) {
	var out []*entity.Task
	for _, task := range r.tasks {
		if !task.CreatedAt.Before(start) && !task.CreatedAt.After(end) {
			out = append(out, task)
		}
	}
	return out, nil
}

func (r *mockTaskRepo) UpdateStatus(_ context.Context, id, status string) error {
	for _, task := range r.tasks {
		if task.ID == id {
			task.Status = status
		}
	}
	return nil
}

func (r *mockTaskRepo) MarkOverdue(_ context.Context, id string) (bool, error) {
	for _, task := range r.tasks {
		if task.ID == id && !task.IsTerminal() && task.Status != entity.TaskStatusOverdue {
			task.Status = entity.TaskStatusOverdue
			return true, nil
		}
	}
	return false, nil
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

// onboardingWorkflow is the fixture definition: three steps, the first two
// gated and auto-created, the last one manual and ungated.
func onboardingWorkflow() *entity.Workflow {
	return &entity.Workflow{
		ID:       "wf-onboarding",
		Name:     "New Client Onboarding",
		Version:  1,
		IsActive: true,
		Steps: []entity.WorkflowStep{
			{
				StepNumber:                 1,
				Name:                       "Collect documents",
				TaskType:                   "document_collection",
				DaysToComplete:             2,
				AssigneeRole:               "back_office",
				AutoCreate:                 true,
				RequiresPreviousCompletion: true,
			},
			{
				StepNumber:                 2,
				Name:                       "Submit application",
				TaskType:                   "application",
				DaysToComplete:             3,
				AutoCreate:                 true,
				RequiresPreviousCompletion: true,
			},
			{
				StepNumber:     3,
				Name:           "Confirm activation",
				TaskType:       "confirmation",
				DaysToComplete: 1,
			},
		},
	}
}

type engineFixture struct {
	engine    *Engine
	workflows *mockWorkflowRepo
	instances *mockInstanceRepo
	tasks     *mockTaskRepo
	auditLog  *mockAuditLog
	now       time.Time
}

func newEngineFixture(t *testing.T, workflows ...*entity.Workflow) *engineFixture {
	t.Helper()

	f := &engineFixture{
		workflows: newMockWorkflowRepo(workflows...),
		instances: newMockInstanceRepo(),
		tasks:     &mockTaskRepo{},
		auditLog:  &mockAuditLog{},
		now:       time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.engine = New(f.workflows, f.instances, f.tasks, f.auditLog, zap.NewNop(),
		WithClock(func() time.Time { return f.now }))
	return f
}

// completeStepTask marks the task for the given step completed and fires the
// completion hook, the way the task-update code path would.
func (f *engineFixture) completeStepTask(t *testing.T, workflowID, clientID string, step int) {
	t.Helper()

	task, err := f.tasks.GetByWorkflowStep(context.Background(), workflowID, clientID, step)
	require.NoError(t, err)
	require.NotNil(t, task, "expected a task for step %d", step)

	task.Status = entity.TaskStatusCompleted
	f.engine.OnTaskCompleted(context.Background(), task.ID)
}

func TestStart(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an instance pinned to the current version", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "Dana Levi", "agent-1")
		require.NoError(t, err)
		require.NotEmpty(t, instanceID)

		instance, err := f.instances.GetByID(ctx, instanceID)
		require.NoError(t, err)
		require.NotNil(t, instance)
		assert.Equal(t, 1, instance.CurrentStep)
		assert.Equal(t, 1, instance.WorkflowVersion)
		assert.Equal(t, entity.InstanceStatusActive, instance.Status)
		assert.Equal(t, "New Client Onboarding", instance.WorkflowName)

		// Step 1 is auto-create: its task exists with the step's SLA window.
		require.Len(t, f.tasks.tasks, 1)
		task := f.tasks.tasks[0]
		assert.Equal(t, "Collect documents", task.Title)
		assert.Equal(t, 1, task.StepNumber)
		assert.Equal(t, "back_office", task.AssignedTo)
		assert.Equal(t, 2, task.DaysToComplete)
		require.NotNil(t, task.DueDate)
		assert.Equal(t, f.now.Add(48*time.Hour), *task.DueDate)

		assert.Equal(t,
			[]automation.EntryType{automation.EntryWorkflowStart, automation.EntryTaskCreated},
			f.auditLog.entryTypes())
	})

	t.Run("falls back to the starter when the step has no assignee role", func(t *testing.T) {
		workflow := onboardingWorkflow()
		workflow.Steps[0].AssigneeRole = ""
		f := newEngineFixture(t, workflow)

		_, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "Dana Levi", "agent-1")
		require.NoError(t, err)

		require.Len(t, f.tasks.tasks, 1)
		assert.Equal(t, "agent-1", f.tasks.tasks[0].AssignedTo)
	})

	t.Run("rejects an unknown workflow", func(t *testing.T) {
		f := newEngineFixture(t)

		_, err := f.engine.Start(ctx, "wf-missing", "client-1", "", "agent-1")
		assert.ErrorIs(t, err, automation.ErrWorkflowNotFound)
	})

	t.Run("rejects an inactive workflow", func(t *testing.T) {
		workflow := onboardingWorkflow()
		workflow.IsActive = false
		f := newEngineFixture(t, workflow)

		_, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		assert.ErrorIs(t, err, automation.ErrWorkflowInactive)
	})

	t.Run("rejects a second active instance for the same client", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		_, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		_, err = f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		assert.ErrorIs(t, err, automation.ErrActiveInstanceExists)

		// A different client is unaffected.
		_, err = f.engine.Start(ctx, "wf-onboarding", "client-2", "", "agent-1")
		assert.NoError(t, err)
	})
}

func TestProceedToNextStep(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses to advance past an unsatisfied gate", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		err = f.engine.ProceedToNextStep(ctx, instanceID)
		assert.ErrorIs(t, err, automation.ErrGateNotSatisfied)

		ok, err := f.engine.CanProceedToNextStep(ctx, instanceID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("advances once the gating task is completed", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		task := f.tasks.tasks[0]
		task.Status = entity.TaskStatusCompleted

		require.NoError(t, f.engine.ProceedToNextStep(ctx, instanceID))

		instance, _ := f.instances.GetByID(ctx, instanceID)
		assert.Equal(t, 2, instance.CurrentStep)

		// Step 2 is auto-create: a second task appeared.
		require.Len(t, f.tasks.tasks, 2)
		assert.Equal(t, "Submit application", f.tasks.tasks[1].Title)
	})

	t.Run("completes the instance past the last step", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		f.completeStepTask(t, "wf-onboarding", "client-1", 1)
		f.completeStepTask(t, "wf-onboarding", "client-1", 2)

		instance, _ := f.instances.GetByID(ctx, instanceID)
		require.Equal(t, 3, instance.CurrentStep)

		// Step 3 is ungated and manual: advancing completes the workflow.
		require.NoError(t, f.engine.ProceedToNextStep(ctx, instanceID))

		instance, _ = f.instances.GetByID(ctx, instanceID)
		assert.Equal(t, entity.InstanceStatusCompleted, instance.Status)
		require.NotNil(t, instance.CompletedAt)

		types := f.auditLog.entryTypes()
		assert.Equal(t, automation.EntryWorkflowCompleted, types[len(types)-1])
		payload, ok := f.auditLog.entries[len(f.auditLog.entries)-1].Details.(*automation.WorkflowCompletedPayload)
		require.True(t, ok)
		assert.Equal(t, 3, payload.FinalStep)
	})

	t.Run("completed instances absorb further advances", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		f.completeStepTask(t, "wf-onboarding", "client-1", 1)
		f.completeStepTask(t, "wf-onboarding", "client-1", 2)
		require.NoError(t, f.engine.ProceedToNextStep(ctx, instanceID))

		logged := len(f.auditLog.entries)
		require.NoError(t, f.engine.ProceedToNextStep(ctx, instanceID))

		instance, _ := f.instances.GetByID(ctx, instanceID)
		assert.Equal(t, entity.InstanceStatusCompleted, instance.Status)
		assert.Len(t, f.auditLog.entries, logged, "no new log entries after completion")
	})

	t.Run("unknown instance", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		err := f.engine.ProceedToNextStep(ctx, "nope")
		assert.ErrorIs(t, err, automation.ErrInstanceNotFound)
	})
}

func TestOnTaskCompleted(t *testing.T) {
	ctx := context.Background()

	t.Run("advances the instance for the current gating task", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		f.completeStepTask(t, "wf-onboarding", "client-1", 1)

		instance, _ := f.instances.GetByID(ctx, instanceID)
		assert.Equal(t, 2, instance.CurrentStep)
	})

	t.Run("ignores tasks not owned by a workflow", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		standalone := &entity.Task{
			ID:       "standalone",
			Title:    "Call the client back",
			Status:   entity.TaskStatusCompleted,
			ClientID: "client-1",
		}
		require.NoError(t, f.tasks.Create(ctx, standalone))

		f.engine.OnTaskCompleted(ctx, "standalone")

		instance, _ := f.instances.GetByID(ctx, instanceID)
		assert.Equal(t, 1, instance.CurrentStep)
	})

	t.Run("ignores a completed task from an earlier step", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		f.completeStepTask(t, "wf-onboarding", "client-1", 1)

		// Re-firing the hook for the already-consumed step 1 task changes nothing.
		task, _ := f.tasks.GetByWorkflowStep(ctx, "wf-onboarding", "client-1", 1)
		f.engine.OnTaskCompleted(ctx, task.ID)

		instance, _ := f.instances.GetByID(ctx, instanceID)
		assert.Equal(t, 2, instance.CurrentStep)
	})

	t.Run("ignores unknown tasks", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())
		f.engine.OnTaskCompleted(ctx, "ghost")
		assert.Empty(t, f.auditLog.entries)
	})

	t.Run("no-op without an active instance", func(t *testing.T) {
		f := newEngineFixture(t, onboardingWorkflow())

		instanceID, err := f.engine.Start(ctx, "wf-onboarding", "client-1", "", "agent-1")
		require.NoError(t, err)

		f.completeStepTask(t, "wf-onboarding", "client-1", 1)
		f.completeStepTask(t, "wf-onboarding", "client-1", 2)
		require.NoError(t, f.engine.ProceedToNextStep(ctx, instanceID))

		// The workflow already completed; a stray completion hook is harmless.
		task, _ := f.tasks.GetByWorkflowStep(ctx, "wf-onboarding", "client-1", 2)
		f.engine.OnTaskCompleted(ctx, task.ID)

		instance, _ := f.instances.GetByID(ctx, instanceID)
		assert.Equal(t, entity.InstanceStatusCompleted, instance.Status)
	})
}
