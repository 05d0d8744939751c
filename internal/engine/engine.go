// Package engine turns declarative workflow definitions into live tasks and
// advances workflow instances as their gating tasks complete.
package engine

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

// Engine orchestrates workflow instances. Lifecycle calls (Start,
// ProceedToNextStep) propagate domain errors; the reactive OnTaskCompleted
// hook degrades gracefully and logs instead.
type Engine struct {
	workflows port.WorkflowRepository
	instances port.InstanceRepository
	tasks     port.TaskRepository
	auditLog  port.AutomationLogRepository
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates a workflow engine.
func New(
	workflows port.WorkflowRepository,
	instances port.InstanceRepository,
	tasks port.TaskRepository,
	auditLog port.AutomationLogRepository,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		workflows: workflows,
		instances: instances,
		tasks:     tasks,
		auditLog:  auditLog,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates a new instance of the workflow for the client, pinned to the
// definition version current at start time. Fails with ErrWorkflowNotFound,
// ErrWorkflowInactive, or ErrActiveInstanceExists. If step 1 is marked
// auto-create, its task is created synchronously.
func (e *Engine) Start(ctx context.Context, workflowID, clientID, clientName, startedBy string) (string, error) {
	workflow, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("get workflow %s: %w", workflowID, err)
	}
	if workflow == nil {
		return "", fmt.Errorf("workflow %s: %w", workflowID, automation.ErrWorkflowNotFound)
	}
	if !workflow.IsActive {
		return "", fmt.Errorf("workflow %s: %w", workflowID, automation.ErrWorkflowInactive)
	}

	active, err := e.instances.GetActive(ctx, workflowID, clientID)
	if err != nil {
		return "", fmt.Errorf("check active instances: %w", err)
	}
	if len(active) > 0 {
		return "", fmt.Errorf("workflow %s client %s: %w", workflowID, clientID, automation.ErrActiveInstanceExists)
	}

	instance := &entity.WorkflowInstance{
		ID:              uuid.NewString(),
		WorkflowID:      workflow.ID,
		WorkflowVersion: workflow.Version,
		WorkflowName:    workflow.Name,
		ClientID:        clientID,
		ClientName:      clientName,
		StartedBy:       startedBy,
		CurrentStep:     1,
		Status:          entity.InstanceStatusActive,
		StartedAt:       e.now(),
	}
	if err := e.instances.Create(ctx, instance); err != nil {
		return "", fmt.Errorf("create instance: %w", err)
	}

	e.appendLog(ctx, &automation.WorkflowStartPayload{
		InstanceID:   instance.ID,
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		ClientID:     clientID,
		ClientName:   clientName,
		StartedBy:    startedBy,
	})

	if step := workflow.Step(1); step != nil && step.AutoCreate {
		if _, err := e.CreateTaskForStep(ctx, instance, step, startedBy); err != nil {
			// The instance exists; a failed first task is recoverable by re-creating it.
			e.logger.Error("Failed to create task for first step",
				zap.String("instance_id", instance.ID),
				zap.Error(err))
		}
	}

	e.logger.Info("Workflow instance started",
		zap.String("instance_id", instance.ID),
		zap.String("workflow_id", workflow.ID),
		zap.Int("workflow_version", workflow.Version),
		zap.String("client_id", clientID))

	return instance.ID, nil
}

// CreateTaskForStep creates the task for one step of an instance. Not
// idempotent: calling twice for the same step creates two tasks, so callers
// must not double-invoke.
func (e *Engine) CreateTaskForStep(ctx context.Context, instance *entity.WorkflowInstance, step *entity.WorkflowStep, createdBy string) (string, error) {
	now := e.now()
	due := now.Add(time.Duration(step.DaysToComplete) * 24 * time.Hour)

	assignedTo := step.AssigneeRole
	if assignedTo == "" {
		assignedTo = createdBy
	}

	task := &entity.Task{
		ID:             uuid.NewString(),
		Title:          step.Name,
		Description:    step.Description,
		Type:           step.TaskType,
		Status:         entity.TaskStatusNew,
		WorkflowID:     instance.WorkflowID,
		WorkflowName:   instance.WorkflowName,
		StepNumber:     step.StepNumber,
		ClientID:       instance.ClientID,
		ClientName:     instance.ClientName,
		AssignedTo:     assignedTo,
		CreatedBy:      createdBy,
		DaysToComplete: step.DaysToComplete,
		DueDate:        &due,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.tasks.Create(ctx, task); err != nil {
		return "", fmt.Errorf("create task for step %d: %w", step.StepNumber, err)
	}

	e.appendLog(ctx, &automation.TaskCreatedPayload{
		TaskID:      task.ID,
		Title:       task.Title,
		WorkflowID:  instance.WorkflowID,
		StepNumber:  step.StepNumber,
		ClientID:    instance.ClientID,
		AssignedTo:  assignedTo,
		DueDate:     due,
		AutoCreated: true,
	})

	return task.ID, nil
}

// CanProceedToNextStep reports whether the instance may leave its current
// step. Ungated steps always pass; gated steps require the step's task to be
// exactly completed. A missing task means false, never an error.
func (e *Engine) CanProceedToNextStep(ctx context.Context, instanceID string) (bool, error) {
	instance, workflow, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return false, err
	}
	return e.gateSatisfied(ctx, instance, workflow)
}

func (e *Engine) gateSatisfied(ctx context.Context, instance *entity.WorkflowInstance, workflow *entity.Workflow) (bool, error) {
	step := workflow.Step(instance.CurrentStep)
	if step == nil || !step.RequiresPreviousCompletion {
		return true, nil
	}

	task, err := e.tasks.GetByWorkflowStep(ctx, instance.WorkflowID, instance.ClientID, instance.CurrentStep)
	if err != nil {
		return false, fmt.Errorf("find gating task for step %d: %w", instance.CurrentStep, err)
	}
	if task == nil {
		return false, nil
	}
	return task.Status == entity.TaskStatusCompleted, nil
}

// ProceedToNextStep advances the instance by one step, creating the next
// step's task when it is marked auto-create. When no next step exists the
// instance transitions to completed, which is absorbing. Fails with
// ErrGateNotSatisfied when the current step's gate is not passed.
func (e *Engine) ProceedToNextStep(ctx context.Context, instanceID string) error {
	instance, workflow, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if !instance.IsActive() {
		// completed is terminal; nothing to advance
		return nil
	}

	ok, err := e.gateSatisfied(ctx, instance, workflow)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("instance %s step %d: %w", instanceID, instance.CurrentStep, automation.ErrGateNotSatisfied)
	}

	fromStep := instance.CurrentStep
	nextStep := fromStep + 1

	if nextStep > workflow.LastStep() {
		now := e.now()
		instance.Status = entity.InstanceStatusCompleted
		instance.CompletedAt = &now
		if err := e.instances.Update(ctx, instance); err != nil {
			return fmt.Errorf("complete instance %s: %w", instanceID, err)
		}

		e.appendLog(ctx, &automation.WorkflowCompletedPayload{
			InstanceID: instance.ID,
			WorkflowID: instance.WorkflowID,
			ClientID:   instance.ClientID,
			FinalStep:  fromStep,
		})
		e.logger.Info("Workflow instance completed",
			zap.String("instance_id", instance.ID),
			zap.String("workflow_id", instance.WorkflowID))
		return nil
	}

	instance.CurrentStep = nextStep
	if err := e.instances.Update(ctx, instance); err != nil {
		return fmt.Errorf("advance instance %s: %w", instanceID, err)
	}

	if step := workflow.Step(nextStep); step != nil && step.AutoCreate {
		if _, err := e.CreateTaskForStep(ctx, instance, step, instance.StartedBy); err != nil {
			e.logger.Error("Failed to create task for next step",
				zap.String("instance_id", instance.ID),
				zap.Int("step", nextStep),
				zap.Error(err))
		}
	}

	e.appendLog(ctx, &automation.StepAdvancedPayload{
		InstanceID: instance.ID,
		WorkflowID: instance.WorkflowID,
		ClientID:   instance.ClientID,
		FromStep:   fromStep,
		ToStep:     nextStep,
	})

	return nil
}

// OnTaskCompleted reacts to a task reaching completed status. Non-workflow
// tasks are a no-op. When the completed task is the gating task of the current
// step of the client's active instance, the instance advances. All errors are
// swallowed and logged: a completed task that is not yet the gating task for
// its step is legitimate and must not surface to the task-update code path.
func (e *Engine) OnTaskCompleted(ctx context.Context, taskID string) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		e.logger.Error("Failed to load completed task", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if task == nil || !task.IsWorkflowOwned() {
		return
	}

	candidates, err := e.instances.GetActive(ctx, task.WorkflowID, task.ClientID)
	if err != nil {
		e.logger.Error("Failed to find active instance for completed task",
			zap.String("task_id", taskID),
			zap.String("workflow_id", task.WorkflowID),
			zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}
	// Newest first; at most one should exist, but tolerate historic duplicates.
	instance := candidates[0]

	if task.StepNumber != instance.CurrentStep {
		return
	}

	if err := e.ProceedToNextStep(ctx, instance.ID); err != nil {
		e.logger.Info("Instance not advanced on task completion",
			zap.String("instance_id", instance.ID),
			zap.String("task_id", taskID),
			zap.Error(err))
	}
}

// loadInstance fetches an instance together with the workflow version it is
// pinned to.
func (e *Engine) loadInstance(ctx context.Context, instanceID string) (*entity.WorkflowInstance, *entity.Workflow, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("get instance %s: %w", instanceID, err)
	}
	if instance == nil {
		return nil, nil, fmt.Errorf("instance %s: %w", instanceID, automation.ErrInstanceNotFound)
	}

	workflow, err := e.workflows.GetVersion(ctx, instance.WorkflowID, instance.WorkflowVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("get workflow %s v%d: %w", instance.WorkflowID, instance.WorkflowVersion, err)
	}
	if workflow == nil {
		return nil, nil, fmt.Errorf("workflow %s v%d: %w", instance.WorkflowID, instance.WorkflowVersion, automation.ErrWorkflowNotFound)
	}
	return instance, workflow, nil
}

func (e *Engine) appendLog(ctx context.Context, payload automation.Payload) {
	entry := automation.NewLogEntry(uuid.NewString(), payload, e.now())
	if err := e.auditLog.Append(ctx, entry); err != nil {
		e.logger.Error("Failed to append automation log entry",
			zap.String("entry_type", string(entry.Type)),
			zap.Error(err))
	}
}
