package entity

import "time"

// Workflow is a declarative multi-step process definition.
// Definitions are versioned: each saved edit of the step list bumps Version and
// archives the previous snapshot, so in-flight instances keep resolving steps
// from the version they were started with.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     int            `json:"version"`
	IsActive    bool           `json:"is_active"`
	Steps       []WorkflowStep `json:"steps"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// WorkflowStep is a single step inside a workflow definition.
// StepNumber is 1-based and contiguous within a definition.
type WorkflowStep struct {
	StepNumber                 int    `json:"step_number"`
	Name                       string `json:"name"`
	Description                string `json:"description,omitempty"`
	TaskType                   string `json:"task_type"`
	DaysToComplete             int    `json:"days_to_complete"`
	AssigneeRole               string `json:"assignee_role,omitempty"`
	AutoCreate                 bool   `json:"auto_create"`
	RequiresPreviousCompletion bool   `json:"requires_previous_completion"`
}

// Step returns the step with the given 1-based number, or nil if out of range.
func (w *Workflow) Step(number int) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].StepNumber == number {
			return &w.Steps[i]
		}
	}
	return nil
}

// LastStep returns the highest step number in the definition.
func (w *Workflow) LastStep() int {
	last := 0
	for i := range w.Steps {
		if w.Steps[i].StepNumber > last {
			last = w.Steps[i].StepNumber
		}
	}
	return last
}
