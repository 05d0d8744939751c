package automation

import "errors"

var (
	// ErrWorkflowNotFound is returned when a referenced workflow does not exist
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInstanceNotFound is returned when a referenced workflow instance does not exist
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrTaskNotFound is returned when a referenced task does not exist
	ErrTaskNotFound = errors.New("task not found")

	// ErrWorkflowInactive is returned when starting an instance of a deactivated workflow
	ErrWorkflowInactive = errors.New("workflow is not active")

	// ErrGateNotSatisfied is returned when advancement is requested before the
	// gating task of the current step is completed
	ErrGateNotSatisfied = errors.New("gating task not completed")

	// ErrActiveInstanceExists is returned when a client already has an active
	// instance of the same workflow
	ErrActiveInstanceExists = errors.New("active instance already exists for client")

	// ErrStaleInstance is returned when an optimistic-concurrency update lost a race
	ErrStaleInstance = errors.New("instance modified concurrently")
)
