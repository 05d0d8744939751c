package sla

import (
	"math"
	"time"

	"github.com/agency-crm/automation-core/internal/domain/entity"
)

// DefaultDaysToComplete applies when a task carries no completion window.
const DefaultDaysToComplete = 1

// Deadline returns the SLA deadline for a task:
// createdAt + daysToComplete days, defaulting to one day.
func Deadline(task *entity.Task) time.Time {
	days := task.DaysToComplete
	if days <= 0 {
		days = DefaultDaysToComplete
	}
	return task.CreatedAt.Add(time.Duration(days) * 24 * time.Hour)
}

// RemainingHours returns floor((deadline - now) in hours). The value strictly
// decreases as wall-clock time advances and crosses zero exactly at the
// deadline.
func RemainingHours(task *entity.Task, now time.Time) int {
	return int(math.Floor(Deadline(task).Sub(now).Hours()))
}

// IsOverdue reports whether the task deadline has passed.
func IsOverdue(task *entity.Task, now time.Time) bool {
	return RemainingHours(task, now) < 0
}

// IsAtRisk reports whether the task is inside the warning window before its
// deadline. Overdue and at-risk are mutually exclusive for all tasks at all
// times.
func IsAtRisk(task *entity.Task, now time.Time, windowHours int) bool {
	remaining := RemainingHours(task, now)
	return remaining > 0 && remaining <= windowHours
}
