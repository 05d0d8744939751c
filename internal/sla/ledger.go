package sla

import (
	"context"
	"sync"
	"time"

	"github.com/agency-crm/automation-core/internal/application/port"
)

// MemoryWarningLedger is a process-local port.WarningLedger. Entries expire
// lazily on the next Claim for the same task. Intended for tests and
// single-process deployments; production wiring uses the store-backed ledger
// so restarts do not resend warnings.
type MemoryWarningLedger struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time
}

// NewMemoryWarningLedger creates an empty in-memory ledger.
func NewMemoryWarningLedger() *MemoryWarningLedger {
	return &MemoryWarningLedger{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Claim records a warning claim for the task unless an unexpired one exists.
func (l *MemoryWarningLedger) Claim(_ context.Context, taskID string, expiresAt time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.expiry[taskID]; ok && l.now().Before(until) {
		return false, nil
	}
	l.expiry[taskID] = expiresAt
	return true, nil
}

var _ port.WarningLedger = (*MemoryWarningLedger)(nil)
