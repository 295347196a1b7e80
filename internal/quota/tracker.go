// Package quota enforces the daily turn ceiling for guest identities.
package quota

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mindviza/mindviza/internal/identity"
)

// DeniedMessage is the fixed user-facing text sent when a guest
// identity exhausts its daily allowance.
const DeniedMessage = "Guest users are limited to 10 chats per day. Please sign in for unlimited access."

// Result is the outcome of a Consume call.
type Result struct {
	Allowed bool
	// Count is the identity's turn count for the current day, after
	// this call's increment.
	Count int
	// Message is the user-facing denial text. Empty when allowed.
	Message string
}

// Tracker counts turns per identity with a rolling daily reset.
//
// State is process-wide: one map of identity to count plus a marker
// for the day the map belongs to. The first Consume after a day
// rollover clears the whole map, so stale guest identities expire
// implicitly. Only guest identities are bounded; verified identities
// are counted but never denied. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	counts  map[string]int
	day     string
	ceiling int
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker creates a tracker with the given guest ceiling.
func NewTracker(ceiling int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		counts:  make(map[string]int),
		ceiling: ceiling,
		logger:  logger,
		now:     time.Now,
	}
}

// SetNow overrides the clock, for deterministic day transitions in tests.
func (t *Tracker) SetNow(fn func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = fn
}

// Consume records one turn for identity and reports whether it may
// proceed. The increment happens before the ceiling check, so the turn
// that pushes a guest past the ceiling is the one denied.
func (t *Tracker) Consume(id string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().Format("2006-01-02")
	if t.day != today {
		// Global reset: the whole table belongs to a single day.
		t.counts = make(map[string]int)
		t.day = today
	}

	t.counts[id]++
	count := t.counts[id]

	if identity.IsGuest(id) && count > t.ceiling {
		t.logger.Info("guest quota exhausted", "identity", id, "count", count)
		return Result{Allowed: false, Count: count, Message: DeniedMessage}
	}

	return Result{Allowed: true, Count: count}
}

// Count returns the identity's turn count for the current day without
// consuming a turn. A day rollover since the last Consume reads as zero.
func (t *Tracker) Count(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.day != t.now().Format("2006-01-02") {
		return 0
	}
	return t.counts[id]
}
