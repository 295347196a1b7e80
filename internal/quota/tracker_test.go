package quota

import (
	"fmt"
	"testing"
	"time"
)

func newTestTracker(ceiling int) (*Tracker, *time.Time) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	tr := NewTracker(ceiling, nil)
	tr.SetNow(func() time.Time { return now })
	return tr, &now
}

func TestGuestDeniedPastCeiling(t *testing.T) {
	tr, _ := newTestTracker(10)
	id := "guest-10_0_0_1-20250615"

	for i := 1; i <= 10; i++ {
		res := tr.Consume(id)
		if !res.Allowed {
			t.Fatalf("turn %d denied, want allowed", i)
		}
		if res.Count != i {
			t.Fatalf("turn %d count = %d", i, res.Count)
		}
	}

	res := tr.Consume(id)
	if res.Allowed {
		t.Fatal("11th turn allowed, want denied")
	}
	if res.Count != 11 {
		t.Errorf("count = %d, want 11", res.Count)
	}
	if res.Message != DeniedMessage {
		t.Errorf("message = %q, want %q", res.Message, DeniedMessage)
	}
}

func TestVerifiedIdentityNeverDenied(t *testing.T) {
	tr, _ := newTestTracker(10)

	for i := 1; i <= 25; i++ {
		res := tr.Consume("user-42")
		if !res.Allowed {
			t.Fatalf("verified identity denied on turn %d", i)
		}
		if res.Message != "" {
			t.Fatalf("verified identity got denial message on turn %d", i)
		}
	}

	if got := tr.Count("user-42"); got != 25 {
		t.Errorf("count = %d, want 25", got)
	}
}

func TestDayRolloverResetsAllCounts(t *testing.T) {
	tr, now := newTestTracker(10)

	// Exhaust one guest and count a few others.
	exhausted := "guest-10_0_0_1-20250615"
	for i := 0; i < 11; i++ {
		tr.Consume(exhausted)
	}
	tr.Consume("guest-10_0_0_2-20250615")
	tr.Consume("user-42")

	*now = now.Add(24 * time.Hour)

	if got := tr.Count(exhausted); got != 0 {
		t.Errorf("stale count reads %d after rollover, want 0", got)
	}

	// First turn of the new day starts a fresh count for everyone.
	res := tr.Consume(exhausted)
	if !res.Allowed || res.Count != 1 {
		t.Errorf("first turn of new day: allowed=%v count=%d, want allowed count=1", res.Allowed, res.Count)
	}
	if got := tr.Count("user-42"); got != 0 {
		t.Errorf("unrelated identity count = %d after rollover, want 0", got)
	}
}

func TestConcurrentConsume(t *testing.T) {
	tr, _ := newTestTracker(1000)
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			id := fmt.Sprintf("user-%d", n%2)
			for j := 0; j < 50; j++ {
				tr.Consume(id)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	total := tr.Count("user-0") + tr.Count("user-1")
	if total != 400 {
		t.Errorf("total consumed = %d, want 400", total)
	}
}
