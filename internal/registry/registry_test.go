package registry

import (
	"context"
	"errors"
	"testing"
)

// fakeChannel records delivered text.
type fakeChannel struct {
	sent []string
	err  error
}

func (f *fakeChannel) SendText(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func TestRegisterAndBroadcast(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeChannel{}
	b := &fakeChannel{}

	r.Register("user-1", a)
	r.Register("user-1", b)
	r.Register("user-2", &fakeChannel{})

	if got := r.Count("user-1"); got != 2 {
		t.Errorf("Count = %d, want 2", got)
	}
	if got := r.Identities(); got != 2 {
		t.Errorf("Identities = %d, want 2", got)
	}

	r.Broadcast(context.Background(), "user-1", "heads up")

	for i, ch := range []*fakeChannel{a, b} {
		if len(ch.sent) != 1 || ch.sent[0] != "heads up" {
			t.Errorf("channel %d sent = %v", i, ch.sent)
		}
	}
}

func TestUnregisterLastChannelRemovesEntry(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeChannel{}
	b := &fakeChannel{}

	r.Register("user-1", a)
	r.Register("user-1", b)

	r.Unregister("user-1", a)
	if got := r.Count("user-1"); got != 1 {
		t.Errorf("Count after first unregister = %d, want 1", got)
	}

	r.Unregister("user-1", b)
	if got := r.Count("user-1"); got != 0 {
		t.Errorf("Count after last unregister = %d, want 0", got)
	}
	if got := r.Identities(); got != 0 {
		t.Errorf("Identities = %d, want 0 (entry removed)", got)
	}
}

func TestBroadcastUnknownIdentityIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeChannel{}
	r.Register("user-1", a)
	r.Unregister("user-1", a)

	// Must not panic or deliver anything.
	r.Broadcast(context.Background(), "user-1", "anyone there?")
	r.Broadcast(context.Background(), "never-seen", "hello?")

	if len(a.sent) != 0 {
		t.Errorf("unregistered channel received %v", a.sent)
	}
}

func TestBroadcastSkipsFailingChannel(t *testing.T) {
	r := NewRegistry(nil)
	dead := &fakeChannel{err: errors.New("connection reset")}
	live := &fakeChannel{}

	r.Register("user-1", dead)
	r.Register("user-1", live)

	r.Broadcast(context.Background(), "user-1", "still here")

	if len(live.sent) != 1 {
		t.Errorf("live channel sent = %v, want delivery despite dead peer", live.sent)
	}
}
