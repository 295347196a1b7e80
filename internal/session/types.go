// Package session holds the conversation state machine: per-connection
// session state, the turn processor, and the manager that drives a
// connection from setup through serialized turns to teardown.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mindviza/mindviza/internal/registry"
)

// WebSocket close codes used by the manager.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// State tracks where a session is in its lifecycle.
type State int

const (
	// StateConnecting covers setup: identity resolved, thread pinned,
	// checkpoint acquired, channel registered.
	StateConnecting State = iota
	// StateActive is the serialized turn loop.
	StateActive
	// StateClosing means teardown has begun; no further turns run.
	StateClosing
	// StateClosed means all resources are released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is the transport surface a session talks through. It extends
// the registry's send-only view with receive and close so the manager
// can drive the full connection lifecycle.
type Channel interface {
	registry.Channel
	ReceiveText(ctx context.Context) (string, error)
	Close(code int, reason string) error
}

// Message is one entry of a session's conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the per-connection conversation state. History access is
// mutex-guarded because curation reads it from a detached goroutine
// while the turn loop appends.
type Session struct {
	Identity string
	ThreadID string

	mu       sync.Mutex
	state    State
	messages []Message
	started  time.Time
}

// NewSession creates a session in the connecting state.
func NewSession(identity, threadID string) *Session {
	return &Session{
		Identity: identity,
		ThreadID: threadID,
		state:    StateConnecting,
		started:  time.Now(),
	}
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Append adds a message to the history.
func (s *Session) Append(role, content string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: role, Content: content, Timestamp: at})
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SetHistory replaces the conversation wholesale. Used for thread
// restore and for compaction.
func (s *Session) SetHistory(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]Message, len(msgs))
	copy(s.messages, msgs)
}

// Len returns the number of history messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// GenerateThreadID derives a fresh thread identifier when the client
// did not pin one: the identity plus a second-resolution timestamp.
func GenerateThreadID(identity string, t time.Time) string {
	return identity + "-" + t.Format("20060102150405")
}

// ResponsePayload encodes a normal assistant reply frame.
func ResponsePayload(text string) string {
	data, _ := json.Marshal(map[string]string{"response": text})
	return string(data)
}

// ErrorPayload encodes a recoverable per-turn error frame. The session
// stays active after one of these.
func ErrorPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"type": "error", "message": msg})
	return string(data)
}

// FatalPayload encodes a setup-failure frame sent just before close.
func FatalPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"type": "fatal_error", "message": msg})
	return string(data)
}
