package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/mindviza/mindviza/internal/checkpoint"
	"github.com/mindviza/mindviza/internal/events"
	"github.com/mindviza/mindviza/internal/identity"
	"github.com/mindviza/mindviza/internal/memory"
	"github.com/mindviza/mindviza/internal/quota"
	"github.com/mindviza/mindviza/internal/registry"
)

// turnFailedMessage is the user-facing text for a recoverable turn
// error. The underlying cause goes to the log, not the user.
const turnFailedMessage = "Something went wrong while processing your message. Please try again."

// Quota gates messages before processing. Implemented by quota.Tracker.
type Quota interface {
	Consume(identity string) quota.Result
}

// Curator commits salient facts to long-term memory after a turn.
// Implemented by memory.Curator.
type Curator interface {
	Curate(ctx context.Context, identity, threadID string, history []memory.TurnMessage) *memory.Record
}

// Compactor condenses long histories between turns. Implemented by
// summarizer.Summarizer.
type Compactor interface {
	MaybeCompact(ctx context.Context, sess *Session)
}

// Manager drives a connection through the session lifecycle: setup,
// the serialized turn loop, and teardown. One Run call per connection.
type Manager struct {
	processor   *TurnProcessor
	quota       Quota
	curator     Curator
	compactor   Compactor
	checkpoints *checkpoint.Store
	registry    *registry.Registry
	bus         *events.Bus
	logger      *slog.Logger
}

// NewManager creates a session manager. curator, compactor, checkpoints
// and bus may be nil; the corresponding step is skipped.
func NewManager(processor *TurnProcessor, quota Quota, curator Curator, compactor Compactor,
	checkpoints *checkpoint.Store, reg *registry.Registry, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		processor:   processor,
		quota:       quota,
		curator:     curator,
		compactor:   compactor,
		checkpoints: checkpoints,
		registry:    reg,
		bus:         bus,
		logger:      logger.With("component", "session"),
	}
}

// Run owns the connection until it ends. Turns are strictly serialized:
// the single receive loop means a message is not read until the prior
// turn's reply has been sent. Returns nil on any orderly end, including
// quota denial; only setup failures return an error.
func (m *Manager) Run(ctx context.Context, ident, threadID string, ch Channel) error {
	sess := NewSession(ident, threadID)
	defer sess.setState(StateClosed)

	logger := m.logger.With("identity", ident, "thread", threadID)

	thread, err := m.acquire(ctx, sess)
	if err != nil {
		logger.Error("session setup failed", "error", err)
		// Best effort: the client may already be gone.
		_ = ch.SendText(ctx, FatalPayload("failed to start session"))
		_ = ch.Close(CloseInternalError, "setup failed")
		return err
	}
	if thread != nil {
		defer thread.Close()
	}

	m.registry.Register(ident, ch)
	defer m.registry.Unregister(ident, ch)

	sess.setState(StateActive)
	started := time.Now()
	turns := 0
	m.publish(events.SourceSession, events.KindSessionStart, map[string]any{
		"identity":  ident,
		"thread_id": threadID,
		"guest":     identity.IsGuest(ident),
	})
	logger.Info("session started", "restored", sess.Len())

	defer func() {
		m.publish(events.SourceSession, events.KindSessionEnd, map[string]any{
			"identity":   ident,
			"thread_id":  threadID,
			"turns":      turns,
			"elapsed_ms": time.Since(started).Milliseconds(),
		})
	}()

	for {
		text, err := ch.ReceiveText(ctx)
		if err != nil {
			sess.setState(StateClosing)
			logger.Info("session ended", "turns", turns)
			_ = ch.Close(CloseNormal, "")
			return nil
		}

		if m.quota != nil {
			res := m.quota.Consume(ident)
			if !res.Allowed {
				sess.setState(StateClosing)
				logger.Info("quota denied", "count", res.Count)
				m.publish(events.SourceQuota, events.KindQuotaDenied, map[string]any{
					"identity": ident,
					"count":    res.Count,
				})
				_ = ch.SendText(ctx, ResponsePayload(res.Message))
				_ = ch.Close(ClosePolicyViolation, "daily quota exceeded")
				return nil
			}
		}

		reply, err := m.processor.Process(ctx, sess, text)
		if err != nil {
			logger.Warn("turn failed", "error", err)
			m.publish(events.SourceSession, events.KindTurnError, map[string]any{
				"identity":  ident,
				"thread_id": threadID,
				"error":     err.Error(),
			})
			if sendErr := ch.SendText(ctx, ErrorPayload(turnFailedMessage)); sendErr != nil {
				sess.setState(StateClosing)
				_ = ch.Close(CloseNormal, "")
				return nil
			}
			continue
		}

		if err := ch.SendText(ctx, ResponsePayload(reply)); err != nil {
			sess.setState(StateClosing)
			logger.Info("send failed, closing session", "error", err)
			_ = ch.Close(CloseNormal, "")
			return nil
		}
		turns++

		m.persistTurn(ctx, thread, text, reply, logger)
		m.publish(events.SourceSession, events.KindTurnComplete, map[string]any{
			"identity":  ident,
			"thread_id": threadID,
		})

		if m.curator != nil {
			// Detached from the connection context so a disconnect
			// cannot cancel an in-flight memory write.
			go m.curate(context.WithoutCancel(ctx), sess)
		}

		if m.compactor != nil {
			m.compactor.MaybeCompact(ctx, sess)
		}
	}
}

// acquire pins the checkpoint handle and restores prior turns when the
// thread already has history.
func (m *Manager) acquire(ctx context.Context, sess *Session) (*checkpoint.Thread, error) {
	if m.checkpoints == nil {
		return nil, nil
	}

	thread, err := m.checkpoints.Acquire(ctx, sess.ThreadID, sess.Identity)
	if err != nil {
		return nil, err
	}

	turns, err := thread.History(ctx)
	if err != nil {
		thread.Close()
		return nil, err
	}

	if len(turns) > 0 {
		msgs := make([]Message, len(turns))
		for i, t := range turns {
			msgs[i] = Message{Role: t.Role, Content: t.Content, Timestamp: t.CreatedAt}
		}
		sess.SetHistory(msgs)
	}
	return thread, nil
}

// persistTurn appends the exchange to the checkpoint. Failures are
// logged only; the reply has already been delivered.
func (m *Manager) persistTurn(ctx context.Context, thread *checkpoint.Thread, userText, reply string, logger *slog.Logger) {
	if thread == nil {
		return
	}
	now := time.Now()
	if err := thread.Append(ctx, "user", userText, now); err != nil {
		logger.Warn("checkpoint append failed", "role", "user", "error", err)
		return
	}
	if err := thread.Append(ctx, "assistant", reply, now); err != nil {
		logger.Warn("checkpoint append failed", "role", "assistant", "error", err)
	}
}

// curate runs memory extraction over a history snapshot.
func (m *Manager) curate(ctx context.Context, sess *Session) {
	history := sess.History()
	msgs := make([]memory.TurnMessage, len(history))
	for i, h := range history {
		msgs[i] = memory.TurnMessage{Role: h.Role, Content: h.Content}
	}

	rec := m.curator.Curate(ctx, sess.Identity, sess.ThreadID, msgs)
	if rec != nil {
		m.publish(events.SourceMemory, events.KindMemorySaved, map[string]any{
			"identity":  sess.Identity,
			"thread_id": sess.ThreadID,
		})
	}
}

func (m *Manager) publish(source, kind string, data map[string]any) {
	m.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    source,
		Kind:      kind,
		Data:      data,
	})
}
