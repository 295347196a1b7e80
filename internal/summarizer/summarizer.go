// Package summarizer condenses long conversation histories so sessions
// stay within the completion backend's context budget. Compaction is
// best-effort: any failure leaves the history untouched.
package summarizer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mindviza/mindviza/internal/llm"
	"github.com/mindviza/mindviza/internal/prompts"
	"github.com/mindviza/mindviza/internal/session"
)

// DefaultThreshold is the history length above which compaction runs.
const DefaultThreshold = 20

// Summarizer replaces the older half of an oversized history with a
// single system-role summary message. Implements session.Compactor.
type Summarizer struct {
	client    llm.Client
	threshold int
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a summarizer. threshold <= 0 uses DefaultThreshold.
func New(client llm.Client, threshold int, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Summarizer{
		client:    client,
		threshold: threshold,
		timeout:   60 * time.Second,
		logger:    logger.With("component", "summarizer"),
	}
}

// SetTimeout configures the summary call deadline.
func (s *Summarizer) SetTimeout(d time.Duration) {
	s.timeout = d
}

// MaybeCompact summarizes the older half of the history when it has
// grown past the threshold. On any failure the history is left as-is.
func (s *Summarizer) MaybeCompact(ctx context.Context, sess *session.Session) {
	history := sess.History()
	if len(history) <= s.threshold {
		return
	}

	cut := len(history) / 2
	older, recent := history[:cut], history[cut:]

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := prompts.RenderSummary(serializeHistory(older))
	comp, err := s.client.Complete(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		s.logger.Warn("history summary failed", "thread", sess.ThreadID, "error", err)
		return
	}

	summary := strings.TrimSpace(comp.Content)
	if summary == "" {
		s.logger.Warn("history summary came back empty", "thread", sess.ThreadID)
		return
	}

	compacted := make([]session.Message, 0, len(recent)+1)
	compacted = append(compacted, session.Message{
		Role:      "system",
		Content:   "Summary of the conversation so far: " + summary,
		Timestamp: time.Now(),
	})
	compacted = append(compacted, recent...)
	sess.SetHistory(compacted)

	s.logger.Info("history compacted",
		"thread", sess.ThreadID,
		"before", len(history),
		"after", len(compacted))
}

// serializeHistory renders messages as the {"User": …} / {"Chatbot": …}
// entries the summary prompt expects.
func serializeHistory(msgs []session.Message) string {
	entries := make([]map[string]string, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "user":
			entries = append(entries, map[string]string{"User": m.Content})
		case "assistant":
			entries = append(entries, map[string]string{"Chatbot": m.Content})
		}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	return string(data)
}
