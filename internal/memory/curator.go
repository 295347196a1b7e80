package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mindviza/mindviza/internal/llm"
	"github.com/mindviza/mindviza/internal/prompts"
)

// TurnMessage is one user or assistant message of a completed exchange,
// decoupled from the session package's richer message type.
type TurnMessage struct {
	Role    string
	Content string
}

// Putter persists curated records. Implemented by Store.
type Putter interface {
	Put(namespace, identity, key string, value json.RawMessage) (*Record, error)
}

// Curator inspects a completed exchange and conditionally commits
// salient facts to long-term memory.
//
// Curation is fully best-effort: the completion backend's output is
// not schema-constrained, so the reply is tolerant-parsed (largest
// brace-delimited substring, strict JSON parse) and any failure is
// logged and skipped, never raised. It runs after the user-visible
// reply has been delivered, so its latency never blocks a turn.
type Curator struct {
	store   Putter
	client  llm.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewCurator creates a curator.
func NewCurator(store Putter, client llm.Client, logger *slog.Logger) *Curator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Curator{
		store:   store,
		client:  client,
		logger:  logger.With("component", "curator"),
		timeout: 30 * time.Second,
	}
}

// SetTimeout configures the extraction call deadline.
func (c *Curator) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Curate asks the backend to judge the conversation so far and, if it
// extracted anything, overwrites the thread's memory record. Returns
// the stored record, or nil when nothing was worth keeping.
func (c *Curator) Curate(ctx context.Context, identity, threadID string, history []TurnMessage) *Record {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := prompts.RenderExtraction(serializeConversation(history))

	comp, err := c.client.Complete(ctx, "", []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		c.logger.Warn("extraction call failed", "identity", identity, "error", err)
		return nil
	}

	if strings.TrimSpace(comp.Content) == "" {
		c.logger.Debug("extraction returned nothing", "identity", identity)
		return nil
	}

	raw, fields, ok := ExtractObject(comp.Content)
	if !ok {
		c.logger.Warn("extraction output not parseable, skipping memory write",
			"identity", identity, "content_len", len(comp.Content))
		return nil
	}
	if len(fields) == 0 {
		c.logger.Debug("nothing important enough for long-term memory", "identity", identity)
		return nil
	}

	rec, err := c.store.Put(Namespace, identity, threadID, raw)
	if err != nil {
		c.logger.Warn("memory write failed", "identity", identity, "thread", threadID, "error", err)
		return nil
	}

	c.logger.Info("saved long-term memory", "identity", identity, "thread", threadID, "fields", len(fields))
	return rec
}

// ExtractObject pulls the largest brace-delimited substring out of s
// and strict-parses it as a JSON object. ok is false when no braces
// exist or the substring is not valid JSON; a valid empty object
// returns ok with zero fields. The tolerance matches what loosely
// instructed models actually emit ("Sure! {...} enjoy!").
func ExtractObject(s string) (raw json.RawMessage, fields map[string]any, ok bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, nil, false
	}

	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), &fields); err != nil {
		return nil, nil, false
	}
	return json.RawMessage(sub), fields, true
}

// serializeConversation renders history the way the extraction prompt's
// examples do: a list of {"User": …} / {"Chatbot": …} entries.
func serializeConversation(history []TurnMessage) string {
	entries := make([]map[string]string, 0, len(history))
	for _, m := range history {
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
