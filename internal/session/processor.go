package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mindviza/mindviza/internal/llm"
	"github.com/mindviza/mindviza/internal/memory"
	"github.com/mindviza/mindviza/internal/prompts"
)

// Searcher retrieves ranked memory records. Implemented by memory.Store.
type Searcher interface {
	Search(namespace, identity, query string, limit int) ([]*memory.Record, error)
}

// TurnProcessor runs one user message through retrieval and completion.
//
// A turn is all-or-nothing: the user message is staged, memories are
// retrieved, the backend is called, and only on success are the user
// and assistant messages committed to the session. A failed turn leaves
// the history exactly as it was.
type TurnProcessor struct {
	client      llm.Client
	memories    Searcher
	searchLimit int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewTurnProcessor creates a processor. searchLimit bounds memory
// retrieval per turn; timeout bounds the completion call.
func NewTurnProcessor(client llm.Client, memories Searcher, searchLimit int, timeout time.Duration, logger *slog.Logger) *TurnProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if searchLimit <= 0 {
		searchLimit = 3
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TurnProcessor{
		client:      client,
		memories:    memories,
		searchLimit: searchLimit,
		timeout:     timeout,
		logger:      logger.With("component", "processor"),
	}
}

// Process executes one exchange and returns the assistant reply. On
// success the session history gains the user and assistant messages in
// order; on error nothing is committed.
func (p *TurnProcessor) Process(ctx context.Context, sess *Session, userText string) (string, error) {
	info, err := p.retrieve(sess.Identity, userText)
	if err != nil {
		return "", fmt.Errorf("memory search: %w", err)
	}

	system := prompts.RenderSystem(info)

	history := sess.History()
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userText})

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	comp, err := p.client.Complete(ctx, system, msgs)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}

	now := time.Now()
	sess.Append("user", userText, now)
	sess.Append("assistant", comp.Content, now)

	p.logger.Debug("turn complete",
		"identity", sess.Identity,
		"thread", sess.ThreadID,
		"tokens_in", comp.InputTokens,
		"tokens_out", comp.OutputTokens)

	return comp.Content, nil
}

// retrieve searches long-term memory and joins the record values into
// the text injected into the system prompt.
func (p *TurnProcessor) retrieve(identity, query string) (string, error) {
	if p.memories == nil {
		return "", nil
	}

	records, err := p.memories.Search(memory.Namespace, identity, query, p.searchLimit)
	if err != nil {
		return "", err
	}

	snippets := make([]string, 0, len(records))
	for _, r := range records {
		snippets = append(snippets, string(r.Value))
	}
	return strings.Join(snippets, "\n"), nil
}
