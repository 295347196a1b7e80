// Package llm provides completion backend client implementations.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the completion backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the unified response from any completion provider.
// Wire format conversion happens at provider boundaries (groq.go).
type Completion struct {
	Model     string
	CreatedAt time.Time
	Content   string

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}
