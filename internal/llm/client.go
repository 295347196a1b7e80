package llm

import "context"

// Client is the interface every completion provider must implement.
// The conversation core treats the provider as a black box: a system
// prompt plus ordered message history in, one assistant reply out.
type Client interface {
	// Complete sends a completion request and returns the reply.
	Complete(ctx context.Context, system string, messages []Message) (*Completion, error)

	// Ping checks if the provider is reachable with the configured key.
	Ping(ctx context.Context) error
}
