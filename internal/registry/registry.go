// Package registry tracks live delivery channels per identity so
// out-of-band notices can reach every open session of a user.
package registry

import (
	"context"
	"log/slog"
	"sync"
)

// Channel is the minimal send surface a registered connection exposes.
type Channel interface {
	SendText(ctx context.Context, text string) error
}

// Registry is a concurrency-safe map of identity to open channels. A
// single identity may hold several channels at once, one per open
// connection.
type Registry struct {
	mu       sync.Mutex
	channels map[string][]Channel
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		channels: make(map[string][]Channel),
		logger:   logger.With("component", "registry"),
	}
}

// Register adds a channel under the identity.
func (r *Registry) Register(identity string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels[identity] = append(r.channels[identity], ch)
	r.logger.Debug("channel registered", "identity", identity, "open", len(r.channels[identity]))
}

// Unregister removes a channel; the identity's entry disappears when
// its last channel is removed.
func (r *Registry) Unregister(identity string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	open := r.channels[identity]
	for i, c := range open {
		if c == ch {
			open = append(open[:i], open[i+1:]...)
			break
		}
	}

	if len(open) == 0 {
		delete(r.channels, identity)
	} else {
		r.channels[identity] = open
	}
	r.logger.Debug("channel unregistered", "identity", identity, "open", len(open))
}

// Broadcast sends text to every open channel of the identity. Unknown
// identities are a no-op. Send failures are logged and skipped so one
// dead connection cannot block the rest.
func (r *Registry) Broadcast(ctx context.Context, identity, text string) {
	r.mu.Lock()
	open := make([]Channel, len(r.channels[identity]))
	copy(open, r.channels[identity])
	r.mu.Unlock()

	for _, ch := range open {
		if err := ch.SendText(ctx, text); err != nil {
			r.logger.Warn("broadcast send failed", "identity", identity, "error", err)
		}
	}
}

// Count returns how many channels the identity currently has open.
func (r *Registry) Count(identity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels[identity])
}

// Identities returns how many distinct identities are connected.
func (r *Registry) Identities() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
