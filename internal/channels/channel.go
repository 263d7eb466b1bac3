// Package channels defines the adapter contract connecting messaging
// surfaces to the bus, plus the dispatcher that routes agent replies back
// to the adapter they came from.
package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/courier-ai/courier/pkg/models"
)

// Channel is implemented by every messaging adapter. Adapters publish
// inbound messages to the bus themselves; the dispatcher calls Send for
// outbound delivery.
type Channel interface {
	// Name returns the channel identifier used in message routing
	// (websocket, telegram, cli).
	Name() string

	// Start begins receiving messages. It must not block; long-running
	// work belongs in goroutines tied to ctx.
	Start(ctx context.Context) error

	// Stop shuts the adapter down and releases its resources.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg *models.OutboundMessage) error
}

// Registry holds the active channel adapters keyed by name.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds an adapter. Registering a duplicate name is an error.
func (r *Registry) Register(ch Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[ch.Name()]; exists {
		return fmt.Errorf("channel %q already registered", ch.Name())
	}
	r.channels[ch.Name()] = ch
	return nil
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names returns the registered channel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every adapter, stopping the ones already started if one
// fails.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var started []Channel
	for _, ch := range r.channels {
		if err := ch.Start(ctx); err != nil {
			for _, s := range started {
				_ = s.Stop(ctx)
			}
			return fmt.Errorf("start channel %s: %w", ch.Name(), err)
		}
		started = append(started, ch)
	}
	return nil
}

// StopAll stops every adapter, returning the last error seen.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var lastErr error
	for _, ch := range r.channels {
		if err := ch.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
