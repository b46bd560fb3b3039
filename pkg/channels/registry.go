package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry stores registered channels and routes delivery actions to them.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry constructs an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the registry.
func (r *Registry) Register(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("channel is required")
	}

	name := strings.TrimSpace(ch.Name())
	if name == "" {
		return fmt.Errorf("channel name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}

	r.channels[name] = ch
	return nil
}

// Get returns a channel by name.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[strings.TrimSpace(name)]
	return ch, ok
}

// IsRegistered returns true when the channel exists in the registry.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns sorted registered channel names.
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

// Deliver routes a delivery action to its channel.
func (r *Registry) Deliver(ctx context.Context, action DeliveryAction) error {
	channel := strings.TrimSpace(action.Channel)
	if channel == "" {
		return fmt.Errorf("channel is required")
	}

	ch, ok := r.Get(channel)
	if !ok {
		return fmt.Errorf("channel %q is not registered", channel)
	}

	if err := ch.Send(ctx, action.To, action.Message); err != nil {
		return fmt.Errorf("delivery via %q failed: %w", channel, err)
	}

	log.Debug().
		Str("channel", channel).
		Str("to", action.To).
		Msg("Delivery action routed")

	return nil
}
