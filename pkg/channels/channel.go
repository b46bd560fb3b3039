package channels

import (
	"context"
	"fmt"
	"strings"
)

// Channel is a delivery transport (console, telegram, webhook, ...).
// Concrete chat-platform adapters live outside this module; the runtime only
// depends on this interface.
type Channel interface {
	Name() string
	Send(ctx context.Context, to string, message string) error
}

// DeliveryAction is an outbound message produced by the runtime: a firing
// cron job, a completed sub-agent task, or an explicit send_message call.
type DeliveryAction struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// SessionKey formats the canonical "<channel>:<recipient_id>" identifier.
func SessionKey(channel, to string) string {
	return channel + ":" + to
}

// ParseSessionKey splits a "<channel>:<recipient_id>" identifier.
func ParseSessionKey(key string) (channel string, to string, err error) {
	idx := strings.Index(key, ":")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("invalid session key %q: want <channel>:<recipient_id>", key)
	}
	return key[:idx], key[idx+1:], nil
}
