package channels

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DirectChannel writes messages to an io.Writer. It backs the console
// delivery path and doubles as a capture channel in tests.
type DirectChannel struct {
	name string

	mu  sync.Mutex
	out io.Writer
}

// NewDirectChannel creates a direct channel writing to out.
func NewDirectChannel(name string, out io.Writer) *DirectChannel {
	return &DirectChannel{name: strings.TrimSpace(name), out: out}
}

// Name returns the channel name.
func (c *DirectChannel) Name() string {
	return c.name
}

// Send writes one message line to the configured writer.
func (c *DirectChannel) Send(_ context.Context, to string, message string) error {
	if c.out == nil {
		return fmt.Errorf("direct channel %q has no writer", c.name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.out, "[%s] %s\n", SessionKey(c.name, to), message)
	return err
}
