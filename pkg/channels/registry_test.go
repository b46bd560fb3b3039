package channels

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("register and deliver", func(t *testing.T) {
		var buf bytes.Buffer
		registry := NewRegistry()
		require.NoError(t, registry.Register(NewDirectChannel("direct", &buf)))

		err := registry.Deliver(context.Background(), DeliveryAction{
			Channel: "direct",
			To:      "user-1",
			Message: "ping",
		})
		require.NoError(t, err)
		assert.Equal(t, "[direct:user-1] ping\n", buf.String())
	})

	t.Run("duplicate registration rejected", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(NewDirectChannel("direct", &bytes.Buffer{})))

		err := registry.Register(NewDirectChannel("direct", &bytes.Buffer{}))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})

	t.Run("unknown channel", func(t *testing.T) {
		registry := NewRegistry()

		err := registry.Deliver(context.Background(), DeliveryAction{Channel: "telegram", To: "1"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})

	t.Run("names sorted", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(NewDirectChannel("zeta", &bytes.Buffer{})))
		require.NoError(t, registry.Register(NewDirectChannel("alpha", &bytes.Buffer{})))

		assert.Equal(t, []string{"alpha", "zeta"}, registry.Names())
	})
}

func TestSessionKey(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		key := SessionKey("telegram", "12345")
		assert.Equal(t, "telegram:12345", key)

		channel, to, err := ParseSessionKey(key)
		require.NoError(t, err)
		assert.Equal(t, "telegram", channel)
		assert.Equal(t, "12345", to)
	})

	t.Run("recipient may contain colons", func(t *testing.T) {
		channel, to, err := ParseSessionKey("matrix:@user:example.org")
		require.NoError(t, err)
		assert.Equal(t, "matrix", channel)
		assert.Equal(t, "@user:example.org", to)
	})

	t.Run("malformed keys", func(t *testing.T) {
		for _, key := range []string{"", "nochannel", ":recipient", "channel:"} {
			_, _, err := ParseSessionKey(key)
			assert.Error(t, err, "key %q", key)
		}
	})
}
