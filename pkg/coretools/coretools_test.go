package coretools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrianhoehne/nanobot/pkg/channels"
	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
	"github.com/adrianhoehne/nanobot/pkg/workspace"
)

func newTestRuntime(t *testing.T, mutate func(*Options)) (*dispatcher.Dispatcher, *workspace.Store, *bytes.Buffer) {
	t.Helper()

	store, err := workspace.NewStore(t.TempDir())
	require.NoError(t, err)

	var out bytes.Buffer
	registry := channels.NewRegistry()
	require.NoError(t, registry.Register(channels.NewDirectChannel("direct", &out)))

	opts := Options{
		Store:           store,
		Channels:        registry,
		DefaultDelivery: channels.DeliveryAction{Channel: "direct", To: "operator"},
		ExecTimeout:     10 * time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}

	d := dispatcher.New(dispatcher.Options{Timeout: 15 * time.Second})
	require.NoError(t, Register(d, opts))
	return d, store, &out
}

func dispatch(t *testing.T, d *dispatcher.Dispatcher, name string, args map[string]interface{}) dispatcher.ToolResult {
	t.Helper()
	return d.Dispatch(context.Background(), dispatcher.ToolCallRequest{
		Name:      name,
		Arguments: args,
		CallID:    "call-" + name,
	})
}

func TestFileTools(t *testing.T) {
	d, store, _ := newTestRuntime(t, nil)

	t.Run("write then read round-trips", func(t *testing.T) {
		res := dispatch(t, d, "write_file", map[string]interface{}{
			"path": "notes.md", "content": "first line\n",
		})
		require.True(t, res.OK(), "write failed: %v", res.Err)

		res = dispatch(t, d, "read_file", map[string]interface{}{"path": "notes.md"})
		require.True(t, res.OK())
		assert.Equal(t, "first line\n", res.Output)
	})

	t.Run("append mode appends", func(t *testing.T) {
		res := dispatch(t, d, "write_file", map[string]interface{}{
			"path": "notes.md", "content": "second line\n", "append": true,
		})
		require.True(t, res.OK())

		content, err := store.Read("notes.md")
		require.NoError(t, err)
		assert.Equal(t, "first line\nsecond line\n", content)
	})

	t.Run("read of missing file is not_found", func(t *testing.T) {
		res := dispatch(t, d, "read_file", map[string]interface{}{"path": "absent.md"})
		require.False(t, res.OK())
		assert.Equal(t, dispatcher.KindNotFound, res.Err.Kind)
	})

	t.Run("path traversal is rejected", func(t *testing.T) {
		res := dispatch(t, d, "read_file", map[string]interface{}{"path": "../outside.md"})
		require.False(t, res.OK())
		assert.Equal(t, dispatcher.KindValidation, res.Err.Kind)
	})

	t.Run("edit replaces a single occurrence", func(t *testing.T) {
		require.NoError(t, store.Write("edit.md", "alpha beta alpha"))

		res := dispatch(t, d, "edit_file", map[string]interface{}{
			"path": "edit.md", "search": "alpha", "replace": "gamma",
		})
		require.True(t, res.OK())

		content, err := store.Read("edit.md")
		require.NoError(t, err)
		assert.Equal(t, "gamma beta alpha", content)
	})

	t.Run("edit replace_all replaces every occurrence", func(t *testing.T) {
		require.NoError(t, store.Write("edit_all.md", "x y x y x"))

		res := dispatch(t, d, "edit_file", map[string]interface{}{
			"path": "edit_all.md", "search": "x", "replace": "z", "replace_all": true,
		})
		require.True(t, res.OK())

		content, err := store.Read("edit_all.md")
		require.NoError(t, err)
		assert.Equal(t, "z y z y z", content)
	})

	t.Run("edit with absent search text fails without modifying", func(t *testing.T) {
		require.NoError(t, store.Write("untouched.md", "original"))

		res := dispatch(t, d, "edit_file", map[string]interface{}{
			"path": "untouched.md", "search": "missing", "replace": "new",
		})
		require.False(t, res.OK())
		assert.Equal(t, dispatcher.KindNotFound, res.Err.Kind)

		content, err := store.Read("untouched.md")
		require.NoError(t, err)
		assert.Equal(t, "original", content)
	})

	t.Run("list_dir shows entries with directory suffix", func(t *testing.T) {
		require.NoError(t, store.Write("dir/inner.md", "x"))

		res := dispatch(t, d, "list_dir", map[string]interface{}{})
		require.True(t, res.OK())
		assert.Contains(t, res.Output, "dir/")
		assert.Contains(t, res.Output, "notes.md")
	})
}

func TestExecTool(t *testing.T) {
	d, _, _ := newTestRuntime(t, nil)

	t.Run("captures stdout and exit code", func(t *testing.T) {
		res := dispatch(t, d, "exec", map[string]interface{}{"command": "echo hello"})
		require.True(t, res.OK(), "exec failed: %v", res.Err)

		var out struct {
			Stdout   string `json:"stdout"`
			ExitCode int    `json:"exit_code"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
		assert.Equal(t, "hello\n", out.Stdout)
		assert.Equal(t, 0, out.ExitCode)
	})

	t.Run("nonzero exit is reported not errored", func(t *testing.T) {
		res := dispatch(t, d, "exec", map[string]interface{}{"command": "exit 3"})
		require.True(t, res.OK())

		var out struct {
			ExitCode int `json:"exit_code"`
		}
		require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
		assert.Equal(t, 3, out.ExitCode)
	})

	t.Run("per-call timeout kills the process", func(t *testing.T) {
		res := dispatch(t, d, "exec", map[string]interface{}{
			"command": "sleep 5", "timeout": 0.1,
		})
		require.False(t, res.OK())
		assert.Equal(t, dispatcher.KindTimeout, res.Err.Kind)
	})

	t.Run("destructive commands are blocked by the guard", func(t *testing.T) {
		for _, command := range []string{
			"rm -rf /",
			"sudo  rm  -rf  /var",
			"mkfs.ext4 /dev/sda1",
			":(){ :|:& };:",
		} {
			res := dispatch(t, d, "exec", map[string]interface{}{"command": command})
			require.False(t, res.OK(), "expected %q to be blocked", command)
			assert.Equal(t, dispatcher.KindBlocked, res.Err.Kind)
		}
	})

	t.Run("ordinary rm is not blocked", func(t *testing.T) {
		res := dispatch(t, d, "exec", map[string]interface{}{"command": "rm -f scratch.txt"})
		assert.True(t, res.OK())
	})
}

func TestWebFetchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("fetched body"))
		case "/large":
			w.Write(bytes.Repeat([]byte("a"), 1024))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	d, _, _ := newTestRuntime(t, nil)

	t.Run("returns the body", func(t *testing.T) {
		res := dispatch(t, d, "web_fetch", map[string]interface{}{"url": server.URL + "/ok"})
		require.True(t, res.OK())
		assert.Equal(t, "fetched body", res.Output)
	})

	t.Run("max_bytes caps the body", func(t *testing.T) {
		res := dispatch(t, d, "web_fetch", map[string]interface{}{
			"url": server.URL + "/large", "max_bytes": 10,
		})
		require.True(t, res.OK())
		assert.Len(t, res.Output, 10)
	})

	t.Run("non-2xx status fails", func(t *testing.T) {
		res := dispatch(t, d, "web_fetch", map[string]interface{}{"url": server.URL + "/missing"})
		assert.False(t, res.OK())
	})

	t.Run("invalid scheme is a validation error", func(t *testing.T) {
		res := dispatch(t, d, "web_fetch", map[string]interface{}{"url": "ftp://example.com"})
		require.False(t, res.OK())
		assert.Equal(t, dispatcher.KindValidation, res.Err.Kind)
	})
}

func TestWebSearchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang schedulers", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode([]searchResult{
			{Title: "First", URL: "https://example.com/1", Snippet: "about schedulers"},
			{Title: "Second", URL: "https://example.com/2"},
			{Title: "Third", URL: "https://example.com/3"},
		})
	}))
	defer server.Close()

	t.Run("formats results from the endpoint", func(t *testing.T) {
		d, _, _ := newTestRuntime(t, func(o *Options) { o.WebSearchEndpoint = server.URL })

		res := dispatch(t, d, "web_search", map[string]interface{}{
			"query": "golang schedulers", "max_results": 2,
		})
		require.True(t, res.OK(), "search failed: %v", res.Err)
		assert.Contains(t, res.Output, "1. First")
		assert.Contains(t, res.Output, "2. Second")
		assert.NotContains(t, res.Output, "Third")
	})

	t.Run("missing endpoint is an internal error", func(t *testing.T) {
		d, _, _ := newTestRuntime(t, nil)

		res := dispatch(t, d, "web_search", map[string]interface{}{"query": "anything"})
		require.False(t, res.OK())
		assert.Equal(t, dispatcher.KindInternal, res.Err.Kind)
	})
}

func TestSendMessageTool(t *testing.T) {
	t.Run("routes to the default channel", func(t *testing.T) {
		d, _, out := newTestRuntime(t, nil)

		res := dispatch(t, d, "send_message", map[string]interface{}{"message": "task done"})
		require.True(t, res.OK(), "send failed: %v", res.Err)
		assert.Contains(t, out.String(), "[direct:operator] task done")
	})

	t.Run("explicit recipient overrides the default", func(t *testing.T) {
		d, _, out := newTestRuntime(t, nil)

		res := dispatch(t, d, "send_message", map[string]interface{}{
			"message": "hello", "to": "alice",
		})
		require.True(t, res.OK())
		assert.Contains(t, out.String(), "[direct:alice] hello")
	})

	t.Run("unknown channel is not_found", func(t *testing.T) {
		d, _, _ := newTestRuntime(t, nil)

		res := dispatch(t, d, "send_message", map[string]interface{}{
			"message": "hello", "channel": "telegram",
		})
		require.False(t, res.OK())
		assert.Equal(t, dispatcher.KindNotFound, res.Err.Kind)
	})
}
