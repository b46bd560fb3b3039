package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrianhoehne/nanobot/pkg/cron"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "nanobot.json")
	content := fmt.Sprintf(`{
  "workspace": %q,
  "data_dir": %q,
  "cron": {"enabled": true, "tick_seconds": 5, "store_path": %q}
}`,
		filepath.Join(dir, "workspace"),
		dir,
		filepath.Join(dir, "cron-jobs.json"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Package-level flag state leaks between executions; reset it.
	cronName, cronMessage, cronAt, cronExpr, cronTo, cronChannel = "", "", "", "", "", ""
	cronEvery = 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCronAddListRemove(t *testing.T) {
	cfgPath := writeTestConfig(t)
	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	out, err := runCLI(t, "--config", cfgPath, "cron", "add",
		"--name", "daily-brief",
		"--message", "morning summary",
		"--at", at,
		"--to", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "created job")

	out, err = runCLI(t, "--config", cfgPath, "cron", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "daily-brief")
	assert.Contains(t, out, "direct:alice")

	// The store on disk is the same one the daemon reads.
	store, err := cron.NewStore(filepath.Join(filepath.Dir(cfgPath), "cron-jobs.json"))
	require.NoError(t, err)
	jobs := store.List()
	require.Len(t, jobs, 1)

	out, err = runCLI(t, "--config", cfgPath, "cron", "remove", jobs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "removed job")

	out, err = runCLI(t, "--config", cfgPath, "cron", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no scheduled jobs")
}

func TestCronAddSessionKeyRecipient(t *testing.T) {
	cfgPath := writeTestConfig(t)

	t.Run("session key sets channel and recipient", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfgPath, "cron", "add",
			"--name", "tg-brief", "--message", "m", "--every", "60",
			"--to", "telegram:bob")
		require.NoError(t, err)

		store, err := cron.NewStore(filepath.Join(filepath.Dir(cfgPath), "cron-jobs.json"))
		require.NoError(t, err)
		jobs := store.List()
		require.Len(t, jobs, 1)
		assert.Equal(t, "telegram", jobs[0].Delivery.Channel)
		assert.Equal(t, "bob", jobs[0].Delivery.To)
	})

	t.Run("explicit channel keeps --to opaque", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfgPath, "cron", "add",
			"--name", "colon-id", "--message", "m", "--every", "60",
			"--channel", "direct", "--to", "room:42")
		require.NoError(t, err)

		store, err := cron.NewStore(filepath.Join(filepath.Dir(cfgPath), "cron-jobs.json"))
		require.NoError(t, err)
		for _, job := range store.List() {
			if job.Name != "colon-id" {
				continue
			}
			assert.Equal(t, "direct", job.Delivery.Channel)
			assert.Equal(t, "room:42", job.Delivery.To)
			return
		}
		t.Fatal("job colon-id not found")
	})
}

func TestCronAddValidation(t *testing.T) {
	cfgPath := writeTestConfig(t)

	t.Run("no trigger flag fails", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfgPath, "cron", "add",
			"--name", "n", "--message", "m")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one of")
	})

	t.Run("two trigger flags fail", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfgPath, "cron", "add",
			"--name", "n", "--message", "m",
			"--at", "2030-01-01T00:00:00Z", "--every", "60")
		assert.Error(t, err)
	})

	t.Run("past timestamp fails", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfgPath, "cron", "add",
			"--name", "n", "--message", "m",
			"--at", "2001-01-01T00:00:00Z")
		require.Error(t, err)
		assert.ErrorIs(t, err, cron.ErrInvalidJob)
	})

	t.Run("duplicate name fails", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfgPath, "cron", "add",
			"--name", "dup", "--message", "m", "--every", "60")
		require.NoError(t, err)

		_, err = runCLI(t, "--config", cfgPath, "cron", "add",
			"--name", "dup", "--message", "m", "--every", "60")
		assert.ErrorIs(t, err, cron.ErrDuplicateName)
	})

	t.Run("removing unknown job fails", func(t *testing.T) {
		_, err := runCLI(t, "--config", cfgPath, "cron", "remove", "no-such-id")
		assert.ErrorIs(t, err, cron.ErrJobNotFound)
	})
}

func TestRootCommand(t *testing.T) {
	out, err := runCLI(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "start")
	assert.Contains(t, out, "cron")
}
