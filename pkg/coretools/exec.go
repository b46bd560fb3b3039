package coretools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
)

// destructivePatterns lists command fragments the exec guard refuses. This is
// a best-effort safety net, not a sandbox.
var destructivePatterns = []string{
	"rm -rf /",
	"rm -fr /",
	"rm -rf ~",
	"rm -rf *",
	"mkfs",
	":(){",
	":() {",
	"dd if=/dev/zero of=/dev/",
	"> /dev/sda",
	"chmod -R 777 /",
}

func execTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "exec",
		Description: "Run a shell command in the workspace and capture its output.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "command", Type: "string", Description: "Shell command, run via /bin/sh -c", Required: true},
			{Name: "timeout", Type: "number", Description: "Timeout in seconds (defaults to the configured exec timeout)", Required: false},
		},
		Guard: guardDestructive,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			command, _ := args["command"].(string)
			command = strings.TrimSpace(command)
			if command == "" {
				return "", dispatcher.Errorf(dispatcher.KindValidation, "command", "command is required")
			}

			timeout := opts.ExecTimeout
			if raw, ok := args["timeout"].(float64); ok && raw > 0 {
				timeout = time.Duration(raw * float64(time.Second))
			}

			execCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
			cmd.Dir = opts.Store.Root()

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			start := time.Now()
			err := cmd.Run()
			duration := time.Since(start)

			if execCtx.Err() == context.DeadlineExceeded {
				return "", dispatcher.Errorf(dispatcher.KindTimeout, "",
					"command killed after %s", timeout)
			}

			exitCode := 0
			if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					exitCode = exitErr.ExitCode()
				} else {
					return "", fmt.Errorf("failed to run command: %w", err)
				}
			}

			payload, err := json.Marshal(map[string]interface{}{
				"stdout":      stdout.String(),
				"stderr":      stderr.String(),
				"exit_code":   exitCode,
				"duration_ms": duration.Milliseconds(),
			})
			if err != nil {
				return "", err
			}
			return string(payload), nil
		},
	}
}

// guardDestructive refuses commands matching known destructive patterns.
func guardDestructive(args map[string]interface{}) string {
	command, _ := args["command"].(string)
	normalized := strings.Join(strings.Fields(command), " ")

	for _, pattern := range destructivePatterns {
		if strings.Contains(normalized, pattern) {
			return fmt.Sprintf("command refused: matches destructive pattern %q", pattern)
		}
	}
	return ""
}
