package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
)

// RegisterTools registers the spawn and task-management tools.
func RegisterTools(d *dispatcher.Dispatcher, spawner *Spawner) error {
	tools := []dispatcher.ToolDefinition{
		spawnTool(spawner),
		statusTool(spawner),
		cancelTool(spawner),
		listTool(spawner),
	}

	for _, tool := range tools {
		if err := d.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func spawnTool(spawner *Spawner) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "spawn",
		Description: "Spawn an isolated sub-agent task for long-running work; returns a task_id immediately.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "description", Type: "string", Description: "What the sub-agent should do", Required: true},
			{Name: "label", Type: "string", Description: "Optional short label", Required: false},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			description, _ := args["description"].(string)
			label, _ := args["label"].(string)

			id, err := spawner.Spawn(description, label)
			if err != nil {
				return "", mapError(err)
			}
			return fmt.Sprintf("spawned task %s", id), nil
		},
	}
}

func statusTool(spawner *Spawner) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "subagent_status",
		Description: "Report the status and, when finished, the result of a sub-agent task.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "task_id", Type: "string", Description: "Task ID returned by spawn", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			id, _ := args["task_id"].(string)

			task, err := spawner.Get(id)
			if err != nil {
				return "", mapError(err)
			}

			payload, err := json.Marshal(task)
			if err != nil {
				return "", err
			}
			return string(payload), nil
		},
	}
}

func cancelTool(spawner *Spawner) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "subagent_cancel",
		Description: "Cancel a pending or running sub-agent task by ID.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "task_id", Type: "string", Description: "Task ID returned by spawn", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			id, _ := args["task_id"].(string)

			if err := spawner.Cancel(id); err != nil {
				return "", mapError(err)
			}
			return fmt.Sprintf("cancellation requested for task %s", id), nil
		},
	}
}

func listTool(spawner *Spawner) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "subagent_list",
		Description: "List all tracked sub-agent tasks, newest first.",
		Handler: func(_ context.Context, _ map[string]interface{}) (string, error) {
			payload, err := json.Marshal(spawner.List())
			if err != nil {
				return "", err
			}
			return string(payload), nil
		},
	}
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		return dispatcher.Errorf(dispatcher.KindNotFound, "task_id", "%s", err.Error())
	case errors.Is(err, ErrTaskTerminal):
		return dispatcher.Errorf(dispatcher.KindConflict, "task_id", "%s", err.Error())
	case errors.Is(err, ErrResourceExhausted):
		return dispatcher.Errorf(dispatcher.KindResourceExhausted, "", "%s", err.Error())
	default:
		return err
	}
}
