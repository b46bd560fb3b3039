package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adrianhoehne/nanobot/pkg/clock"
	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
)

// RegisterTools registers the cron-management tools against the dispatcher.
// Store mutation is synchronous even though job firing is asynchronous.
func RegisterTools(d *dispatcher.Dispatcher, store *Store, clk clock.Clock, defaultDelivery Delivery) error {
	if clk == nil {
		clk = clock.New()
	}

	tools := []dispatcher.ToolDefinition{
		addTool(store, clk, defaultDelivery),
		listTool(store),
		removeTool(store),
	}

	for _, tool := range tools {
		if err := d.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func addTool(store *Store, clk clock.Clock, defaultDelivery Delivery) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "cron_add",
		Description: "Create a scheduled job that delivers a message when due. Exactly one of at, cron, or every_seconds selects the trigger.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "name", Type: "string", Description: "Unique job name", Required: true},
			{Name: "message", Type: "string", Description: "Message delivered when the job fires", Required: true},
			{Name: "at", Type: "string", Description: "RFC 3339 timestamp for a one-time job", Required: false},
			{Name: "cron", Type: "string", Description: "5-field cron expression for a recurring job", Required: false},
			{Name: "every_seconds", Type: "integer", Description: "Interval in seconds for a recurring job", Required: false},
			{Name: "channel", Type: "string", Description: "Delivery channel (defaults to the configured channel)", Required: false},
			{Name: "to", Type: "string", Description: "Recipient ID (defaults to the configured recipient)", Required: false},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			trigger, err := TriggerFromArgs(args)
			if err != nil {
				return "", dispatcher.Errorf(dispatcher.KindValidation, "trigger", "%s", err.Error())
			}

			delivery := defaultDelivery
			if channel, _ := args["channel"].(string); channel != "" {
				delivery.Channel = channel
			}
			if to, _ := args["to"].(string); to != "" {
				delivery.To = to
			}

			name, _ := args["name"].(string)
			message, _ := args["message"].(string)

			job, err := store.Add(AddParams{
				Name:     name,
				Message:  message,
				Trigger:  trigger,
				Delivery: delivery,
			}, clk.Now())
			if err != nil {
				return "", mapStoreError(err)
			}

			return fmt.Sprintf("created job %s (%s), next run %s",
				job.ID, job.Name, time.UnixMilli(job.NextRunAt).UTC().Format(time.RFC3339)), nil
		},
	}
}

func listTool(store *Store) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "cron_list",
		Description: "List all scheduled jobs.",
		Handler: func(_ context.Context, _ map[string]interface{}) (string, error) {
			payload, err := json.Marshal(store.List())
			if err != nil {
				return "", err
			}
			return string(payload), nil
		},
	}
}

func removeTool(store *Store) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "cron_remove",
		Description: "Remove a scheduled job by ID.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "job_id", Type: "string", Description: "ID of the job to remove", Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (string, error) {
			id, _ := args["job_id"].(string)

			if err := store.Remove(id); err != nil {
				return "", mapStoreError(err)
			}
			return fmt.Sprintf("removed job %s", id), nil
		},
	}
}

// TriggerFromArgs builds a trigger from tool or CLI arguments, requiring
// exactly one of at / cron / every_seconds.
func TriggerFromArgs(args map[string]interface{}) (Trigger, error) {
	at, _ := args["at"].(string)
	expr, _ := args["cron"].(string)

	var every int64
	switch v := args["every_seconds"].(type) {
	case float64:
		every = int64(v)
	case int:
		every = int64(v)
	case int64:
		every = v
	}

	set := 0
	if at != "" {
		set++
	}
	if expr != "" {
		set++
	}
	if every != 0 {
		set++
	}
	if set != 1 {
		return Trigger{}, fmt.Errorf("exactly one of at, cron, or every_seconds is required")
	}

	switch {
	case at != "":
		return Trigger{Kind: TriggerAt, At: at}, nil
	case expr != "":
		return Trigger{Kind: TriggerCron, Expr: expr}, nil
	default:
		return Trigger{Kind: TriggerEvery, EverySeconds: every}, nil
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return dispatcher.Errorf(dispatcher.KindNotFound, "job_id", "%s", err.Error())
	case errors.Is(err, ErrDuplicateName):
		return dispatcher.Errorf(dispatcher.KindConflict, "name", "%s", err.Error())
	case errors.Is(err, ErrInvalidJob):
		return dispatcher.Errorf(dispatcher.KindValidation, "", "%s", err.Error())
	default:
		return err
	}
}
