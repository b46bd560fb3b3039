package coretools

import (
	"context"
	"fmt"
	"strings"

	"github.com/adrianhoehne/nanobot/pkg/channels"
	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
)

func sendMessageTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "send_message",
		Description: "Send a message to a recipient over a delivery channel.",
		Parameters: []dispatcher.ToolParameter{
			{Name: "message", Type: "string", Description: "Message text", Required: true},
			{Name: "channel", Type: "string", Description: "Delivery channel (defaults to the configured channel)", Required: false},
			{Name: "to", Type: "string", Description: "Recipient ID (defaults to the configured recipient)", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			message, _ := args["message"].(string)
			if strings.TrimSpace(message) == "" {
				return "", dispatcher.Errorf(dispatcher.KindValidation, "message", "message is required")
			}

			action := opts.DefaultDelivery
			action.Message = message
			if channel, _ := args["channel"].(string); channel != "" {
				action.Channel = channel
			}
			if to, _ := args["to"].(string); to != "" {
				action.To = to
			}

			if !opts.Channels.IsRegistered(action.Channel) {
				return "", dispatcher.Errorf(dispatcher.KindNotFound, "channel",
					"channel %q is not registered", action.Channel)
			}

			if err := opts.Channels.Deliver(ctx, action); err != nil {
				return "", fmt.Errorf("delivery failed: %w", err)
			}

			return fmt.Sprintf("message sent to %s", channels.SessionKey(action.Channel, action.To)), nil
		},
	}
}
