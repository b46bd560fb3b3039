package coretools

import (
	"fmt"
	"net/http"
	"time"

	"github.com/adrianhoehne/nanobot/pkg/channels"
	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
	"github.com/adrianhoehne/nanobot/pkg/workspace"
)

// Options configures core tool registration.
type Options struct {
	Store    *workspace.Store
	Channels *channels.Registry

	// DefaultDelivery fills in send_message's channel and recipient when the
	// caller omits them.
	DefaultDelivery channels.DeliveryAction

	// ExecTimeout bounds exec calls that do not pass their own timeout.
	ExecTimeout time.Duration

	// WebSearchEndpoint is the HTTP endpoint web_search queries. Empty
	// disables the tool.
	WebSearchEndpoint string

	// MaxFetchBytes caps web_fetch response bodies. Zero means 256 KiB.
	MaxFetchBytes int64

	// HTTPClient overrides the client used by the web tools.
	HTTPClient *http.Client
}

// Register registers the baseline filesystem, shell, web, and messaging tools.
func Register(d *dispatcher.Dispatcher, opts Options) error {
	if opts.Store == nil {
		return fmt.Errorf("workspace store is required")
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = 60 * time.Second
	}
	if opts.MaxFetchBytes <= 0 {
		opts.MaxFetchBytes = 256 * 1024
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	tools := []dispatcher.ToolDefinition{
		readFileTool(opts),
		writeFileTool(opts),
		editFileTool(opts),
		listDirTool(opts),
		execTool(opts),
		webFetchTool(opts),
		webSearchTool(opts),
	}
	if opts.Channels != nil {
		tools = append(tools, sendMessageTool(opts))
	}

	for _, tool := range tools {
		if err := d.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}
