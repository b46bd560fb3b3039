package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/adrianhoehne/nanobot/pkg/workspace"
)

const defaultMaxOutputBytes = 64 * 1024

// Options configures the dispatcher.
type Options struct {
	// Timeout is the per-call ceiling for synchronous tool execution.
	Timeout time.Duration
	// MaxOutputBytes caps tool output; larger output is truncated.
	MaxOutputBytes int
	// Store and HistoryPath, when both set, enable history recording: one
	// appended line per dispatched call.
	Store       *workspace.Store
	HistoryPath string
}

// Dispatcher validates and routes tool-call requests to their handlers. It is
// the sole entry point for conversation-driven work; the main session calls
// Dispatch strictly sequentially, while sub-agents and timers may dispatch
// concurrently.
type Dispatcher struct {
	opts Options

	mu      sync.RWMutex
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutputBytes
	}

	return &Dispatcher{
		opts:    opts,
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool, compiling a JSON Schema from its parameter list.
func (d *Dispatcher) Register(def ToolDefinition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := generateSchema(def)
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}

	d.tools[def.Name] = &def
	d.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name.
func (d *Dispatcher) Get(name string) *ToolDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tools[name]
}

// Names returns sorted registered tool names.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch validates a request and executes its tool, returning exactly one
// result. Validation failures produce no side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, req ToolCallRequest) ToolResult {
	start := time.Now()

	d.mu.RLock()
	tool := d.tools[req.Name]
	schema := d.schemas[req.Name]
	d.mu.RUnlock()

	if tool == nil {
		log.Warn().Str("tool", req.Name).Msg("Unknown tool requested")
		return d.finish(req, start, ToolResult{
			CallID: req.CallID,
			Err:    Errorf(KindValidation, "name", "unknown tool: %s", req.Name),
		})
	}

	args := req.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	if err := validateArguments(schema, args); err != nil {
		log.Warn().Str("tool", req.Name).Err(err).Msg("Argument validation failed")
		return d.finish(req, start, ToolResult{
			CallID: req.CallID,
			Err:    Errorf(KindValidation, "arguments", "%s", err.Error()),
		})
	}

	if tool.Guard != nil {
		if warning := tool.Guard(args); warning != "" {
			log.Warn().Str("tool", req.Name).Str("warning", warning).Msg("Tool call blocked by safety guard")
			return d.finish(req, start, ToolResult{
				CallID: req.CallID,
				Err:    Errorf(KindBlocked, "", "%s", warning),
			})
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		output, err := tool.Handler(timeoutCtx, args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if timeoutCtx.Err() == context.DeadlineExceeded {
				return d.finish(req, start, ToolResult{
					CallID: req.CallID,
					Err:    Errorf(KindTimeout, "", "tool execution exceeded %s", d.opts.Timeout),
				})
			}
			log.Error().Str("tool", req.Name).Err(res.err).Msg("Tool execution failed")
			return d.finish(req, start, ToolResult{
				CallID: req.CallID,
				Err:    AsError(res.err),
			})
		}

		output, truncated := truncate(res.output, d.opts.MaxOutputBytes)
		return d.finish(req, start, ToolResult{
			CallID:    req.CallID,
			Output:    output,
			Truncated: truncated,
		})

	case <-timeoutCtx.Done():
		log.Error().
			Str("tool", req.Name).
			Dur("timeout", d.opts.Timeout).
			Msg("Tool execution timeout")
		return d.finish(req, start, ToolResult{
			CallID: req.CallID,
			Err:    Errorf(KindTimeout, "", "tool execution exceeded %s", d.opts.Timeout),
		})
	}
}

// finish records the call in the history log and returns the result.
func (d *Dispatcher) finish(req ToolCallRequest, start time.Time, result ToolResult) ToolResult {
	duration := time.Since(start)

	log.Debug().
		Str("tool", req.Name).
		Str("callId", req.CallID).
		Bool("ok", result.OK()).
		Dur("duration", duration).
		Msg("Tool call dispatched")

	if d.opts.Store != nil && d.opts.HistoryPath != "" {
		status := "ok"
		if !result.OK() {
			status = string(result.Err.Kind)
		}
		line := fmt.Sprintf("%s tool=%s status=%s duration=%dms\n",
			time.Now().UTC().Format(time.RFC3339), req.Name, status, duration.Milliseconds())
		if err := d.opts.Store.Append(d.opts.HistoryPath, line); err != nil {
			log.Error().Err(err).Msg("Failed to record history entry")
		}
	}

	return result
}

func validateDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

func generateSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateArguments(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}
		return fmt.Errorf("validation errors: %v", messages)
	}

	return nil
}

func truncate(output string, max int) (string, bool) {
	if len(output) <= max {
		return output, false
	}
	return output[:max] + "\n... [output truncated]", true
}
