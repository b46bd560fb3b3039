package subagent

import "context"

// Status tracks a task through its forward-only lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true for statuses a task never leaves.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Task is the spawner-owned record of a sub-agent run. The parent session
// holds only the ID, never a handle into the sub-agent's internal state.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Label       string `json:"label,omitempty"`
	SessionKey  string `json:"sessionKey,omitempty"`
	Status      Status `json:"status"`
	Result      string `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	CompletedAt *int64 `json:"completedAt,omitempty"`
}

// Runner executes one sub-agent task: an isolated reasoning/tool-call loop.
// The concrete loop lives outside this module; cancellation is cooperative
// through ctx.
type Runner interface {
	Run(ctx context.Context, task Task) (result string, err error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task Task) (string, error)

func (f RunnerFunc) Run(ctx context.Context, task Task) (string, error) {
	return f(ctx, task)
}

// OverflowPolicy decides what happens to spawns beyond the concurrency bound.
type OverflowPolicy string

const (
	// OverflowQueue keeps excess tasks pending until a slot frees up.
	OverflowQueue OverflowPolicy = "queue"
	// OverflowReject fails excess spawns with a resource-exhausted error.
	OverflowReject OverflowPolicy = "reject"
)

// Registry is the persisted task registry file format.
type Registry struct {
	Version     int     `json:"version"`
	Tasks       []*Task `json:"tasks"`
	LastUpdated int64   `json:"lastUpdated"`
}

// Stats summarizes the registry.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
