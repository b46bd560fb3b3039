package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Sentinel errors surfaced by spawner operations.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskTerminal      = errors.New("task already in a terminal state")
	ErrResourceExhausted = errors.New("sub-agent concurrency bound reached")
)

// Config holds spawner configuration.
type Config struct {
	// Runner executes spawned tasks; required.
	Runner Runner
	// MaxConcurrent bounds simultaneously running tasks.
	MaxConcurrent int
	// Overflow decides the fate of spawns beyond the bound.
	Overflow OverflowPolicy
	// RegistryPath enables JSON persistence of the task registry when set.
	RegistryPath string
	// OnComplete is invoked once per task reaching a terminal state, so the
	// initiating context is informed by an explicit message action rather
	// than a silent shared-memory update.
	OnComplete func(task Task)
	Logger     zerolog.Logger
}

// Spawner creates and tracks isolated sub-agent tasks. Tasks run concurrently
// with the parent session and with each other; the workspace store's atomic
// primitives are the only ordering guarantee across them.
type Spawner struct {
	cfg Config

	mu      sync.RWMutex
	tasks   map[string]*Task
	cancels map[string]context.CancelFunc
	queue   []string
	running int
	closed  bool

	// persistMu serializes registry writes; Spawn, run, and Cancel persist
	// concurrently and share one temp file.
	persistMu sync.Mutex

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewSpawner creates a spawner.
func NewSpawner(cfg Config) (*Spawner, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Overflow == "" {
		cfg.Overflow = OverflowQueue
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Spawner{
		cfg:     cfg,
		tasks:   make(map[string]*Task),
		cancels: make(map[string]context.CancelFunc),
		baseCtx: ctx,
		stop:    cancel,
	}

	if err := s.loadRegistry(); err != nil {
		cfg.Logger.Warn().Err(err).Msg("Failed to load task registry, starting empty")
	}

	return s, nil
}

// Spawn creates a task for long-running work and returns its ID immediately;
// it never blocks on task completion.
func (s *Spawner) Spawn(description string, label string) (string, error) {
	if description == "" {
		return "", fmt.Errorf("description is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("spawner is stopped")
	}

	if s.running >= s.cfg.MaxConcurrent && s.cfg.Overflow == OverflowReject {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %d tasks running", ErrResourceExhausted, s.cfg.MaxConcurrent)
	}

	id, err := gonanoid.New()
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("failed to generate task ID: %w", err)
	}

	task := &Task{
		ID:          id,
		Description: description,
		Label:       label,
		Status:      StatusPending,
		CreatedAt:   time.Now().UnixMilli(),
	}
	s.tasks[id] = task

	if s.running < s.cfg.MaxConcurrent {
		s.startLocked(task)
	} else {
		s.queue = append(s.queue, id)
	}
	s.mu.Unlock()

	s.saveRegistry()

	s.cfg.Logger.Info().
		Str("taskId", id).
		Str("label", label).
		Msg("Sub-agent task spawned")

	return id, nil
}

// Get returns a copy of a task by ID.
func (s *Spawner) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return *task, nil
}

// List returns copies of all tracked tasks, newest first.
func (s *Spawner) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, *task)
	}
	for i := 0; i < len(out)-1; i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt > out[i].CreatedAt {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Cancel cancels a pending or running task. Cancellation of a running task is
// cooperative: it takes effect at the task's next suspension point.
func (s *Spawner) Cancel(id string) error {
	s.mu.Lock()

	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	switch task.Status {
	case StatusPending:
		s.removeFromQueueLocked(id)
		s.finishLocked(task, StatusCancelled, "", "cancelled before start")
		s.mu.Unlock()
		s.saveRegistry()
		s.notify(*task)
		return nil

	case StatusRunning:
		cancel := s.cancels[id]
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil

	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, id, task.Status)
	}
}

// Cleanup removes terminal tasks older than the retention window and returns
// how many were dropped. Tasks are retained at least until their result has
// had a chance to be consumed.
func (s *Spawner) Cleanup(retention time.Duration) int {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-retention).UnixMilli()

	s.mu.Lock()
	removed := 0
	for id, task := range s.tasks {
		if task.Status.IsTerminal() && task.CompletedAt != nil && *task.CompletedAt < cutoff {
			delete(s.tasks, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.saveRegistry()
		s.cfg.Logger.Info().Int("removed", removed).Msg("Task registry cleaned up")
	}
	return removed
}

// GetStats summarizes the registry.
func (s *Spawner) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Total: len(s.tasks)}
	for _, task := range s.tasks {
		switch task.Status {
		case StatusPending, StatusRunning:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Stop cancels all in-flight tasks and waits for their loops to return.
func (s *Spawner) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
	s.saveRegistry()

	s.cfg.Logger.Info().Msg("Sub-agent spawner stopped")
}

// startLocked transitions a task to running and launches its goroutine.
// Caller holds s.mu.
func (s *Spawner) startLocked(task *Task) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancels[task.ID] = cancel
	task.Status = StatusRunning
	s.running++

	s.wg.Add(1)
	go s.run(ctx, task.ID)
}

func (s *Spawner) run(ctx context.Context, id string) {
	defer s.wg.Done()

	s.mu.RLock()
	task := *s.tasks[id]
	s.mu.RUnlock()

	result, err := s.cfg.Runner.Run(ctx, task)

	s.mu.Lock()
	stored := s.tasks[id]
	delete(s.cancels, id)
	s.running--

	switch {
	case errors.Is(err, context.Canceled) || (err != nil && ctx.Err() == context.Canceled):
		s.finishLocked(stored, StatusCancelled, "", "cancelled")
	case err != nil:
		s.finishLocked(stored, StatusFailed, "", err.Error())
	default:
		s.finishLocked(stored, StatusCompleted, result, "")
	}
	done := *stored

	var next *Task
	for next == nil && len(s.queue) > 0 {
		nextID := s.queue[0]
		s.queue = s.queue[1:]
		if candidate, ok := s.tasks[nextID]; ok && candidate.Status == StatusPending {
			next = candidate
		}
	}
	if next != nil && !s.closed {
		s.startLocked(next)
	}
	s.mu.Unlock()

	s.saveRegistry()
	s.notify(done)
}

// finishLocked moves a task to a terminal status. Caller holds s.mu.
func (s *Spawner) finishLocked(task *Task, status Status, result string, errMsg string) {
	task.Status = status
	task.Result = result
	task.Error = errMsg
	now := time.Now().UnixMilli()
	task.CompletedAt = &now
}

func (s *Spawner) removeFromQueueLocked(id string) {
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// notify reports completion via the configured sink.
func (s *Spawner) notify(task Task) {
	if !task.Status.IsTerminal() {
		return
	}

	s.cfg.Logger.Info().
		Str("taskId", task.ID).
		Str("status", string(task.Status)).
		Msg("Sub-agent task finished")

	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(task)
	}
}

func (s *Spawner) loadRegistry() error {
	if s.cfg.RegistryPath == "" {
		return nil
	}

	data, err := os.ReadFile(s.cfg.RegistryPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read task registry: %w", err)
	}

	var registry Registry
	if err := json.Unmarshal(data, &registry); err != nil {
		return fmt.Errorf("failed to parse task registry: %w", err)
	}

	for _, task := range registry.Tasks {
		// A task that was in flight when the process died can never report
		// a result; surface that instead of leaving it running forever.
		if !task.Status.IsTerminal() {
			task.Status = StatusFailed
			task.Error = "interrupted by process restart"
			now := time.Now().UnixMilli()
			task.CompletedAt = &now
		}
		s.tasks[task.ID] = task
	}

	return nil
}

func (s *Spawner) saveRegistry() {
	if s.cfg.RegistryPath == "" {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		copied := *task
		tasks = append(tasks, &copied)
	}
	s.mu.RUnlock()

	registry := Registry{
		Version:     1,
		Tasks:       tasks,
		LastUpdated: time.Now().UnixMilli(),
	}

	data, err := json.MarshalIndent(registry, "", "  ")
	if err != nil {
		s.cfg.Logger.Error().Err(err).Msg("Failed to marshal task registry")
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.RegistryPath), 0700); err != nil {
		s.cfg.Logger.Error().Err(err).Msg("Failed to create registry directory")
		return
	}

	tempPath := s.cfg.RegistryPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		s.cfg.Logger.Error().Err(err).Msg("Failed to write temp registry file")
		return
	}
	if err := os.Rename(tempPath, s.cfg.RegistryPath); err != nil {
		os.Remove(tempPath)
		s.cfg.Logger.Error().Err(err).Msg("Failed to rename registry file")
	}
}
