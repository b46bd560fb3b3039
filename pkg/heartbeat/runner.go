package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adrianhoehne/nanobot/pkg/clock"
	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
	"github.com/adrianhoehne/nanobot/pkg/workspace"
)

// Options configures the heartbeat runner.
type Options struct {
	Store      *workspace.Store
	Dispatcher *dispatcher.Dispatcher
	Clock      clock.Clock

	// Interval between heartbeat cycles.
	Interval time.Duration

	// ChecklistPath is the checklist file relative to the workspace root.
	// Defaults to the standard layout location.
	ChecklistPath string
}

// Runner periodically works through the workspace checklist: each cycle reads
// the checklist, dispatches every unchecked item, and checks off the items
// that succeeded. Failed items stay unchecked and are retried next cycle.
type Runner struct {
	store      *workspace.Store
	dispatcher *dispatcher.Dispatcher
	clk        clock.Clock
	interval   time.Duration
	path       string

	// running guards against overlapping cycles: a cycle still in flight when
	// the next tick arrives causes that tick to be skipped, not queued.
	running atomic.Bool

	mu      sync.Mutex
	started bool
	stop    context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a heartbeat runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("workspace store is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.ChecklistPath == "" {
		opts.ChecklistPath = workspace.ChecklistFile
	}

	return &Runner{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		clk:        opts.Clock,
		interval:   opts.Interval,
		path:       opts.ChecklistPath,
	}, nil
}

// Start launches the heartbeat loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("heartbeat already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.started = true
	r.stop = cancel
	r.done = make(chan struct{})

	// Create the ticker before the loop goroutine starts so the schedule is
	// registered with the clock by the time Start returns.
	ticker := r.clk.NewTicker(r.interval)
	go r.loop(loopCtx, ticker)

	log.Info().
		Dur("interval", r.interval).
		Str("checklist", r.path).
		Msg("Heartbeat started")
	return nil
}

// Stop halts the heartbeat loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	stop := r.stop
	done := r.done
	r.mu.Unlock()

	stop()
	<-done

	log.Info().Msg("Heartbeat stopped")
}

// RunNow triggers an immediate cycle, subject to the same overlap guard as
// the timer-driven cycles.
func (r *Runner) RunNow(ctx context.Context) {
	r.runCycle(ctx)
}

func (r *Runner) loop(ctx context.Context, ticker clock.Ticker) {
	defer close(r.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			r.runCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runCycle executes one heartbeat pass over the checklist. Cycles never
// overlap; a pass requested while one is in flight is dropped.
func (r *Runner) runCycle(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		log.Debug().Msg("Heartbeat cycle skipped, previous still running")
		return
	}
	defer r.running.Store(false)

	content, err := r.store.Read(r.path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read heartbeat checklist")
		return
	}

	items, malformed := ParseChecklist(content)
	for _, line := range malformed {
		log.Warn().Str("item", line).Msg("Skipping malformed heartbeat checklist item")
	}

	pending := 0
	for i, item := range items {
		if item.Done {
			continue
		}
		pending++

		if err := r.runItem(ctx, i, item); err != nil {
			log.Warn().
				Str("tool", item.Tool).
				Err(err).
				Msg("Heartbeat item failed, will retry next cycle")
			continue
		}

		if err := r.markDone(item); err != nil {
			log.Error().Str("tool", item.Tool).Err(err).Msg("Failed to check off heartbeat item")
		}
	}

	if pending > 0 {
		log.Debug().Int("pending", pending).Msg("Heartbeat cycle finished")
	}
}

func (r *Runner) runItem(ctx context.Context, seq int, item Item) error {
	result := r.dispatcher.Dispatch(ctx, dispatcher.ToolCallRequest{
		Name:      item.Tool,
		Arguments: item.Args,
		CallID:    r.callID(seq),
	})
	if !result.OK() {
		return result.Err
	}
	return nil
}

// callID identifies one item dispatch. The sequence component keeps items
// within a cycle distinguishable even when the clock does not advance between
// them.
func (r *Runner) callID(seq int) string {
	return fmt.Sprintf("heartbeat-%d-%d", r.clk.Now().UnixNano(), seq)
}

// markDone checks the item off in the checklist file. The read-modify-write
// cycle is atomic, so a concurrent checklist edit is never lost.
func (r *Runner) markDone(item Item) error {
	return r.store.ReadModifyWrite(r.path, func(current string) (string, error) {
		return MarkDone(current, item), nil
	})
}
