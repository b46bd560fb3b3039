package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adrianhoehne/nanobot/pkg/channels"
	"github.com/adrianhoehne/nanobot/pkg/clock"
)

// DeliverFunc routes a firing job's delivery action. Delivery is best-effort;
// job consumption is authoritative regardless of the delivery outcome.
type DeliverFunc func(ctx context.Context, action channels.DeliveryAction) error

// ServiceOptions configures the scheduler.
type ServiceOptions struct {
	Store   *Store
	Clock   clock.Clock
	Deliver DeliverFunc
	// TickInterval is the scheduler's wake resolution.
	TickInterval time.Duration
}

// Service is the background scheduler over the durable job store. It wakes on
// a fixed short resolution and fires every due job exactly once per due
// occurrence, including occurrences missed while the process was down
// (catch-up-once).
type Service struct {
	store   *Store
	clk     clock.Clock
	deliver DeliverFunc
	tick    time.Duration

	mu      sync.Mutex
	started bool
	stop    context.CancelFunc
	done    chan struct{}
}

// NewService creates the scheduler.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Deliver == nil {
		return nil, fmt.Errorf("deliver function is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 5 * time.Second
	}

	return &Service{
		store:   opts.Store,
		clk:     opts.Clock,
		deliver: opts.Deliver,
		tick:    opts.TickInterval,
	}, nil
}

// Start launches the scheduling loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.started = true
	s.stop = cancel
	s.done = make(chan struct{})

	// Create the ticker before the loop goroutine starts so the schedule is
	// registered with the clock by the time Start returns.
	ticker := s.clk.NewTicker(s.tick)
	go s.loop(loopCtx, ticker)

	log.Info().
		Dur("tick", s.tick).
		Int("jobCount", s.store.Len()).
		Msg("Cron scheduler started")
	return nil
}

// Stop halts the scheduling loop and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	stop()
	<-done

	log.Info().Msg("Cron scheduler stopped")
}

func (s *Service) loop(ctx context.Context, ticker clock.Ticker) {
	defer close(s.done)
	defer ticker.Stop()

	// Evaluate immediately so jobs that came due while the process was down
	// fire on startup, not one tick later.
	s.runDue(ctx)

	for {
		select {
		case <-ticker.C():
			s.runDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runDue fires every due job exactly once per due occurrence.
func (s *Service) runDue(ctx context.Context) {
	now := s.clk.Now()

	for _, job := range s.store.Due(now) {
		// Consume before delivering: a crash between the two loses at most
		// one delivery, never duplicates a firing.
		if err := s.store.Consume(job.ID, now); err != nil {
			log.Error().Str("jobId", job.ID).Err(err).Msg("Failed to consume due job")
			continue
		}

		action := channels.DeliveryAction{
			Channel: job.Delivery.Channel,
			To:      job.Delivery.To,
			Message: job.Message,
		}
		if err := s.deliver(ctx, action); err != nil {
			log.Error().
				Str("jobId", job.ID).
				Str("name", job.Name).
				Err(err).
				Msg("Job delivery failed")
			continue
		}

		log.Info().
			Str("jobId", job.ID).
			Str("name", job.Name).
			Str("to", channels.SessionKey(job.Delivery.Channel, job.Delivery.To)).
			Msg("Job fired")
	}
}
