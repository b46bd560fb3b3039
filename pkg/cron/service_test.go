package cron

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrianhoehne/nanobot/pkg/channels"
	"github.com/adrianhoehne/nanobot/pkg/clock"
)

// deliveryRecorder collects delivery actions across goroutines.
type deliveryRecorder struct {
	mu      sync.Mutex
	actions []channels.DeliveryAction
}

func (r *deliveryRecorder) deliver(_ context.Context, action channels.DeliveryAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func (r *deliveryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actions)
}

func (r *deliveryRecorder) last() channels.DeliveryAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actions[len(r.actions)-1]
}

func startTestService(t *testing.T, store *Store, clk clock.Clock) (*Service, *deliveryRecorder) {
	t.Helper()

	rec := &deliveryRecorder{}
	svc, err := NewService(ServiceOptions{
		Store:        store,
		Clock:        clk,
		Deliver:      rec.deliver,
		TickInterval: 5 * time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)
	return svc, rec
}

func TestServiceFiresOneTimeJobOnce(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	store, _ := newTestStore(t)

	job, err := store.Add(AddParams{
		Name:     "reminder",
		Message:  "stand up",
		Trigger:  Trigger{Kind: TriggerAt, At: start.Add(5 * time.Second).Format(time.RFC3339)},
		Delivery: Delivery{Channel: "direct", To: "alice"},
	}, start)
	require.NoError(t, err)

	_, rec := startTestService(t, store, fake)

	fake.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	action := rec.last()
	assert.Equal(t, "direct", action.Channel)
	assert.Equal(t, "alice", action.To)
	assert.Equal(t, "stand up", action.Message)

	// A fired one-time job is gone; later ticks deliver nothing more.
	_, err = store.Get(job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	fake.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestServiceReschedulesRecurringJob(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	store, _ := newTestStore(t)

	job, err := store.Add(AddParams{
		Name:     "pulse",
		Message:  "tick",
		Trigger:  Trigger{Kind: TriggerEvery, EverySeconds: 10},
		Delivery: Delivery{Channel: "direct", To: "bob"},
	}, start)
	require.NoError(t, err)

	_, rec := startTestService(t, store, fake)

	fake.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Greater(t, got.NextRunAt, fake.Now().UnixMilli())

	fake.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestServiceCatchesUpAfterRestart(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "jobs.json")

	store, err := NewStore(path)
	require.NoError(t, err)

	_, err = store.Add(AddParams{
		Name:     "missed",
		Message:  "overdue",
		Trigger:  Trigger{Kind: TriggerAt, At: start.Add(5 * time.Second).Format(time.RFC3339)},
		Delivery: Delivery{Channel: "direct", To: "carol"},
	}, start)
	require.NoError(t, err)

	// The process was down while the job came due. On startup the scheduler
	// evaluates immediately and fires it exactly once.
	fake := clock.NewFake(start.Add(time.Hour))
	reopened, err := NewStore(path)
	require.NoError(t, err)

	_, rec := startTestService(t, reopened, fake)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "overdue", rec.last().Message)
	assert.Equal(t, 0, reopened.Len())

	fake.Advance(time.Minute)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestServiceStartStop(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store, _ := newTestStore(t)

	rec := &deliveryRecorder{}
	svc, err := NewService(ServiceOptions{Store: store, Clock: fake, Deliver: rec.deliver})
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()))

	svc.Stop()
	// Stop is idempotent.
	svc.Stop()
}

func TestNewServiceValidation(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := NewService(ServiceOptions{Deliver: func(context.Context, channels.DeliveryAction) error { return nil }})
	assert.Error(t, err)

	_, err = NewService(ServiceOptions{Store: store})
	assert.Error(t, err)
}
