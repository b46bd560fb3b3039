package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adrianhoehne/nanobot/internal/config"
	"github.com/adrianhoehne/nanobot/pkg/channels"
	"github.com/adrianhoehne/nanobot/pkg/clock"
	"github.com/adrianhoehne/nanobot/pkg/coretools"
	"github.com/adrianhoehne/nanobot/pkg/cron"
	"github.com/adrianhoehne/nanobot/pkg/dispatcher"
	"github.com/adrianhoehne/nanobot/pkg/heartbeat"
	"github.com/adrianhoehne/nanobot/pkg/subagent"
	"github.com/adrianhoehne/nanobot/pkg/workspace"
)

// Options carries the injectable seams of the daemon: the sub-agent runner
// (the reasoning loop lives outside this process's scope), the time source,
// and the writer backing the direct delivery channel.
type Options struct {
	Runner subagent.Runner
	Clock  clock.Clock
	Out    io.Writer
}

// Daemon wires the runtime together: workspace store, tool dispatcher,
// sub-agent spawner, cron scheduler, heartbeat runner, and the delivery
// channel registry.
type Daemon struct {
	cfg *config.Config
	clk clock.Clock

	store    *workspace.Store
	skills   *workspace.Skills
	registry *channels.Registry
	disp     *dispatcher.Dispatcher

	spawner   *subagent.Spawner
	cronStore *cron.Store
	cronSvc   *cron.Service
	heartbeat *heartbeat.Runner
}

// New builds a daemon from configuration.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	d := &Daemon{cfg: cfg, clk: opts.Clock}

	store, err := workspace.NewStore(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	if err := workspace.EnsureLayout(store); err != nil {
		return nil, fmt.Errorf("failed to prepare workspace layout: %w", err)
	}
	d.store = store

	d.skills = workspace.NewSkills(store)
	if err := d.skills.Watch(); err != nil {
		log.Warn().Err(err).Msg("Skills watcher unavailable, falling back to rescans")
	}

	d.registry = channels.NewRegistry()
	if err := d.registry.Register(channels.NewDirectChannel(cfg.DefaultChannel, opts.Out)); err != nil {
		return nil, err
	}

	d.disp = dispatcher.New(dispatcher.Options{
		Timeout:        time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
		MaxOutputBytes: cfg.Tools.MaxOutputBytes,
		Store:          store,
		HistoryPath:    workspace.HistoryFile,
	})

	defaultDelivery := channels.DeliveryAction{
		Channel: cfg.DefaultChannel,
		To:      cfg.DefaultRecipient,
	}

	if err := coretools.Register(d.disp, coretools.Options{
		Store:             store,
		Channels:          d.registry,
		DefaultDelivery:   defaultDelivery,
		ExecTimeout:       time.Duration(cfg.Tools.ExecTimeoutSeconds) * time.Second,
		WebSearchEndpoint: cfg.Tools.WebSearchEndpoint,
	}); err != nil {
		return nil, fmt.Errorf("failed to register core tools: %w", err)
	}

	if opts.Runner != nil {
		if err := d.wireSubagents(opts.Runner, defaultDelivery); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("No sub-agent runner configured, spawn tools disabled")
	}

	if cfg.Cron.Enabled {
		if err := d.wireCron(defaultDelivery); err != nil {
			return nil, err
		}
	}

	if cfg.Heartbeat.Enabled {
		runner, err := heartbeat.NewRunner(heartbeat.Options{
			Store:      store,
			Dispatcher: d.disp,
			Clock:      opts.Clock,
			Interval:   time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build heartbeat runner: %w", err)
		}
		d.heartbeat = runner
	}

	return d, nil
}

func (d *Daemon) wireSubagents(runner subagent.Runner, delivery channels.DeliveryAction) error {
	spawner, err := subagent.NewSpawner(subagent.Config{
		Runner:        runner,
		MaxConcurrent: d.cfg.Subagents.MaxConcurrent,
		Overflow:      subagent.OverflowPolicy(d.cfg.Subagents.OverflowPolicy),
		RegistryPath:  d.cfg.Subagents.RegistryPath,
		OnComplete: func(task subagent.Task) {
			action := delivery
			action.Message = completionMessage(task)
			if err := d.registry.Deliver(context.Background(), action); err != nil {
				log.Error().Str("taskId", task.ID).Err(err).Msg("Failed to deliver task completion")
			}
		},
		Logger: log.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build sub-agent spawner: %w", err)
	}
	d.spawner = spawner

	if err := subagent.RegisterTools(d.disp, spawner); err != nil {
		return fmt.Errorf("failed to register sub-agent tools: %w", err)
	}
	return nil
}

func (d *Daemon) wireCron(delivery channels.DeliveryAction) error {
	store, err := cron.NewStore(d.cfg.Cron.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open cron job store: %w", err)
	}
	d.cronStore = store

	svc, err := cron.NewService(cron.ServiceOptions{
		Store:        store,
		Clock:        d.clk,
		Deliver:      d.registry.Deliver,
		TickInterval: time.Duration(d.cfg.Cron.TickSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to build cron scheduler: %w", err)
	}
	d.cronSvc = svc

	defaultDelivery := cron.Delivery{Channel: delivery.Channel, To: delivery.To}
	if err := cron.RegisterTools(d.disp, store, d.clk, defaultDelivery); err != nil {
		return fmt.Errorf("failed to register cron tools: %w", err)
	}
	return nil
}

// completionMessage renders a terminal task as a delivery-ready line.
func completionMessage(task subagent.Task) string {
	label := task.Label
	if label == "" {
		label = task.ID
	}

	switch task.Status {
	case subagent.StatusCompleted:
		return fmt.Sprintf("sub-agent %s completed: %s", label, task.Result)
	case subagent.StatusCancelled:
		return fmt.Sprintf("sub-agent %s cancelled", label)
	default:
		return fmt.Sprintf("sub-agent %s failed: %s", label, task.Error)
	}
}

// Start launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.cronSvc != nil {
		if err := d.cronSvc.Start(ctx); err != nil {
			return err
		}
	}
	if d.heartbeat != nil {
		if err := d.heartbeat.Start(ctx); err != nil {
			return err
		}
	}

	log.Info().
		Str("workspace", d.store.Root()).
		Strs("tools", d.disp.Names()).
		Msg("Daemon started")
	return nil
}

// Stop shuts the background services down, persisting their state.
func (d *Daemon) Stop() {
	if d.heartbeat != nil {
		d.heartbeat.Stop()
	}
	if d.cronSvc != nil {
		d.cronSvc.Stop()
	}
	if d.spawner != nil {
		d.spawner.Stop()
	}
	if d.skills != nil {
		if err := d.skills.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close skills watcher")
		}
	}

	log.Info().Msg("Daemon stopped")
}

// Dispatcher exposes the tool dispatcher.
func (d *Daemon) Dispatcher() *dispatcher.Dispatcher {
	return d.disp
}

// Workspace exposes the workspace store.
func (d *Daemon) Workspace() *workspace.Store {
	return d.store
}

// Skills exposes the skills loader.
func (d *Daemon) Skills() *workspace.Skills {
	return d.skills
}

// CronStore exposes the cron job store; nil when cron is disabled.
func (d *Daemon) CronStore() *cron.Store {
	return d.cronStore
}

// Spawner exposes the sub-agent spawner; nil when no runner was configured.
func (d *Daemon) Spawner() *subagent.Spawner {
	return d.spawner
}

// Heartbeat exposes the heartbeat runner; nil when disabled.
func (d *Daemon) Heartbeat() *heartbeat.Runner {
	return d.heartbeat
}
