package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adrianhoehne/nanobot/internal/config"
	"github.com/adrianhoehne/nanobot/pkg/channels"
	"github.com/adrianhoehne/nanobot/pkg/cron"
)

var (
	cronName    string
	cronMessage string
	cronAt      string
	cronExpr    string
	cronEvery   int64
	cronTo      string
	cronChannel string
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Manage scheduled jobs",
}

var cronAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a scheduled job",
	Long: `Create a scheduled job that delivers a message when due.
Exactly one of --at, --cron, or --every selects the trigger.`,
	RunE: runCronAdd,
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE:  runCronList,
}

var cronRemoveCmd = &cobra.Command{
	Use:   "remove <job_id>",
	Short: "Remove a scheduled job by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronRemove,
}

func init() {
	cronAddCmd.Flags().StringVar(&cronName, "name", "", "unique job name (required)")
	cronAddCmd.Flags().StringVar(&cronMessage, "message", "", "message delivered when the job fires (required)")
	cronAddCmd.Flags().StringVar(&cronAt, "at", "", "RFC 3339 timestamp for a one-time job")
	cronAddCmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression for a recurring job")
	cronAddCmd.Flags().Int64Var(&cronEvery, "every", 0, "interval in seconds for a recurring job")
	cronAddCmd.Flags().StringVar(&cronTo, "to", "", "recipient ID or <channel>:<recipient> (defaults to the configured recipient)")
	cronAddCmd.Flags().StringVar(&cronChannel, "channel", "", "delivery channel (defaults to the configured channel)")
	cronAddCmd.MarkFlagRequired("name")
	cronAddCmd.MarkFlagRequired("message")

	cronCmd.AddCommand(cronAddCmd)
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronRemoveCmd)
	rootCmd.AddCommand(cronCmd)
}

// openJobStore loads the config and opens the durable job store the daemon
// also uses. The CLI mutates the store directly; the running scheduler picks
// the change up from disk on its next start.
func openJobStore() (*cron.Store, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := cron.NewStore(cfg.Cron.StorePath)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runCronAdd(cmd *cobra.Command, args []string) error {
	trigger, err := triggerFromFlags()
	if err != nil {
		return err
	}

	store, cfg, err := openJobStore()
	if err != nil {
		return err
	}

	delivery := cron.Delivery{Channel: cfg.DefaultChannel, To: cfg.DefaultRecipient}
	if cronChannel != "" {
		delivery.Channel = cronChannel
	}
	if cronTo != "" {
		delivery.To = cronTo
		// A session key addresses channel and recipient in one flag; an
		// explicit --channel keeps --to opaque.
		if cronChannel == "" {
			if channel, to, err := channels.ParseSessionKey(cronTo); err == nil {
				delivery.Channel = channel
				delivery.To = to
			}
		}
	}

	job, err := store.Add(cron.AddParams{
		Name:     cronName,
		Message:  cronMessage,
		Trigger:  trigger,
		Delivery: delivery,
	}, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created job %s (%s), next run %s\n",
		job.ID, job.Name, time.UnixMilli(job.NextRunAt).UTC().Format(time.RFC3339))
	return nil
}

func runCronList(cmd *cobra.Command, args []string) error {
	store, _, err := openJobStore()
	if err != nil {
		return err
	}

	jobs := store.List()
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no scheduled jobs")
		return nil
	}

	for _, job := range jobs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-6s next %s  -> %s:%s  %q\n",
			job.ID,
			job.Name,
			job.Trigger.Kind,
			time.UnixMilli(job.NextRunAt).UTC().Format(time.RFC3339),
			job.Delivery.Channel,
			job.Delivery.To,
			job.Message)
	}
	return nil
}

func runCronRemove(cmd *cobra.Command, args []string) error {
	store, _, err := openJobStore()
	if err != nil {
		return err
	}

	if err := store.Remove(args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed job %s\n", args[0])
	return nil
}

func triggerFromFlags() (cron.Trigger, error) {
	set := 0
	if cronAt != "" {
		set++
	}
	if cronExpr != "" {
		set++
	}
	if cronEvery != 0 {
		set++
	}
	if set != 1 {
		return cron.Trigger{}, fmt.Errorf("exactly one of --at, --cron, or --every is required")
	}

	switch {
	case cronAt != "":
		return cron.Trigger{Kind: cron.TriggerAt, At: cronAt}, nil
	case cronExpr != "":
		return cron.Trigger{Kind: cron.TriggerCron, Expr: cronExpr}, nil
	default:
		return cron.Trigger{Kind: cron.TriggerEvery, EverySeconds: cronEvery}, nil
	}
}
