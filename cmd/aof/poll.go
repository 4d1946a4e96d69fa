package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/executor"
	"github.com/cuemby/aof/pkg/metrics"
	"github.com/cuemby/aof/pkg/scheduler"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one scheduler cycle",
	Long: `Run a single poll cycle: reclaim expired leases, recover stale
sessions, promote tasks whose dependencies completed, retry or deadletter
spawn-failed tasks, dispatch ready work, and evaluate SLA and murmur
triggers. With --dry-run the planned actions are printed without mutating
any state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}
		projectID, _ := cmd.Flags().GetString("project")
		if err := eng.checkProject(projectID); err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		maxDispatches, _ := cmd.Flags().GetInt("max-dispatches")
		verbose, _ := cmd.Flags().GetBool("verbose")

		// With --verbose every event emitted during the cycle is streamed
		// to stdout through the broker as it happens.
		var broker *events.Broker
		var sub events.Subscriber
		var drained chan struct{}
		if verbose {
			broker = events.NewBroker()
			eng.events.AddNotifier(broker)
			sub = broker.Subscribe()
			drained = make(chan struct{})
			go func() {
				defer close(drained)
				for ev := range sub {
					fmt.Printf("  event %-28s %s\n", ev.Type, ev.TaskID)
				}
			}()
		}

		sched := scheduler.New(eng.project, eng.store, eng.leases, eng.events,
			eng.checker, eng.murmur, executor.NewSpool(eng.root), scheduler.Config{
				MaxConcurrentDispatches: maxDispatches,
				DryRun:                  dryRun,
			})

		timer := metrics.NewTimer()
		res, err := sched.Poll(cmd.Context())
		if broker != nil {
			broker.Unsubscribe(sub)
			<-drained
		}
		if err != nil {
			return err
		}
		timer.ObserveDuration(metrics.PollDuration)

		if res.DryRun {
			fmt.Printf("Dry run: %d actions planned\n", res.Stats.ActionsPlanned)
			for _, a := range res.Actions {
				line := fmt.Sprintf("  %-16s %s", a.Type, a.TaskID)
				if a.Agent != "" {
					line += "  @" + a.Agent
				}
				if a.Reason != "" {
					line += "  (" + a.Reason + ")"
				}
				fmt.Println(line)
			}
			return nil
		}

		fmt.Printf("Poll complete: %d planned, %d executed, %d failed\n",
			res.Stats.ActionsPlanned, res.Stats.ActionsExecuted, res.Stats.ActionsFailed)
		if res.Stats.LeasesExpired > 0 {
			fmt.Printf("  leases expired: %d\n", res.Stats.LeasesExpired)
		}
		if res.Stats.TasksRequeued > 0 {
			fmt.Printf("  tasks requeued: %d\n", res.Stats.TasksRequeued)
		}
		if res.Stats.TasksPromoted > 0 {
			fmt.Printf("  tasks promoted: %d\n", res.Stats.TasksPromoted)
		}
		if res.Stats.ReviewsSkipped > 0 {
			fmt.Printf("  reviews skipped: %d\n", res.Stats.ReviewsSkipped)
		}
		return nil
	},
}

func init() {
	pollCmd.Flags().Bool("active", false, "Execute planned actions (default)")
	pollCmd.Flags().Bool("dry-run", false, "Plan actions without mutating state")
	pollCmd.Flags().String("project", "", "Project id to poll")
	pollCmd.Flags().Int("max-dispatches", 0, "Override the concurrent dispatch cap")
	pollCmd.Flags().BoolP("verbose", "v", false, "Stream events emitted during the cycle")
	pollCmd.MarkFlagsMutuallyExclusive("active", "dry-run")
}
