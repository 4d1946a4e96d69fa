package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/lease"
	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/metrics"
	"github.com/cuemby/aof/pkg/murmur"
	"github.com/cuemby/aof/pkg/sla"
	"github.com/cuemby/aof/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aof",
	Short: "AOF - Deterministic orchestration engine for agent workflows",
	Long: `AOF owns a durable queue of tasks, assigns them to agents subject to
routing and concurrency policies, tracks in-flight work through leases,
moves tasks through configurable multi-stage gates, and recovers
automatically from spawn failures and stale sessions.

All state lives in a single data directory selected by AOF_ROOT or --root.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"AOF version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("root", "", "Data directory (defaults to $AOF_ROOT, then the working directory)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(configCmd)
}

// dataRoot resolves the data directory: --root flag, then AOF_ROOT, then
// the working directory.
func dataRoot(cmd *cobra.Command) string {
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		return root
	}
	return config.Root()
}

// engine bundles everything a command needs against one data directory.
type engine struct {
	root    string
	project *config.Project
	events  *events.Logger
	store   *store.Store
	leases  *lease.Manager
	checker *sla.Checker
	murmur  *murmur.Manager
}

// openEngine loads the project config and wires the core components. Every
// command goes through here so metrics and logging are set up uniformly.
func openEngine(cmd *cobra.Command) (*engine, error) {
	root := dataRoot(cmd)
	level, _ := cmd.Flags().GetString("log-level")
	log.Init(log.Config{
		Level:    log.Level(level),
		FilePath: filepath.Join(root, ".aof", "logs", "aof.log"),
	})
	project, err := config.LoadProject(root)
	if err != nil {
		return nil, err
	}

	logger := events.NewLogger(root)
	logger.AddNotifier(metrics.Notifier())
	logger.AddNotifier(events.ConsoleNotifier{})
	st := store.New(root, logger)

	return &engine{
		root:    root,
		project: project,
		events:  logger,
		store:   st,
		leases:  lease.NewManager(st, logger),
		checker: sla.New(project, logger),
		murmur:  murmur.New(st, project.Org, logger),
	}, nil
}

// checkProject validates a --project flag against the loaded manifest. An
// empty flag always matches.
func (e *engine) checkProject(id string) error {
	if id == "" || e.project.Manifest == nil || e.project.Manifest.ID == id {
		return nil
	}
	return fmt.Errorf("project %q not found in %s (manifest is %q)", id, e.root, e.project.Manifest.ID)
}
