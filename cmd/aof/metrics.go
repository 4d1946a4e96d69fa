package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/aof/pkg/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Metrics and health endpoints",
}

var metricsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Prometheus metrics and health checks",
	Long: `Expose /metrics (Prometheus text exposition), /health, /ready, and
/live over HTTP. A background collector samples the task store so the
gauges stay current. Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd)
		if err != nil {
			return err
		}

		port, _ := cmd.Flags().GetInt("port")
		addr := metrics.DefaultAddr
		if port != 0 {
			addr = fmt.Sprintf(":%d", port)
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "")
		metrics.RegisterComponent("events", true, "")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := metrics.NewServer(addr, metrics.NewCollector(eng.store))
		return srv.Start(ctx)
	},
}

func init() {
	metricsCmd.AddCommand(metricsServeCmd)
	metricsServeCmd.Flags().Int("port", 0, "Port to bind (default 9464)")
}
