package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/warden/pkg/agent"
	"mercator-hq/warden/pkg/cli"
	"mercator-hq/warden/pkg/config"
	"mercator-hq/warden/pkg/plugins/flowcontrol"
	"mercator-hq/warden/pkg/plugins/tag"
	"mercator-hq/warden/pkg/telemetry/logging"
)

// shutdownTimeout bounds the flush of events and spans on exit.
const shutdownTimeout = 10 * time.Second

var runFlags struct {
	logLevel string
	traffic  time.Duration
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent with the bundled inventory service",
	Long: `Run the agent with the configured plugins around an in-process inventory
service. The telemetry server exposes metrics, health and version endpoints,
and rules are reloaded as the configured source changes.

Examples:
  # Run with default config
  warden run

  # Generate a call every 200ms to watch the plugins at work
  warden run --traffic 200ms

  # Validate config without starting the agent
  warden run --dry-run`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&runFlags.traffic, "traffic", 0, "interval between generated inventory calls (0 disables)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the agent")
}

func runAgent(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	cfg := config.GetConfig()

	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	} else if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger)

	p := cli.NewPrinter(cmd.OutOrStdout())
	if runFlags.dryRun {
		p.Success("Configuration valid")
		return nil
	}

	p.Title("Warden v%s", Version)
	p.Info("config: %s", cfgFile)

	a, err := agent.New(cfg, agent.WithLogger(logger), agent.WithVersion(versionInfo()))
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	svc, err := newInventory(a, defaultStock(), defaultFleet())
	if err != nil {
		_ = a.Close(context.Background())
		return cli.NewCommandError("run", err)
	}

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Close(context.Background())
		return cli.NewCommandError("run", err)
	}

	p.Success("Agent started (%d plugins, rules %s)", len(cfg.EnabledPlugins()), a.Rules().Snapshot().Version)
	if addr := a.Addr(); addr != "" {
		p.Success("Metrics endpoint: http://%s%s", addr, cfg.Telemetry.Metrics.Path)
		p.Success("Health endpoint: http://%s/healthz", addr)
	}
	if runFlags.traffic > 0 {
		go driveTraffic(ctx, svc, runFlags.traffic, logger)
		p.Info("generating a call every %s", runFlags.traffic)
	}
	p.Info("Press Ctrl+C to stop")

	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout())
	p.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	p.Success("Agent stopped")
	return nil
}

// driveTraffic calls the inventory service every interval until ctx is done.
// Zones alternate so route rules keyed on the zone tag take effect.
func driveTraffic(ctx context.Context, svc *inventory, interval time.Duration, logger *slog.Logger) {
	zones := []string{"eu-west-1", "us-east-1"}
	skus := svc.SKUs()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		headers := map[string]string{tag.DefaultPrefix + "zone": zones[i%len(zones)]}
		sku := skus[i%len(skus)]

		if i%3 == 0 {
			id, err := svc.Reserve(ctx, headers, sku, 1)
			logCall(logger, "reserve", sku, id, err)
			continue
		}
		n, err := svc.Lookup(ctx, headers, sku)
		logCall(logger, "lookup", sku, n, err)
	}
}

func logCall(logger *slog.Logger, op, sku string, result any, err error) {
	switch {
	case err == nil:
		logger.Debug("inventory call", "op", op, "sku", sku, "result", result)
	case errors.Is(err, flowcontrol.ErrBlocked):
		logger.Info("inventory call blocked", "op", op, "sku", sku, "error", err)
	default:
		logger.Warn("inventory call failed", "op", op, "sku", sku, "error", err)
	}
}
