package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/smartgadget/internal/groutine"
	"github.com/srg/smartgadget/internal/metrics"
	"github.com/srg/smartgadget/internal/poller"
	"github.com/srg/smartgadget/internal/sink"
	"github.com/srg/smartgadget/pkg/config"
	"github.com/srg/smartgadget/scanner"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll gadgets and publish their readings",
	Long: `Periodically connects to every configured gadget, reads its live values,
downloads its logged history and publishes the result.

Readings are exported as Prometheus metrics on /metrics and, when
timescale.conn_string is configured, written to TimescaleDB. Without
poll.devices every round starts with a scan for Smart Humigadgets.

Examples:
  # Poll with a config file
  smartgadget run --config smartgadget.yaml

  # Poll two gadgets once and print the records as JSON lines
  smartgadget run --devices C4:7C:8D:6A:3E:21,C4:7C:8D:6A:3E:22 --once --jsonl`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runDevices     []string
	runInterval    time.Duration
	runMetricsAddr string
	runOnce        bool
	runJSONLines   bool
)

const shutdownTimeout = 5 * time.Second

func init() {
	runCmd.Flags().StringSliceVar(&runDevices, "devices", nil, "Gadget addresses to poll (overrides poll.devices)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "Poll interval (overrides poll.interval)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Metrics listen address (overrides metrics.addr)")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Poll once and exit without serving metrics")
	runCmd.Flags().BoolVar(&runJSONLines, "jsonl", false, "Also print every record as a JSON line")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLogger()
	if logLevelFlagged(cmd, "verbose") {
		if logger, err = configureLogger(cmd, "verbose"); err != nil {
			return err
		}
	}
	logger.SetOutput(cmd.ErrOrStderr())

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	publishers := sink.Multi{collector}
	if cfg.Timescale.ConnString != "" {
		ts, err := sink.OpenTimescale(cfg.Timescale.ConnString, cfg.Timescale.Table, cfg.Timescale.BatchSize, logger)
		if err != nil {
			return err
		}
		defer ts.Close()
		if err := ts.Ping(ctx); err != nil {
			return fmt.Errorf("connect to timescaledb: %w", err)
		}
		publishers = append(publishers, ts)
	}
	if runJSONLines {
		publishers = append(publishers, sink.NewJSONSink(cmd.OutOrStdout()))
	}

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return err
	}

	p := poller.New(poller.Options{
		Devices:         cfg.Poll.Devices,
		Interval:        cfg.Poll.Interval,
		ScanDuration:    cfg.Poll.ScanDuration,
		DownloadTimeout: cfg.Download.Timeout,
		Inspect:         *inspectOptions(cfg, 0),
	}, publishers, logger, poller.WithScanner(s), poller.WithObserver(collector))

	if runOnce {
		outcome, err := p.RunOnce(ctx)
		if err != nil {
			return err
		}
		return reportRound(cmd, outcome)
	}

	return serve(ctx, cfg, registry, p, logger)
}

func applyRunOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("devices") {
		cfg.Poll.Devices = runDevices
	}
	if cmd.Flags().Changed("interval") {
		cfg.Poll.Interval = runInterval
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Metrics.Addr = runMetricsAddr
	}
}

// serve runs the poller next to the metrics endpoint until ctx is done.
func serve(ctx context.Context, cfg *config.Config, registry *prometheus.Registry, p *poller.Poller, logger *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Metrics.Addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	group := groutine.NewGroup(func(name string, err error) {
		logger.WithField("goroutine", name).WithError(err).Error("Goroutine panicked")
	})

	serveErr := make(chan error, 1)
	group.Go(ctx, "metrics-server", func(context.Context) {
		logger.WithField("addr", ln.Addr().String()).Info("Serving metrics")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	pollErr := make(chan error, 1)
	group.Go(pollCtx, "poller", func(ctx context.Context) {
		pollErr <- p.Run(ctx)
	})

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		runErr = fmt.Errorf("metrics server: %w", runErr)
	case runErr = <-pollErr:
	}

	stopPolling()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Metrics server shutdown failed")
	}
	group.Wait()

	return runErr
}

// reportRound prints one line per gadget and fails when every gadget failed.
func reportRound(cmd *cobra.Command, outcome map[string]error) error {
	addresses := make([]string, 0, len(outcome))
	for addr := range outcome {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	failed := 0
	for _, addr := range addresses {
		if err := outcome[addr]; err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", addr, FormatUserError(err))
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: ok\n", addr)
	}

	if len(addresses) > 0 && failed == len(addresses) {
		return fmt.Errorf("all %d gadgets failed", failed)
	}
	return nil
}
