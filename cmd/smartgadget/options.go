package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/smartgadget/inspector"
	"github.com/srg/smartgadget/internal/gadget"
	"github.com/srg/smartgadget/pkg/config"
)

// loadConfig reads --config when given and falls back to defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// inspectOptions derives the connection settings from cfg; a positive
// connectTimeout overrides the configured one.
func inspectOptions(cfg *config.Config, connectTimeout time.Duration) *inspector.InspectOptions {
	if connectTimeout <= 0 {
		connectTimeout = cfg.Adapter.ConnectTimeout
	}
	return &inspector.InspectOptions{
		ConnectTimeout: connectTimeout,
		RequestTimeout: cfg.Adapter.RequestTimeout,
		GadgetOptions:  []gadget.Option{gadget.WithPollInterval(cfg.Download.PollInterval)},
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// formatReading renders a value the way the gadget's own app labels it.
func formatReading(kind gadget.ChannelKind, v float64) string {
	switch kind {
	case gadget.Temperature:
		return fmt.Sprintf("Temperature: %.2f°C", v)
	case gadget.Humidity:
		return fmt.Sprintf("Humidity: %.2f%%", v)
	case gadget.Battery:
		return fmt.Sprintf("Battery: %.0f%%", v)
	default:
		return fmt.Sprintf("%s: %g", kind, v)
	}
}

// parseChannels accepts channel names; "all" or nothing selects every channel.
func parseChannels(names []string) ([]gadget.ChannelKind, error) {
	if len(names) == 0 {
		return gadget.ChannelKinds, nil
	}
	seen := make(map[gadget.ChannelKind]bool, len(names))
	var kinds []gadget.ChannelKind
	for _, n := range names {
		if n == "all" {
			return gadget.ChannelKinds, nil
		}
		k, err := gadget.ParseChannelKind(n)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
