package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/smartgadget/inspector"
	"github.com/srg/smartgadget/internal/gadget"
	"github.com/srg/smartgadget/internal/gatt"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address>",
	Short: "Stream live sensor values",
	Long: fmt.Sprintf(`Subscribes to Smart Humigadget notifications and prints every value received.

Examples:
  # Stream every channel until Ctrl+C
  smartgadget subscribe %s

  # Stream temperature and humidity for one minute
  smartgadget subscribe %s --channels temperature,humidity --duration 1m

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runSubscribe,
}

var (
	subscribeChannels []string
	subscribeDuration time.Duration
	subscribeTimeout  time.Duration
)

const unsubscribeTimeout = 2 * time.Second

func init() {
	subscribeCmd.Flags().StringSliceVarP(&subscribeChannels, "channels", "c", nil, "Channels to stream: temperature, humidity, battery or all")
	subscribeCmd.Flags().DurationVarP(&subscribeDuration, "duration", "d", 0, "Stop after this long; 0 streams until Ctrl+C")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 0, "Connection timeout (defaults to adapter.connect_timeout)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address := args[0]

	kinds, err := parseChannels(subscribeChannels)
	if err != nil {
		return err
	}
	if subscribeDuration < 0 {
		return fmt.Errorf("invalid duration %s: must not be negative", subscribeDuration)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(fmt.Sprintf("Subscribing to %s", address), "Connecting", "Subscribed", "Failed")
	progress.Start()
	defer progress.Stop()

	out := cmd.OutOrStdout()

	_, err = inspector.InspectDevice(ctx, address, inspectOptions(cfg, subscribeTimeout), logger, progress.Callback(),
		func(g *gadget.Device) (struct{}, error) {
			names := make([]string, 0, len(kinds))
			for _, kind := range kinds {
				if _, err := g.AddListener(kind, func(v gatt.Value, _ *gatt.Subscribable) error {
					_, err := fmt.Fprintln(out, formatReading(kind, v.Float64()))
					return err
				}); err != nil {
					return struct{}{}, err
				}
				if err := g.Subscribe(ctx, kind); err != nil {
					return struct{}{}, fmt.Errorf("subscribe %s: %w", kind, err)
				}
				names = append(names, kind.String())
			}

			progress.Callback()("Subscribed")
			if subscribeDuration > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Subscribed to %s for %s...\n", strings.Join(names, ", "), subscribeDuration)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Subscribed to %s. Press Ctrl+C to stop...\n", strings.Join(names, ", "))
			}

			listenErr := g.Listen(ctx, subscribeDuration)

			// The link may outlive ctx; leave the gadget unsubscribed.
			uctx, ucancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
			defer ucancel()
			for _, kind := range kinds {
				if err := g.Unsubscribe(uctx, kind); err != nil {
					logger.WithError(err).WithField("channel", kind.String()).Warn("Failed to unsubscribe")
				}
			}

			if errors.Is(listenErr, context.Canceled) {
				return struct{}{}, nil
			}
			return struct{}{}, listenErr
		})
	return err
}
