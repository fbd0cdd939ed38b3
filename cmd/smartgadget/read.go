package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/smartgadget/inspector"
	"github.com/srg/smartgadget/internal/gadget"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> [temperature|humidity|battery|all]",
	Short: "Read live sensor values",
	Long: fmt.Sprintf(`Connects to a Smart Humigadget and reads its current values.

Examples:
  # Read every channel
  smartgadget read %s

  # Read only the temperature
  smartgadget read %s temperature

  # Read several channels
  smartgadget read %s humidity,battery

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.RangeArgs(1, 2),
	RunE: runRead,
}

var readTimeout time.Duration

func init() {
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 0, "Connection timeout (defaults to adapter.connect_timeout)")
}

type reading struct {
	kind  gadget.ChannelKind
	value float64
}

func runRead(cmd *cobra.Command, args []string) error {
	address := args[0]

	var names []string
	if len(args) == 2 {
		names = splitCSV(args[1])
	}
	kinds, err := parseChannels(names)
	if err != nil {
		return err
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

	progress := NewProgressPrinter(fmt.Sprintf("Reading from %s", address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	readings, err := inspector.InspectDevice(ctx, address, inspectOptions(cfg, readTimeout), logger, progress.Callback(),
		func(g *gadget.Device) ([]reading, error) {
			out := make([]reading, 0, len(kinds))
			for _, kind := range kinds {
				v, err := g.Read(ctx, kind)
				if err != nil {
					return nil, fmt.Errorf("read %s: %w", kind, err)
				}
				out = append(out, reading{kind: kind, value: v.Float64()})
			}
			return out, nil
		})
	progress.Stop()
	if err != nil {
		return err
	}

	for _, r := range readings {
		fmt.Fprintln(cmd.OutOrStdout(), formatReading(r.kind, r.value))
	}
	return nil
}
