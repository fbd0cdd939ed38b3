package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/smartgadget/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Smart Humigadgets",
	Long: `Scans for Bluetooth Low Energy advertisements and lists the Smart Humigadgets found.

A device is listed when it advertises the "Smart Humigadget" name or one of the
gadget's sensor services. Use --all to list every advertiser.

Examples:
  # Scan for 10 seconds
  smartgadget scan

  # Scan longer and print JSON
  smartgadget scan --duration 30s --format json

  # Only report specific addresses
  smartgadget scan --allow C4:7C:8D:6A:3E:21,C4:7C:8D:6A:3E:22`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanAll      bool
	scanAllow    []string
	scanBlock    []string
	scanDups     bool
)

var scanFormats = []string{"table", "json"}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format: table or json")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every advertiser, not only Smart Humigadgets")
	scanCmd.Flags().StringSliceVar(&scanAllow, "allow", nil, "Only report these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlock, "block", nil, "Never report these addresses")
	scanCmd.Flags().BoolVar(&scanDups, "duplicates", false, "Report every advertisement instead of filtering duplicates")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if !contains(scanFormats, scanFormat) {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, scanFormats)
	}
	if scanDuration <= 0 {
		return fmt.Errorf("invalid duration %s: must be positive", scanDuration)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// Arguments are valid; runtime errors should not print usage
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return err
	}

	opts := &scanner.ScanOptions{
		Duration:        scanDuration,
		DuplicateFilter: !scanDups,
		AllowList:       scanAllow,
		BlockList:       scanBlock,
		AllDevices:      scanAll,
	}

	progress := NewCountdownProgressPrinter("Scanning for Smart Humigadgets", "Scanning", scanDuration, "Processing results")
	progress.Start()
	sightings, err := s.Scan(ctx, opts, progress.Callback())
	progress.Stop()
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return writeSightingsJSON(cmd.OutOrStdout(), sightings)
	}
	return writeSightingsTable(cmd.OutOrStdout(), sightings)
}

func writeSightingsTable(out io.Writer, sightings []scanner.Sighting) error {
	if len(sightings) == 0 {
		fmt.Fprintln(out, "No gadgets found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tSEEN")

	for _, s := range sightings {
		name := s.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(s.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%d\n", name, s.Address, s.RSSI, services, s.Seen)
	}

	return w.Flush()
}

func writeSightingsJSON(out io.Writer, sightings []scanner.Sighting) error {
	if sightings == nil {
		sightings = []scanner.Sighting{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sightings)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
