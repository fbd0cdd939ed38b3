package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/smartgadget/inspector"
	"github.com/srg/smartgadget/internal/gadget"
	"github.com/srg/smartgadget/internal/sink"
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <device-address>",
	Short: "Download the logged history",
	Long: fmt.Sprintf(`Downloads the temperature and humidity history stored in a Smart Humigadget.

The download stops once every logged sample has arrived, when the gadget goes
quiet for too long, or after --timeout. Samples received before a failure are
still printed and the command exits with an error.

Examples:
  # Print the history as a table
  smartgadget download %s

  # Export CSV for a spreadsheet
  smartgadget download %s --format csv > history.csv

  # JSON lines, one record per sample
  smartgadget download %s --format json --timeout 30s

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var (
	downloadTimeout        time.Duration
	downloadConnectTimeout time.Duration
	downloadFormat         string
)

var downloadFormats = []string{"table", "json", "csv"}

func init() {
	downloadCmd.Flags().DurationVarP(&downloadTimeout, "timeout", "t", 0, "Overall download limit (defaults to download.timeout)")
	downloadCmd.Flags().DurationVar(&downloadConnectTimeout, "connect-timeout", 0, "Connection timeout (defaults to adapter.connect_timeout)")
	downloadCmd.Flags().StringVarP(&downloadFormat, "format", "f", "table", "Output format: table, json or csv")
}

func runDownload(cmd *cobra.Command, args []string) error {
	address := args[0]

	if !contains(downloadFormats, downloadFormat) {
		return fmt.Errorf("invalid format '%s': must be one of %v", downloadFormat, downloadFormats)
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

	timeout := downloadTimeout
	if timeout <= 0 {
		timeout = cfg.Download.Timeout
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(fmt.Sprintf("Downloading history from %s", address), "Connecting", "Failed")
	progress.Start()
	defer progress.Stop()

	res, err := inspector.InspectDevice(ctx, address, inspectOptions(cfg, downloadConnectTimeout), logger, progress.Callback(),
		func(g *gadget.Device) (*gadget.Result, error) {
			progress.Callback()("Downloading")
			return g.DownloadLog(ctx, timeout, progress.Percent())
		})
	progress.Stop()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	summaryOut := cmd.ErrOrStderr()
	switch downloadFormat {
	case "json":
		err = sink.NewJSONSink(out).Publish(ctx, sink.Batch{Address: address, At: res.StartedAt, Result: res})
	case "csv":
		err = writeHistoryCSV(out, address, res)
	default:
		err = writeHistoryTable(out, res)
		summaryOut = out
	}
	if err != nil {
		return err
	}

	printDownloadSummary(summaryOut, res)

	if !res.Complete() {
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrIncompleteDownload, res.Err)
		}
		return ErrIncompleteDownload
	}
	return nil
}

// writeHistoryTable prints one row per sample id with a column per channel.
func writeHistoryTable(out io.Writer, res *gadget.Result) error {
	kinds := res.Kinds()
	rows := make(map[uint32]map[gadget.ChannelKind]float64)
	for _, kind := range kinds {
		for _, s := range res.Channels[kind].Samples {
			if rows[s.Seq] == nil {
				rows[s.Seq] = make(map[gadget.ChannelKind]float64, len(kinds))
			}
			rows[s.Seq][kind] = s.Value
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No samples downloaded")
		return nil
	}

	seqs := make([]uint32, 0, len(rows))
	for seq := range rows {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"SEQ", "TIME"}
	for _, kind := range kinds {
		label := strings.ToUpper(kind.String())
		if unit := res.Channels[kind].Unit; unit != "" {
			label += " (" + unit + ")"
		}
		header = append(header, label)
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, seq := range seqs {
		cols := []string{
			strconv.FormatUint(uint64(seq), 10),
			time.UnixMilli(res.Plan.Timestamp(seq)).UTC().Format(time.RFC3339),
		}
		for _, kind := range kinds {
			if v, ok := rows[seq][kind]; ok {
				cols = append(cols, strconv.FormatFloat(v, 'f', 2, 64))
			} else {
				cols = append(cols, "-")
			}
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	return w.Flush()
}

func writeHistoryCSV(out io.Writer, address string, res *gadget.Result) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"address", "channel", "seq", "timestamp", "value"}); err != nil {
		return err
	}
	for _, r := range (sink.Batch{Address: address, Result: res}).Records() {
		if err := w.Write([]string{
			r.Address,
			r.Channel,
			strconv.FormatUint(uint64(r.Seq), 10),
			r.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// printDownloadSummary reports per-channel counts; the status line is green
// for a complete download, yellow when ids were missed and red on failure.
func printDownloadSummary(out io.Writer, res *gadget.Result) {
	missed := 0
	for _, kind := range res.Kinds() {
		ch := res.Channels[kind]
		missed += ch.MissedCount()
		fmt.Fprintf(out, "%s: %d/%d samples, %d missed, %d duplicates\n",
			kind, len(ch.Samples), res.Plan.ExpectedSamples, ch.MissedCount(), ch.Duplicates)
	}

	status := color.New(color.FgGreen)
	verdict := "complete"
	switch {
	case !res.Complete():
		status = color.New(color.FgRed)
		verdict = res.Status.String()
	case missed > 0:
		status = color.New(color.FgYellow)
		verdict = fmt.Sprintf("finished with %d missed samples", missed)
	}
	status.Fprintf(out, "Download %s: %d samples in %s\n", verdict, res.TotalSamples(), res.Duration.Truncate(time.Millisecond))
}
