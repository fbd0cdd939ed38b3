//go:build test

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/smartgadget/inspector"
	"github.com/srg/smartgadget/internal/device"
	goble "github.com/srg/smartgadget/internal/device/go-ble"
	"github.com/srg/smartgadget/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test gadget addresses
const (
	TestGadgetAddress1 = "AA:BB:CC:DD:EE:FF"
	TestGadgetAddress2 = "11:22:33:44:55:66"
	TestMissingAddress = "DE:AD:00:00:00:00"
)

// fastConfig keeps downloads short in tests.
const fastConfig = `
adapter:
  connect_timeout: 2s
  request_timeout: 1s
download:
  timeout: 5s
  poll_interval: 20ms
`

// CommandTestSuite stubs the BLE stack for command tests. Every connect
// returns a fresh simulated gadget that streams its history on request;
// addresses in Unreachable fail with device.ErrTimeout.
type CommandTestSuite struct {
	suite.Suite

	Unreachable map[string]bool
	// Configure adjusts each simulated gadget before it is returned.
	Configure func(g *testutils.Humigadget)
	Scan      *testutils.ScanDevice

	mu      sync.Mutex
	gadgets []*testutils.Humigadget

	originalConnect func(context.Context, device.ConnectOptions, *logrus.Logger) (device.Peripheral, error)
	originalFactory func() (blelib.Device, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.originalConnect = inspector.Connect
	s.originalFactory = goble.DeviceFactory

	s.Unreachable = map[string]bool{}
	s.Configure = func(g *testutils.Humigadget) {
		g.OnDownload(func(g *testutils.Humigadget) { g.StreamHistory(5, nil) })
	}
	s.gadgets = nil
	s.Scan = &testutils.ScanDevice{}

	inspector.Connect = func(_ context.Context, opts device.ConnectOptions, _ *logrus.Logger) (device.Peripheral, error) {
		if s.Unreachable[opts.Address] {
			return nil, device.ErrTimeout
		}
		cfg := testutils.DefaultHumigadgetConfig()
		cfg.Address = opts.Address
		g := testutils.NewHumigadget(cfg)
		s.Configure(g)

		s.mu.Lock()
		s.gadgets = append(s.gadgets, g)
		s.mu.Unlock()
		return g, nil
	}
	goble.DeviceFactory = func() (blelib.Device, error) {
		return s.Scan, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	inspector.Connect = s.originalConnect
	goble.DeviceFactory = s.originalFactory
}

// Gadgets returns every simulated gadget handed out so far.
func (s *CommandTestSuite) Gadgets() []*testutils.Humigadget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*testutils.Humigadget(nil), s.gadgets...)
}

// ConfigFile writes a config file and returns its path.
func (s *CommandTestSuite) ConfigFile(content string) string {
	path := filepath.Join(s.T().TempDir(), "smartgadget.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "config file MUST be written")
	return path
}

// ExecuteCommand runs the root command with args and returns stdout and
// stderr separately.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

// ExecuteCommandContext is ExecuteCommand with a cancellable context.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (string, string, error) {
	resetFlags(rootCmd)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	// cobra only hands the root context to a subcommand that has none yet
	for _, c := range rootCmd.Commands() {
		c.SetContext(ctx)
	}

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default,
// since flag values live in package variables between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
