//go:build test

package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/smartgadget/internal/gadget"
	"github.com/stretchr/testify/suite"
)

// GadgetSuite gives every test a fresh simulated gadget and a bound Device
// driven by a manual clock.
type GadgetSuite struct {
	suite.Suite

	Logger *logrus.Logger
	Logs   *LogBuffer
	Clock  *ManualClock

	Config  HumigadgetConfig
	Gadget  *Humigadget
	Device  *gadget.Device
	Options []gadget.Option
}

// SetupTest builds the simulator from Config (defaults when zero) and binds
// a Device to it. Embedding suites may set Config or Options before calling
// it.
func (s *GadgetSuite) SetupTest() {
	s.Logs = &LogBuffer{}
	s.Logger = NewBufferedLogger(s.Logs)
	s.Clock = NewManualClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	if s.Config == (HumigadgetConfig{}) {
		s.Config = DefaultHumigadgetConfig()
	}
	s.Gadget = NewHumigadget(s.Config)

	opts := []gadget.Option{
		gadget.WithLogger(s.Logger),
		gadget.WithPollInterval(5 * time.Millisecond),
		gadget.WithSessionOptions(
			gadget.WithClock(s.Clock.Now),
			gadget.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		),
	}
	s.Device = gadget.New(s.Gadget, append(opts, s.Options...)...)
	s.Require().NoError(s.Device.Bind(context.Background(), s.Gadget), "simulated gadget MUST bind")
}

func (s *GadgetSuite) TearDownTest() {
	if s.Device != nil {
		s.Device.Close()
	}
	s.Config = HumigadgetConfig{}
}

// Ctx returns a context bounded so a stuck test fails instead of hanging.
func (s *GadgetSuite) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.T().Cleanup(cancel)
	return ctx
}

// SubscribeLogChannels enables notifications on temperature and humidity.
func (s *GadgetSuite) SubscribeLogChannels() {
	s.Require().NoError(s.Device.Subscribe(s.Ctx(), gadget.Temperature))
	s.Require().NoError(s.Device.Subscribe(s.Ctx(), gadget.Humidity))
}
