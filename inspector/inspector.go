package inspector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/smartgadget/internal/device"
	goble "github.com/srg/smartgadget/internal/device/go-ble"
	"github.com/srg/smartgadget/internal/gadget"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectOptions defines how a gadget is reached and bound.
type InspectOptions struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	GadgetOptions  []gadget.Option
}

// InspectCallback works with a bound gadget and produces output of type R.
type InspectCallback[R any] func(*gadget.Device) (R, error)

// Connect opens a peripheral (overridden in tests).
//
//nolint:revive // Connect name is intentional for test mocking
var Connect = func(ctx context.Context, opts device.ConnectOptions, logger *logrus.Logger) (device.Peripheral, error) {
	return goble.Connect(ctx, opts, logger)
}

// InspectDevice connects to the gadget at address, binds it and hands it to
// callback. The connection is closed once callback returns.
func InspectDevice[R any](ctx context.Context, address string, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &InspectOptions{ConnectTimeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	progressCallback("Connecting")

	p, err := Connect(ctx, device.ConnectOptions{
		Address:        address,
		ConnectTimeout: opts.ConnectTimeout,
		RequestTimeout: opts.RequestTimeout,
	}, logger)
	if err != nil {
		progressCallback("Failed")
		return zero, err
	}

	defer func() {
		if err := p.Disconnect(); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	progressCallback("Connected")

	gopts := append([]gadget.Option{gadget.WithLogger(logger)}, opts.GadgetOptions...)
	g := gadget.New(p, gopts...)
	defer g.Close()

	if err := g.Bind(ctx, p); err != nil {
		progressCallback("Failed")
		return zero, err
	}

	progressCallback("Processing results")

	return callback(g)
}
