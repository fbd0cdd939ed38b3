package gadget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/gatt"
)

const (
	// DefaultQueueCapacity bounds the per-device notification backlog.
	DefaultQueueCapacity = 1024

	// DefaultPollInterval is how often a waiting consumer wakes to check
	// timeouts and report progress.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultOverallTimeout caps a whole DownloadLog call.
	DefaultOverallTimeout = 15 * time.Second
)

// Routing selects the consumer of notification frames.
type Routing int32

const (
	LiveRouting Routing = iota
	LoggingRouting
)

func (r Routing) String() string {
	if r == LoggingRouting {
		return "logging"
	}
	return "live"
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(d *Device) { d.logger = logger }
}

// WithQueueCapacity overrides DefaultQueueCapacity.
func WithQueueCapacity(n int) Option {
	return func(d *Device) { d.queueCapacity = n }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) { d.pollInterval = interval }
}

// WithSessionOptions passes options through to the LoggingSession.
func WithSessionOptions(opts ...SessionOption) Option {
	return func(d *Device) { d.sessionOpts = append(d.sessionOpts, opts...) }
}

// ProgressFunc is told the download progress on every poll.
type ProgressFunc func(percent float64)

// Device is one Smart Humigadget reached through a transport.
type Device struct {
	transport device.Transport
	logger    *logrus.Logger

	queueCapacity int
	pollInterval  time.Duration
	sessionOpts   []SessionOption

	queue    *device.NotificationQueue
	specs    []*Channel
	channels *ChannelSet
	logging  *LoggingService
	session  *LoggingSession
	routing  atomic.Int32
	bound    atomic.Bool

	// consumerMu admits a single notification consumer at a time.
	consumerMu sync.Mutex
}

// New creates an unbound Device. Every Device owns its own channels,
// session and queue.
func New(t device.Transport, opts ...Option) *Device {
	d := &Device{
		transport:     t,
		queueCapacity: DefaultQueueCapacity,
		pollInterval:  DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logrus.New()
	}

	d.queue = device.NewNotificationQueue(d.queueCapacity)
	d.reset()
	return d
}

// reset replaces the channels, logging service and session with unbound ones.
func (d *Device) reset() {
	d.channels = NewChannelSet()
	d.logging = NewLoggingService()
	d.specs = []*Channel{
		{
			Kind:     Temperature,
			Loggable: true,
			Subscribable: gatt.NewSubscribable(gatt.Float32, floatSubscriptionOffset,
				gatt.WithDescriptionOffset(floatDescriptionOffset)),
		},
		{
			Kind:     Humidity,
			Loggable: true,
			Subscribable: gatt.NewSubscribable(gatt.Float32, floatSubscriptionOffset,
				gatt.WithDescriptionOffset(floatDescriptionOffset), gatt.WithUnit("%")),
		},
		{
			Kind:         Battery,
			Subscribable: gatt.NewSubscribable(gatt.Uint8, batterySubscriptionOffset, gatt.WithUnit("%")),
		},
	}
	d.session = NewLoggingSession(d.logging, d.channels, routerFunc(d.setRouting), d.logger, d.sessionOpts...)
}

func serviceOf(kind ChannelKind) string {
	switch kind {
	case Temperature:
		return TemperatureServiceUUID
	case Humidity:
		return HumidityServiceUUID
	default:
		return BatteryServiceUUID
	}
}

// Bind discovers the gadget layout, binds every characteristic and starts
// queueing notifications. A failed Bind leaves the Device unbound, so it
// can be retried.
func (d *Device) Bind(ctx context.Context, disc device.Discoverer) error {
	if d.bound.Load() {
		return fmt.Errorf("bind gadget: %w", gatt.ErrAlreadyBound)
	}
	if err := d.bind(ctx, disc); err != nil {
		d.reset()
		return err
	}

	d.transport.SetNotificationHandler(d.queue.Handler())
	d.bound.Store(true)
	d.logger.WithField("channels", d.channels.Len()).Info("Gadget bound")
	return nil
}

func (d *Device) bind(ctx context.Context, disc device.Discoverer) error {
	for _, ch := range d.specs {
		refs, err := disc.DiscoverCharacteristics(ctx, serviceOf(ch.Kind))
		if err != nil {
			return fmt.Errorf("discover %s service: %w", ch.Kind, err)
		}
		if len(refs) == 0 {
			return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceOf(ch.Kind), "*"}}
		}
		if err := ch.Bind(ctx, d.transport, refs[0]); err != nil {
			return fmt.Errorf("bind %s: %w", ch.Kind, err)
		}
		if err := d.channels.Add(ch); err != nil {
			return err
		}
		d.logger.WithFields(logrus.Fields{
			"channel":     ch.Kind.String(),
			"handle":      fmt.Sprintf("0x%04x", ch.Handle()),
			"description": ch.Description(),
			"unit":        ch.Unit(),
			"subscribed":  ch.Subscribed(),
		}).Debug("Bound channel")
	}

	refs, err := disc.DiscoverCharacteristics(ctx, LoggingServiceUUID)
	if err != nil {
		return fmt.Errorf("discover logging service: %w", err)
	}
	return d.logging.Bind(ctx, d.transport, refs)
}

// Close stops queueing notifications.
func (d *Device) Close() {
	d.transport.SetNotificationHandler(nil)
}

// IsConnected reports the transport connection state when the transport
// exposes one.
func (d *Device) IsConnected() bool {
	if c, ok := d.transport.(interface{ IsConnected() bool }); ok {
		return c.IsConnected()
	}
	return d.bound.Load()
}

func (d *Device) Channels() *ChannelSet { return d.channels }
func (d *Device) Logging() *LoggingService { return d.logging }
func (d *Device) Session() *LoggingSession { return d.session }
func (d *Device) Queue() *device.NotificationQueue { return d.queue }

// Routing returns the current frame routing mode.
func (d *Device) Routing() Routing {
	return Routing(d.routing.Load())
}

func (d *Device) setRouting(r Routing) {
	d.routing.Store(int32(r))
	d.logger.WithField("routing", r.String()).Debug("Notification routing changed")
}

// Channel returns the bound channel of kind.
func (d *Device) Channel(kind ChannelKind) (*Channel, error) {
	if !d.bound.Load() {
		return nil, ErrNotBound
	}
	ch, ok := d.channels.ByKind(kind)
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotBound)
	}
	return ch, nil
}

// Read reads the current value of a channel.
func (d *Device) Read(ctx context.Context, kind ChannelKind) (gatt.Value, error) {
	ch, err := d.Channel(kind)
	if err != nil {
		return gatt.Value{}, err
	}
	return ch.Read(ctx)
}

func (d *Device) ReadTemperature(ctx context.Context) (float64, error) {
	v, err := d.Read(ctx, Temperature)
	return v.Float64(), err
}

func (d *Device) ReadHumidity(ctx context.Context) (float64, error) {
	v, err := d.Read(ctx, Humidity)
	return v.Float64(), err
}

func (d *Device) ReadBattery(ctx context.Context) (uint8, error) {
	v, err := d.Read(ctx, Battery)
	return uint8(v.Uint64()), err
}

// Subscribe enables notifications for a channel.
func (d *Device) Subscribe(ctx context.Context, kind ChannelKind) error {
	ch, err := d.Channel(kind)
	if err != nil {
		return err
	}
	return ch.Subscribe(ctx)
}

// Unsubscribe disables notifications for a channel.
func (d *Device) Unsubscribe(ctx context.Context, kind ChannelKind) error {
	ch, err := d.Channel(kind)
	if err != nil {
		return err
	}
	return ch.Unsubscribe(ctx)
}

// AddListener registers fn for decoded values of a channel.
func (d *Device) AddListener(kind ChannelKind, fn gatt.Listener) (gatt.ListenerID, error) {
	ch, err := d.Channel(kind)
	if err != nil {
		return 0, err
	}
	return ch.RegisterListener(fn), nil
}

// RemoveListener unregisters a listener added by AddListener.
func (d *Device) RemoveListener(kind ChannelKind, id gatt.ListenerID) bool {
	ch, err := d.Channel(kind)
	if err != nil {
		return false
	}
	return ch.UnregisterListener(id)
}

// Listen drains notifications for duration, or until ctx is done when
// duration is zero.
func (d *Device) Listen(ctx context.Context, duration time.Duration) error {
	if !d.bound.Load() {
		return ErrNotBound
	}
	d.consumerMu.Lock()
	defer d.consumerMu.Unlock()

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if duration > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return ctx.Err()
		case n := <-d.queue.C():
			d.route(ctx, n)
		case <-ticker.C:
			d.session.Tick(ctx)
		}
	}
}

// DownloadLog downloads the gadget's logged history.
//
// Loggable channels that are not subscribed are subscribed for the duration
// of the call. The download is aborted after overall (DefaultOverallTimeout
// when zero) or when ctx is done. A failed download is not an error: the
// returned Result carries the status and the partial samples. The error is
// non-nil only when the download could not start or ctx was cancelled.
func (d *Device) DownloadLog(ctx context.Context, overall time.Duration, onProgress ProgressFunc) (*Result, error) {
	if !d.bound.Load() {
		return nil, ErrNotBound
	}
	if overall <= 0 {
		overall = DefaultOverallTimeout
	}

	d.consumerMu.Lock()
	defer d.consumerMu.Unlock()

	var subscribed []*Channel
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		for _, ch := range subscribed {
			if err := ch.Unsubscribe(cleanupCtx); err != nil {
				d.logger.WithError(err).WithField("channel", ch.Kind.String()).Warn("Failed to unsubscribe after download")
			}
		}
	}()
	for _, ch := range d.channels.Loggable() {
		if ch.Subscribed() {
			continue
		}
		if err := ch.Subscribe(ctx); err != nil {
			return nil, err
		}
		subscribed = append(subscribed, ch)
	}

	if err := d.session.Start(ctx); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(overall)
	defer deadline.Stop()
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for d.session.State() == Downloading {
		select {
		case <-ctx.Done():
			d.session.Abort(ctx, errors.Join(ErrAborted, ctx.Err()))
		case <-deadline.C:
			d.session.Abort(ctx, fmt.Errorf("%w: download exceeded %s", ErrDownloadTimeout, overall))
		case n := <-d.queue.C():
			d.route(ctx, n)
		case <-ticker.C:
			d.session.Tick(ctx)
			progress := d.session.Progress()
			if onProgress != nil {
				onProgress(progress)
			}
			d.logger.WithField("progress", fmt.Sprintf("%.1f%%", progress)).Debug("Download progress")
		}
	}

	res := d.session.Result()
	if onProgress != nil && res != nil && res.Complete() {
		onProgress(100)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// Progress returns the download progress in percent, 0 when idle.
func (d *Device) Progress() float64 {
	return d.session.Progress()
}

// IsDownloading reports whether a download session is active.
func (d *Device) IsDownloading() bool {
	return d.session.State() == Downloading
}

// Abort stops an active download; it is a no-op otherwise.
func (d *Device) Abort(ctx context.Context) {
	d.session.Stop(ctx)
}

func (d *Device) route(ctx context.Context, n device.Notification) {
	if d.Routing() == LoggingRouting && d.session.HandleNotification(ctx, n) {
		return
	}

	err := d.channels.Route(n.Handle, n.Data)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnroutedNotification):
		d.logger.WithField("handle", fmt.Sprintf("0x%04x", n.Handle)).Debug("Ignoring notification for unknown handle")
	case errors.Is(err, gatt.ErrMalformedPayload) && d.isSampleFrame(n):
		// The gadget keeps streaming for a moment after the stop signal.
		d.logger.WithFields(logrus.Fields{
			"handle": fmt.Sprintf("0x%04x", n.Handle),
			"bytes":  len(n.Data),
		}).Debug("Dropped sample frame outside a download")
	default:
		d.logger.WithError(err).WithField("handle", fmt.Sprintf("0x%04x", n.Handle)).Warn("Notification dispatch failed")
	}
}

// isSampleFrame reports whether n is longer than a live value of a loggable
// channel, the shape of a history frame.
func (d *Device) isSampleFrame(n device.Notification) bool {
	ch, ok := d.channels.Lookup(n.Handle)
	return ok && ch.Loggable && len(n.Data) > ch.Format().Width()
}
