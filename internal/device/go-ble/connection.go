package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/groutine"
)

// ----------------------------
// Configuration Constants
// ----------------------------

const (
	// DefaultConnectTimeout bounds dialing and profile discovery.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultRequestTimeout bounds a single read or write.
	DefaultRequestTimeout = 5 * time.Second
)

// gattClient is the part of ble.Client the connection drives.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	WriteDescriptor(d *ble.Descriptor, value []byte) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// dial opens a client to address on the default device (overridden in tests).
var dial = func(ctx context.Context, address string) (gattClient, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", device.NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ----------------------------
// BLE Connection
// ----------------------------

// Connection is a device.Peripheral over a go-ble client. Attributes are
// addressed by handle; see newLayout for stacks that hide handles.
type Connection struct {
	address        string
	client         gattClient
	layout         *layout
	logger         *logrus.Logger
	requestTimeout time.Duration

	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	handlerMu sync.RWMutex
	handler   device.NotificationHandler

	// cccdMu guards the client configuration values written so far, keyed by
	// descriptor handle.
	cccdMu sync.Mutex
	cccd   map[uint16][]byte
}

// Connect dials opts.Address, discovers its profile and starts watching
// for disconnection.
func Connect(ctx context.Context, opts device.ConnectOptions, logger *logrus.Logger) (*Connection, error) {
	if logger == nil {
		logger = logrus.New()
	}
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := dial(connCtx, address)
	if err != nil {
		err = device.NormalizeError(err)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: no connection within %s: %w", device.ErrTimeout, opts.ConnectTimeout, err)
		}
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, err)
	}

	c, err := newConnection(address, client, opts.RequestTimeout, logger)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, err
	}
	return c, nil
}

func newConnection(address string, client gattClient, requestTimeout time.Duration, logger *logrus.Logger) (*Connection, error) {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		return nil, fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}

	c := &Connection{
		address:        address,
		client:         client,
		layout:         newLayout(profile),
		logger:         logger,
		requestTimeout: requestTimeout,
		done:           make(chan struct{}),
		cccd:           make(map[uint16][]byte),
	}
	c.connected.Store(true)

	if disc := client.Disconnected(); disc != nil {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-disc:
				if c.connected.Load() {
					c.logger.WithField("address", c.address).Warn("Peripheral reported disconnection")
				}
				c.markDisconnected()
			case <-c.done:
			}
		})
	}

	chars := 0
	for _, refs := range c.layout.services {
		chars += len(refs)
	}
	logger.WithFields(logrus.Fields{
		"address":          address,
		"services":         len(c.layout.services),
		"characteristics":  chars,
		"synthetic_handle": c.layout.synthetic,
	}).Info("BLE device connected successfully")
	return c, nil
}

func (c *Connection) markDisconnected() {
	c.connected.Store(false)
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection is lost or closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Address() string { return c.address }

func (c *Connection) IsConnected() bool {
	return c.connected.Load()
}

// Disconnect releases notification subscriptions and drops the link.
// Calling it on a closed connection does nothing.
func (c *Connection) Disconnect() error {
	if !c.connected.Load() {
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	c.logger.WithField("address", c.address).Info("Disconnecting BLE device...")

	c.cccdMu.Lock()
	var active []uint16
	for h, v := range c.cccd {
		if len(v) > 0 && v[0]&0x03 != 0 {
			active = append(active, h)
		}
	}
	c.cccdMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()
	for _, h := range active {
		if err := c.WriteDescriptor(ctx, h, []byte{0, 0}); err != nil {
			c.logger.WithError(err).WithField("handle", fmt.Sprintf("0x%04x", h)).Warn("Failed to unsubscribe during disconnect")
		}
	}

	c.markDisconnected()
	c.SetNotificationHandler(nil)

	if err := c.client.CancelConnection(); err != nil {
		err = device.NormalizeError(err)
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return err
	}
	c.logger.Info("BLE device disconnected successfully")
	return nil
}

// DiscoverCharacteristics lists the characteristics of a service in handle order.
func (c *Connection) DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]device.CharacteristicRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.connected.Load() {
		return nil, device.ErrNotConnected
	}
	refs, ok := c.layout.services[device.NormalizeUUID(serviceUUID)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}
	out := make([]device.CharacteristicRef, len(refs))
	copy(out, refs)
	return out, nil
}

func (c *Connection) SetNotificationHandler(h device.NotificationHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = h
}

func (c *Connection) ReadCharacteristic(ctx context.Context, handle uint16) ([]byte, error) {
	a, err := c.resolve(handle, false)
	if err != nil {
		return nil, err
	}
	return call(ctx, c, "read", handle, func() ([]byte, error) {
		return c.client.ReadCharacteristic(a.char)
	})
}

func (c *Connection) WriteCharacteristic(ctx context.Context, handle uint16, data []byte) error {
	a, err := c.resolve(handle, false)
	if err != nil {
		return err
	}
	noRsp := a.char.Property&ble.CharWrite == 0 && a.char.Property&ble.CharWriteNR != 0
	return c.request(ctx, "write", handle, func() error {
		return c.client.WriteCharacteristic(a.char, data, noRsp)
	})
}

// ReadDescriptor reads a descriptor. Client configuration descriptors that
// the stack cannot read report the last value written through this
// connection, 0000 before any write.
func (c *Connection) ReadDescriptor(ctx context.Context, handle uint16) ([]byte, error) {
	a, err := c.resolve(handle, true)
	if err != nil {
		return nil, err
	}

	if a.cccd && (a.desc == nil || c.layout.synthetic) {
		return c.cccdValue(handle), nil
	}

	out, err := call(ctx, c, "read descriptor", handle, func() ([]byte, error) {
		return c.client.ReadDescriptor(a.desc)
	})
	if err != nil && a.cccd {
		c.logger.WithError(err).WithField("handle", fmt.Sprintf("0x%04x", handle)).Debug("Client configuration unreadable, using tracked value")
		return c.cccdValue(handle), nil
	}
	return out, err
}

// WriteDescriptor writes a descriptor. Writes to a client configuration
// descriptor go through the stack's subscribe and unsubscribe calls so the
// notification callback is registered with it.
func (c *Connection) WriteDescriptor(ctx context.Context, handle uint16, data []byte) error {
	a, err := c.resolve(handle, true)
	if err != nil {
		return err
	}
	if !a.cccd {
		if a.desc == nil {
			return fmt.Errorf("descriptor 0x%04x: %w", handle, device.ErrUnsupported)
		}
		return c.request(ctx, "write descriptor", handle, func() error {
			return c.client.WriteDescriptor(a.desc, data)
		})
	}

	if len(data) == 0 {
		return fmt.Errorf("client configuration 0x%04x: empty value", handle)
	}
	prev := c.cccdValue(handle)
	enable, indicate := data[0]&0x01 != 0, data[0]&0x02 != 0

	switch {
	case enable || indicate:
		if !notifiable(a.char) {
			return fmt.Errorf("characteristic %s: notifications %w", device.ShortenUUID(a.char.UUID.String()), device.ErrUnsupported)
		}
		valueHandle := c.layout.valueHandles[a.char]
		err = c.request(ctx, "subscribe", handle, func() error {
			return c.client.Subscribe(a.char, indicate && !enable, func(b []byte) {
				c.dispatch(valueHandle, b)
			})
		})
	case prev[0]&0x03 != 0:
		err = c.request(ctx, "unsubscribe", handle, func() error {
			return c.client.Unsubscribe(a.char, prev[0]&0x01 == 0)
		})
	}
	if err != nil {
		return err
	}

	c.cccdMu.Lock()
	c.cccd[handle] = []byte{data[0], 0}
	c.cccdMu.Unlock()
	return nil
}

func (c *Connection) dispatch(handle uint16, data []byte) {
	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h == nil {
		return
	}
	h(device.Notification{Handle: handle, Data: data, At: time.Now()})
}

func (c *Connection) cccdValue(handle uint16) []byte {
	c.cccdMu.Lock()
	defer c.cccdMu.Unlock()
	if v, ok := c.cccd[handle]; ok {
		return append([]byte(nil), v...)
	}
	return []byte{0, 0}
}

func (c *Connection) resolve(handle uint16, descriptor bool) (*attribute, error) {
	if !c.connected.Load() {
		return nil, device.ErrNotConnected
	}
	a, ok := c.layout.lookup(handle)
	isDescriptor := ok && (a.desc != nil || a.cccd)
	if !ok || isDescriptor != descriptor {
		resource := "characteristic"
		if descriptor {
			resource = "descriptor"
		}
		return nil, &device.NotFoundError{Resource: resource, UUIDs: []string{fmt.Sprintf("0x%04x", handle)}}
	}
	return a, nil
}

// request runs a blocking stack call that only reports an error.
func (c *Connection) request(ctx context.Context, op string, handle uint16, fn func() error) error {
	_, err := call(ctx, c, op, handle, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

type result[T any] struct {
	value T
	err   error
}

// call runs a blocking stack call under the request timeout. go-ble calls
// take no context, so an abandoned call finishes in the background and its
// result lands in the buffered channel unread.
func call[T any](ctx context.Context, c *Connection, op string, handle uint16, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	done := make(chan result[T], 1)
	groutine.Go(ctx, "ble-"+strings.ReplaceAll(op, " ", "-"), func(context.Context) {
		v, err := fn()
		done <- result[T]{value: v, err: err}
	})

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			err := device.NormalizeError(r.err)
			if device.IsConnectionState(err, device.NotConnected) {
				c.markDisconnected()
			}
			return zero, fmt.Errorf("%s 0x%04x: %w", op, handle, err)
		}
		return r.value, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s 0x%04x: %w after %s", op, handle, device.ErrTimeout, c.requestTimeout)
		}
		return zero, ctx.Err()
	}
}
