package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ----------------------------
// Errors
// ----------------------------

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor", "handle"
	UUIDs    []string // One or more identifiers, parent first
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected ConnectionState = "not_connected"
	BluetoothOff ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected = &ConnectionError{State: NotConnected}
	ErrBluetoothOff = &ConnectionError{State: BluetoothOff}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// NormalizeError maps stack error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"), containsIgnoreCase(msg, "is Bluetooth turned on"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"), containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ----------------------------
// Transport boundary
// ----------------------------

// Notification is one frame pushed by the peripheral for a value handle.
type Notification struct {
	Handle uint16
	Data   []byte
	At     time.Time
}

// NotificationHandler receives frames on the BLE stack's goroutine.
// Implementations must not block.
type NotificationHandler func(Notification)

// Transport is the handle-addressed GATT client a gadget is driven through.
type Transport interface {
	ReadCharacteristic(ctx context.Context, handle uint16) ([]byte, error)
	WriteCharacteristic(ctx context.Context, handle uint16, data []byte) error
	ReadDescriptor(ctx context.Context, handle uint16) ([]byte, error)
	WriteDescriptor(ctx context.Context, handle uint16, data []byte) error

	// SetNotificationHandler installs the single receiver of all notification
	// frames. A nil handler discards frames.
	SetNotificationHandler(h NotificationHandler)
}

// CharacteristicRef identifies a discovered characteristic by UUID and value handle.
type CharacteristicRef struct {
	UUID   string
	Handle uint16
}

// Discoverer resolves a service to its characteristics, in handle order.
type Discoverer interface {
	DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]CharacteristicRef, error)
}

// Peripheral is a connected gadget: transport, discovery and lifecycle.
type Peripheral interface {
	Transport
	Discoverer

	Address() string
	IsConnected() bool
	Disconnect() error
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	Address        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration // per read/write timeout, 0 uses the transport default
}
