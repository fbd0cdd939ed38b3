package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{name: "no identifiers", err: &NotFoundError{Resource: "service"}, expected: "service not found"},
		{name: "single service", err: &NotFoundError{Resource: "service", UUIDs: []string{"180f"}}, expected: `service "180f" not found`},
		{name: "characteristic in service", err: &NotFoundError{Resource: "characteristic", UUIDs: []string{"180f", "2a19"}}, expected: `characteristic "2a19" not found in service "180f"`},
		{name: "descriptor in characteristic", err: &NotFoundError{Resource: "descriptor", UUIDs: []string{"2a19", "2902"}}, expected: `descriptor "2902" not found in characteristic "2a19"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		in     error
		target error
	}{
		{name: "not connected", in: errors.New("device not connected"), target: ErrNotConnected},
		{name: "disconnected", in: errors.New("peripheral Disconnected"), target: ErrNotConnected},
		{name: "bluetooth off", in: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), target: ErrBluetoothOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.in)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.in.Error(), "original message MUST be preserved")
		})
	}

	t.Run("unknown error passes through", func(t *testing.T) {
		for _, msg := range []string{"att: attribute not found", "Device already connected"} {
			in := errors.New(msg)
			assert.Same(t, in, NormalizeError(in), msg)
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})
}

func TestIsConnectionState(t *testing.T) {
	wrapped := fmt.Errorf("read failed: %w", ErrNotConnected)

	assert.True(t, IsConnectionState(wrapped, NotConnected))
	assert.False(t, IsConnectionState(wrapped, BluetoothOff))
	assert.False(t, IsConnectionState(ErrTimeout, NotConnected))
}
