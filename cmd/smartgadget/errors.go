package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/smartgadget/internal/device"
	"github.com/srg/smartgadget/internal/gadget"
)

// Command-level errors
var (
	// ErrIncompleteDownload is returned after a download that did not account
	// for every logged sample. The partial history is still printed.
	ErrIncompleteDownload = errors.New("download incomplete")
)

// FormatUserError turns an error chain into a message a user can act on.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var nf *device.NotFoundError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable it and try again"
	case errors.Is(err, device.ErrNotConnected):
		return fmt.Sprintf("gadget disconnected: %v", err)
	case errors.As(err, &nf):
		return fmt.Sprintf("%v; the device does not look like a Smart Humigadget", err)
	case errors.Is(err, gadget.ErrDownloadTimeout):
		return fmt.Sprintf("%v; move closer to the gadget or raise --timeout", err)
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	}
	return err.Error()
}
