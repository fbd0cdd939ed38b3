package gadget

import "errors"

var (
	// ErrInvalidInterval is returned when the gadget reports a zero logger
	// interval, which leaves the expected sample count undefined.
	ErrInvalidInterval = errors.New("invalid logger interval")

	// ErrDownloadTimeout marks a download that stopped receiving sample frames.
	ErrDownloadTimeout = errors.New("download timeout")

	// ErrUnroutedNotification is informational: a frame arrived for a handle
	// that belongs to no known channel.
	ErrUnroutedNotification = errors.New("unrouted notification")

	ErrDownloadInProgress = errors.New("download already in progress")
	ErrNoLogChannels      = errors.New("no subscribed loggable channels")
	ErrAborted            = errors.New("download aborted")
	ErrNotBound           = errors.New("gadget not bound")
)
