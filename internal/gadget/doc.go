// Package gadget drives a Sensirion Smart Humigadget: live temperature,
// humidity and battery channels plus the bulk download of the samples the
// gadget logged while nobody was connected.
//
// A Device owns one ChannelSet, one LoggingService and one LoggingSession.
// Notification frames from the transport are queued and drained by a single
// consumer (Listen or DownloadLog) which routes each frame either to the
// live channels or, while a download is active, to the session.
package gadget
