package jitter

import "errors"

var (
	// ErrLatencyRequired is returned by New if Config.Latency is not positive.
	ErrLatencyRequired = errors.New("jitter: Config.Latency must be positive")

	// ErrStreamDrained is returned by Push once the buffer has been closed.
	ErrStreamDrained = errors.New("jitter: stream already drained")
)
