package framesock

import (
	"time"
)

// options holds the configuration for a connection.
type options struct {
	logger Logger

	maxMessageSize int // maximum payload size of a single message, prefix excluded
}

// Option is a function that configures connection options.
type Option func(*options)

// MessageMaxSize returns an Option that sets the maximum message payload size.
// It bounds both inbound prefixes and outbound submissions. The 4-byte prefix
// is not counted.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// driverOptions holds the configuration for a Driver.
type driverOptions struct {
	logger Logger

	workers      int
	pollInterval time.Duration // idle wait after a sweep without progress
}

// DriverOption configures a Driver.
type DriverOption func(*driverOptions)

// DriverWorkersOption sets the number of worker goroutines servicing
// connections.
func DriverWorkersOption(n int) DriverOption {
	return func(o *driverOptions) {
		o.workers = n
	}
}

// DriverPollIntervalOption sets how long a worker waits after sweeping every
// queued connection without any of them making progress.
func DriverPollIntervalOption(d time.Duration) DriverOption {
	return func(o *driverOptions) {
		o.pollInterval = d
	}
}

// DriverLoggerOption sets the logger for the driver.
func DriverLoggerOption(logger Logger) DriverOption {
	return func(o *driverOptions) {
		o.logger = logger
	}
}
