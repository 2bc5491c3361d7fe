package framesock

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrNilHandler is returned when a Driver is created without a handler.
var ErrNilHandler = errors.New("nil handler")

// Default driver configuration values.
const (
	defaultWorkers      = 1
	defaultPollInterval = 10 * time.Millisecond
)

// Handler processes the messages of one connection.
//
// Serve is called on every service pass of c, with the messages completed
// since the previous pass (possibly none). The handler owns c for the
// duration of the call and may submit outbound messages; ErrBusy from
// SubmitOutbound means the previous message is still in flight and the
// handler should try again on a later pass. A non-nil return tears the
// connection down.
type Handler interface {
	Serve(c *Conn, msgs [][]byte) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(c *Conn, msgs [][]byte) error

// Serve calls f(c, msgs).
func (f HandlerFunc) Serve(c *Conn, msgs [][]byte) error {
	return f(c, msgs)
}

// CloseHandler is optionally implemented by a Handler that wants to know when
// a connection has been torn down. err is the status that ended it.
type CloseHandler interface {
	Closed(c *Conn, err error)
}

// Driver services many connections with a fixed pool of workers. Each
// connection is owned by at most one worker at a time.
type Driver struct {
	handler Handler
	logger  Logger
	opts    driverOptions

	queue *readyQueue
}

// NewDriver creates a Driver dispatching messages to handler.
func NewDriver(handler Handler, opt ...DriverOption) (*Driver, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	var opts driverOptions
	for _, o := range opt {
		o(&opts)
	}
	checkDriverOptions(&opts)

	return &Driver{
		handler: handler,
		logger:  opts.logger,
		opts:    opts,
		queue:   newReadyQueue(),
	}, nil
}

// checkDriverOptions sets default values for driver options.
func checkDriverOptions(opts *driverOptions) {
	if opts.workers <= 0 {
		opts.workers = defaultWorkers
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = defaultPollInterval
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

// Add hands c to the driver. It reports false, and closes c, when the driver
// has already stopped.
func (d *Driver) Add(c *Conn) bool {
	if !d.queue.push(c) {
		_ = c.Close()
		return false
	}
	d.logger.Debug("connection added", "conn_id", c.ID())
	return true
}

// Len returns the number of connections waiting for a worker.
func (d *Driver) Len() int {
	return d.queue.Len()
}

// Run starts the workers and blocks until ctx is canceled or a worker fails.
// Every connection still held by the driver is closed before Run returns.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("driver started", "workers", d.opts.workers, "poll_interval", d.opts.pollInterval)

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-child.Done()
		for _, c := range d.queue.close() {
			d.teardown(c, ErrClosed)
		}
		return nil
	})

	for i := 0; i < d.opts.workers; i++ {
		group.Go(func() error {
			return d.work(child)
		})
	}

	err := group.Wait()
	d.logger.Info("driver stopped")
	if err != nil {
		return err
	}
	return ctx.Err()
}

// work pops connections and services them one pass at a time.
func (d *Driver) work(ctx context.Context) error {
	idle := 0
	timer := time.NewTimer(d.opts.pollInterval)
	defer timer.Stop()

	for {
		c, ok := d.queue.pop()
		if !ok {
			return nil
		}

		progress, err := d.service(c)
		if err != nil {
			d.teardown(c, err)
		} else if !d.queue.push(c) {
			d.teardown(c, ErrClosed)
		}

		if progress {
			idle = 0
			continue
		}

		// A full sweep without progress: yield before polling again.
		idle++
		if idle <= d.queue.Len() {
			continue
		}
		idle = 0

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.opts.pollInterval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// service performs one readiness-driven pass over c. It reports whether any
// bytes or messages moved, and returns a terminal error when c must go.
func (d *Driver) service(c *Conn) (bool, error) {
	ready, err := c.PollReadiness()
	if err != nil {
		return false, err
	}

	progress := false
	var inErr error
	// A pending socket error is reported by the next read.
	if ready&(Readable|Hangup|ErrorCond) != 0 {
		inErr = c.PumpInbound()
		if errors.Is(inErr, ErrWouldBlock) {
			inErr = nil
		}
	}

	msgs := c.DrainInbound()
	if len(msgs) > 0 {
		progress = true
	}
	if err := d.handler.Serve(c, msgs); err != nil {
		return progress, err
	}
	if inErr != nil {
		return progress, inErr
	}

	if c.HasPending() && ready.Has(Writable) {
		before := c.out.Remaining()
		err := c.PumpOutbound()
		if c.out.Remaining() != before || !c.HasPending() {
			progress = true
		}
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			return progress, err
		}
	}

	if !progress && ready&(ErrorCond|Invalid) != 0 {
		return false, &SyscallError{Op: "poll", Code: errors.Errorf("channel reported %s", ready)}
	}
	return progress, nil
}

// teardown closes c and notifies the handler.
func (d *Driver) teardown(c *Conn, cause error) {
	_ = c.Close()

	switch {
	case errors.Is(cause, ErrClosed):
		d.logger.Debug("connection ended", "conn_id", c.ID())
	case errors.Is(cause, ErrMalformedSize):
		d.logger.Warn("malformed frame, discarding connection", "conn_id", c.ID())
	default:
		d.logger.Error("connection failed", "conn_id", c.ID(), "error", cause)
	}

	if ch, ok := d.handler.(CloseHandler); ok {
		ch.Closed(c, cause)
	}
}
