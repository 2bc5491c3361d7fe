// Package framesock turns a non-blocking byte channel into a stream of
// length-prefixed messages.
//
// Every message travels as a 4-byte big-endian payload length followed by the
// payload. A Conn binds one Channel to a Reassembler (inbound) and a
// Transmitter (outbound); all of its operations return immediately with a
// status instead of blocking. A Driver services many Conns from a pool of
// workers, and Server feeds accepted TCP connections into a Driver.
package framesock

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Errors returned by connection construction.
var (
	// ErrNilChannel is returned when no channel is provided.
	ErrNilChannel = errors.New("nil channel")
	// ErrInvalidMaxMessageSize is returned when the maximum message size
	// does not fit a 4-byte prefix.
	ErrInvalidMaxMessageSize = errors.New("invalid max message size")
)

var connSeq atomic.Uint64

// Conn is a framed connection over one Channel.
//
// Conn does no locking. It must be driven by one owner at a time; a Driver
// guarantees that by handing each Conn to a single worker per pass.
type Conn struct {
	id     uint64
	ch     Channel
	in     *Reassembler
	out    *Transmitter
	logger Logger

	opts options

	closed atomic.Bool
}

// NewConn creates a framed connection around ch.
// It applies the provided options and validates them before returning.
func NewConn(ch Channel, opt ...Option) (*Conn, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &Conn{
		id:     connSeq.Add(1),
		ch:     ch,
		in:     NewReassembler(opts.maxMessageSize),
		out:    NewTransmitter(opts.maxMessageSize),
		logger: opts.logger,
		opts:   opts,
	}, nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.maxMessageSize == 0 {
		opts.maxMessageSize = DefaultMaxMessageSize
	}

	if opts.maxMessageSize < 0 || uint64(opts.maxMessageSize) > maxPrefixValue {
		return errors.Wrapf(ErrInvalidMaxMessageSize, "%d", opts.maxMessageSize)
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// ID returns a process-unique identifier for the connection.
func (c *Conn) ID() uint64 {
	return c.id
}

// Channel returns the underlying channel.
func (c *Conn) Channel() Channel {
	return c.ch
}

// MaxMessageSize returns the configured payload limit.
func (c *Conn) MaxMessageSize() int {
	return c.opts.maxMessageSize
}

// PollReadiness reports which operations would currently make progress.
func (c *Conn) PollReadiness() (Readiness, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return c.ch.Poll()
}

// PumpInbound reads and reassembles as many messages as are available.
// It returns ErrWouldBlock when the channel is drained, or a terminal status.
// Messages completed before a terminal status remain available to
// DrainInbound.
func (c *Conn) PumpInbound() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.in.Pump(c.ch)
}

// DrainInbound removes and returns all completed messages in arrival order.
func (c *Conn) DrainInbound() [][]byte {
	return c.in.Dump()
}

// SubmitOutbound stages msg for sending. It returns ErrBusy while a previous
// message is still being written and ErrInvalidSize for an empty or oversized
// message.
func (c *Conn) SubmitOutbound(msg []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.out.Submit(msg)
}

// PumpOutbound writes as much of the staged message as the channel accepts.
// It returns nil once the message is fully written or nothing is staged.
func (c *Conn) PumpOutbound() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.out.Flush(c.ch)
}

// HasPending reports whether an outbound message is still in flight.
func (c *Conn) HasPending() bool {
	return c.out.Pending()
}

// Close closes the channel and discards partially received and partially
// sent data. Completed inbound messages can still be drained.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	c.in.discard()
	c.out.Reset()
	c.logger.Debug("connection closed", "conn_id", c.id)
	return c.ch.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
