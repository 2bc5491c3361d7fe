package framesock

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Transmitter serializes one message at a time onto a Channel and drives
// partial writes to completion. It is not safe for concurrent use.
type Transmitter struct {
	maxSize int

	buf     []byte // reused arena, prefix + payload of the pending message
	pending []byte // buf[:4+len(payload)] while a message is in flight
	off     int    // bytes of pending already written
}

// NewTransmitter returns a Transmitter that rejects messages above maxSize.
// A non-positive maxSize selects DefaultMaxMessageSize; values a 4-byte
// prefix cannot carry are clamped to 1<<32-1.
func NewTransmitter(maxSize int) *Transmitter {
	return &Transmitter{maxSize: frameLimit(maxSize)}
}

// Submit stages msg for transmission without writing anything.
// It returns ErrBusy while a previous message is in flight and ErrInvalidSize
// for an empty or oversized message; in both cases nothing changes.
func (t *Transmitter) Submit(msg []byte) error {
	if t.pending != nil {
		return ErrBusy
	}
	if len(msg) == 0 || len(msg) > t.maxSize {
		return errors.Wrapf(ErrInvalidSize, "message of %d bytes (max %d)", len(msg), t.maxSize)
	}

	size := PrefixLen + len(msg)
	if cap(t.buf) < size {
		t.buf = make([]byte, size)
	}
	p := t.buf[:size]
	binary.BigEndian.PutUint32(p[:PrefixLen], uint32(len(msg)))
	copy(p[PrefixLen:], msg)

	t.pending = p
	t.off = 0
	return nil
}

// Flush writes as much of the pending message as the channel accepts.
// It returns nil once the whole message has been written (or when nothing
// is pending), ErrWouldBlock when the channel is full, ErrClosed when the
// peer has gone away, or the channel's *SyscallError.
func (t *Transmitter) Flush(ch Channel) error {
	for t.pending != nil {
		n, err := ch.TryWrite(t.pending[t.off:])
		if n > 0 {
			t.off += n
			if t.off >= len(t.pending) {
				t.clear()
				return nil
			}
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil:
			return ErrWouldBlock
		case errors.Is(err, ErrClosed):
			t.clear()
			return ErrClosed
		default:
			return err
		}
	}
	return nil
}

func (t *Transmitter) clear() {
	t.pending = nil
	t.off = 0
}

// Pending reports whether a message is in flight.
func (t *Transmitter) Pending() bool {
	return t.pending != nil
}

// Remaining returns the number of bytes of the in-flight message not yet
// accepted by the channel.
func (t *Transmitter) Remaining() int {
	return len(t.pending) - t.off
}

// Reset drops the in-flight message.
func (t *Transmitter) Reset() {
	t.clear()
}
