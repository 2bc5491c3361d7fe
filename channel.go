package framesock

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Status errors returned by the framing engine. Callers match them with
// errors.Is; only ErrWouldBlock, ErrBusy and ErrInvalidSize leave the
// connection usable.
var (
	// ErrWouldBlock means the channel cannot make progress right now.
	// Retry after the next readiness signal.
	ErrWouldBlock = errors.New("operation would block")
	// ErrClosed means the peer ended the connection or the connection was
	// closed locally. Partial state has been discarded.
	ErrClosed = errors.New("connection closed")
	// ErrMalformedSize means an inbound length prefix was zero or larger than
	// the configured maximum. The byte stream can no longer be trusted.
	ErrMalformedSize = errors.New("malformed message size")
	// ErrBusy is returned by Submit while a previous message is still in flight.
	ErrBusy = errors.New("outbound message in flight")
	// ErrInvalidSize is returned by Submit for an empty or oversized message.
	ErrInvalidSize = errors.New("invalid message size")
)

// ErrNotSyscallConn is returned by DetachConn for connections that do not
// expose a file descriptor.
var ErrNotSyscallConn = errors.New("connection does not expose a file descriptor")

// SyscallError is a transport failure reported by a Channel. It is terminal
// for the connection.
type SyscallError struct {
	Op   string
	Code error
}

// Error returns the operation followed by the underlying error.
func (e *SyscallError) Error() string {
	return e.Op + ": " + e.Code.Error()
}

// Unwrap exposes the underlying errno so callers can match it with errors.Is.
func (e *SyscallError) Unwrap() error {
	return e.Code
}

// IsTerminal reports whether err means the connection must be discarded.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrWouldBlock), errors.Is(err, ErrBusy), errors.Is(err, ErrInvalidSize):
		return false
	}
	return true
}

// Readiness is the set of conditions reported by a zero-timeout poll.
type Readiness uint8

const (
	// Readable means a read would not block.
	Readable Readiness = 1 << iota
	// Writable means a write would not block.
	Writable
	// ErrorCond means the transport has a pending error.
	ErrorCond
	// Hangup means the peer closed the connection.
	Hangup
	// Invalid means the descriptor is not open.
	Invalid
)

// Has reports whether all bits of flag are set.
func (r Readiness) Has(flag Readiness) bool {
	return r&flag == flag
}

func (r Readiness) String() string {
	if r == 0 {
		return "none"
	}
	names := []string{"readable", "writable", "error", "hangup", "invalid"}
	var parts []string
	for i, name := range names {
		if r&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if rest := r &^ (1<<len(names) - 1); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// Channel is a non-blocking duplex byte transport. Any transport that can
// read, write and report readiness without blocking can carry framed messages.
//
// TryRead fills at most len(p) bytes. It returns n > 0 with a nil error, or
// ErrWouldBlock, ErrClosed (end of stream) or a *SyscallError.
//
// TryWrite accepts between 0 and len(p) bytes. It returns ErrWouldBlock when no
// byte could be accepted, ErrClosed when the peer has closed its read side,
// or a *SyscallError.
//
// Poll never blocks.
type Channel interface {
	TryRead(p []byte) (int, error)
	TryWrite(p []byte) (int, error)
	Poll() (Readiness, error)
	Close() error
}
