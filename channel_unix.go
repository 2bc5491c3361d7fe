//go:build unix

package framesock

import (
	"net"
	"sync/atomic"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FDChannel is a Channel over a non-blocking unix file descriptor.
// It owns the descriptor and closes it on Close.
type FDChannel struct {
	fd     int
	closed atomic.Bool
}

// NewFDChannel takes ownership of fd and switches it to non-blocking mode.
func NewFDChannel(fd int) (*FDChannel, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errors.Wrap(err, "set non-blocking")
	}
	return &FDChannel{fd: fd}, nil
}

// DetachConn moves the socket of conn into an FDChannel. The descriptor is
// duplicated out of conn and conn itself is closed, so the Go runtime poller
// no longer touches the socket. The returned Channel is an *FDChannel.
func DetachConn(conn net.Conn) (Channel, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, ErrNotSyscallConn
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "syscall conn")
	}

	fd := -1
	var dupErr error
	if err := raw.Control(func(s uintptr) {
		fd, dupErr = unix.FcntlInt(s, unix.F_DUPFD_CLOEXEC, 0)
	}); err != nil {
		return nil, errors.Wrap(err, "control")
	}
	if dupErr != nil {
		return nil, errors.Wrap(dupErr, "dup")
	}

	_ = conn.Close()

	ch, err := NewFDChannel(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return ch, nil
}

// SocketPair returns two connected stream channels.
func SocketPair() (*FDChannel, *FDChannel, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "socketpair")
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])

	a, err := NewFDChannel(fds[0])
	if err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := NewFDChannel(fds[1])
	if err != nil {
		_ = a.Close()
		_ = unix.Close(fds[1])
		return nil, nil, err
	}
	return a, b, nil
}

// Fd returns the underlying descriptor.
func (c *FDChannel) Fd() int {
	return c.fd
}

// TryRead reads once, retrying only on EINTR. End of stream is ErrClosed.
func (c *FDChannel) TryRead(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(c.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, translateErrno("read", err)
		}
		if n == 0 {
			return 0, ErrClosed
		}
		return n, nil
	}
}

// TryWrite writes once, retrying only on EINTR.
func (c *FDChannel) TryWrite(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Write(c.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, translateErrno("write", err)
		}
		return n, nil
	}
}

// Poll reports the descriptor's readiness with a zero timeout.
func (c *FDChannel) Poll() (Readiness, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN | unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, &SyscallError{Op: "poll", Code: err}
		}
		return readinessFromRevents(fds[0].Revents), nil
	}
}

// Close closes the descriptor. Safe to call multiple times.
func (c *FDChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if err := unix.Close(c.fd); err != nil {
		return &SyscallError{Op: "close", Code: err}
	}
	return nil
}

func readinessFromRevents(ev int16) Readiness {
	var r Readiness
	if ev&unix.POLLIN != 0 {
		r |= Readable
	}
	if ev&unix.POLLOUT != 0 {
		r |= Writable
	}
	if ev&unix.POLLERR != 0 {
		r |= ErrorCond
	}
	if ev&unix.POLLHUP != 0 {
		r |= Hangup
	}
	if ev&unix.POLLNVAL != 0 {
		r |= Invalid
	}
	return r
}

// translateErrno maps a read or write errno onto the status taxonomy.
func translateErrno(op string, err error) error {
	switch err {
	case unix.EAGAIN:
		return ErrWouldBlock
	case unix.EPIPE, unix.ECONNRESET:
		return errors.Wrap(ErrClosed, op)
	}
	return &SyscallError{Op: op, Code: err}
}
