package framesock

import (
	"net"
	"testing"
	"time"
)

// memChannel is a scripted in-memory Channel.
//
// Reads are served from in, at most readLimit bytes per call (0 means no
// limit). When in is empty the read fails with readErr, or ErrClosed if eof
// is set, or ErrWouldBlock otherwise.
//
// Writes append to out. writeQuota caps the bytes accepted before writes
// start failing with ErrWouldBlock; a negative quota means unlimited.
//
// Poll reports ready, plus Readable while input is buffered, or pollErr.
type memChannel struct {
	in        []byte
	readLimit int
	eof       bool
	readErr   error

	out        []byte
	writeQuota int
	writeErr   error
	zeroWrite  bool

	ready   Readiness
	pollErr error

	reads  int
	writes int
	closed bool
}

func newMemChannel() *memChannel {
	return &memChannel{writeQuota: -1, ready: Writable}
}

func (m *memChannel) feed(b ...[]byte) {
	for _, p := range b {
		m.in = append(m.in, p...)
	}
}

func (m *memChannel) TryRead(p []byte) (int, error) {
	m.reads++
	if m.closed {
		return 0, ErrClosed
	}
	if len(m.in) == 0 {
		switch {
		case m.readErr != nil:
			return 0, m.readErr
		case m.eof:
			return 0, ErrClosed
		default:
			return 0, ErrWouldBlock
		}
	}
	n := len(p)
	if m.readLimit > 0 && n > m.readLimit {
		n = m.readLimit
	}
	n = copy(p[:n], m.in)
	m.in = m.in[n:]
	return n, nil
}

func (m *memChannel) TryWrite(p []byte) (int, error) {
	m.writes++
	if m.closed {
		return 0, ErrClosed
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if m.zeroWrite {
		return 0, nil
	}
	n := len(p)
	if m.writeQuota >= 0 {
		if m.writeQuota == 0 {
			return 0, ErrWouldBlock
		}
		if n > m.writeQuota {
			n = m.writeQuota
		}
		m.writeQuota -= n
	}
	m.out = append(m.out, p[:n]...)
	return n, nil
}

func (m *memChannel) Poll() (Readiness, error) {
	if m.closed {
		return 0, ErrClosed
	}
	if m.pollErr != nil {
		return 0, m.pollErr
	}
	r := m.ready
	if len(m.in) > 0 || m.eof {
		r |= Readable
	}
	return r, nil
}

func (m *memChannel) Close() error {
	m.closed = true
	return nil
}

// createTestTCPPair creates a connected pair of TCP connections for testing
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
		return nil, nil
	case <-time.After(5 * time.Second):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
		return nil, nil
	}
}

// payload returns n deterministic bytes.
func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}
