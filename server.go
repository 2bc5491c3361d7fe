package framesock

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Server accepts TCP connections and hands them, framed, to a Driver.
type Server struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration
	connOpts        []Option

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption sets the graceful shutdown timeout.
// When the context is canceled, the server keeps accepting for up to this
// duration before closing the listener. Default is 0 (immediate shutdown).
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// ServerConnOptions sets the options applied to every accepted connection.
func ServerConnOptions(opts ...Option) ServerOption {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opts...)
	}
}

// New creates a new TCP server bound to the specified address.
// Returns an error if the address cannot be bound or a connection option is
// invalid.
func New(addr *net.TCPAddr, opts ...ServerOption) (*Server, error) {
	s := &Server{
		shutdownNow: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}

	var probe options
	for _, o := range s.connOpts {
		o(&probe)
	}
	if err := checkOptions(&probe); err != nil {
		return nil, err
	}

	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	s.listener = listener

	return s, nil
}

// Serve accepts connections and adds them to d until the context is canceled
// or an unrecoverable error occurs. Accept blocks in the runtime poller, so
// an idle server does not spin.
func (s *Server) Serve(ctx context.Context, d *Driver) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-done:
				return
			default:
			}
		case <-done:
			return
		}

		// Wait for shutdown timeout if configured, but allow early exit via Close()
		if s.shutdownTimeout > 0 {
			s.logger.Info("graceful shutdown initiated", "timeout", s.shutdownTimeout)
			select {
			case <-time.After(s.shutdownTimeout):
			case <-s.shutdownNow:
				s.logger.Debug("shutdown timeout bypassed via Close()")
			case <-done:
				return
			}
		}

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// Set a deadline to unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		tcpConn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		remote := tcpConn.RemoteAddr()
		_ = tcpConn.SetNoDelay(true)

		c, err := s.frame(tcpConn)
		if err != nil {
			s.logger.Warn("dropping connection", "remote_addr", remote, "error", err)
			continue
		}

		s.logger.Debug("accepted connection", "remote_addr", remote, "conn_id", c.ID())
		if !d.Add(c) {
			s.logger.Warn("driver stopped, connection rejected", "remote_addr", remote)
		}
	}
}

// frame detaches the accepted socket into a non-blocking channel and wraps it.
func (s *Server) frame(tcpConn *net.TCPConn) (*Conn, error) {
	ch, err := DetachConn(tcpConn)
	if err != nil {
		_ = tcpConn.Close()
		return nil, err
	}
	c, err := NewConn(ch, s.connOpts...)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return c, nil
}

// Close stops the server by closing the underlying listener.
// If a shutdown timeout is configured, Close() bypasses the remaining timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	select {
	case s.shutdownNow <- struct{}{}:
	default:
	}

	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
