// Command client sends numbered messages to the echo server and waits for
// every reply.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/framesock"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:12345", "server address")
	count := flag.Int("n", 10, "number of messages to send")
	interval := flag.Duration("poll", 5*time.Millisecond, "wait between idle polls")
	flag.Parse()

	if err := run(*addr, *count, *interval); err != nil {
		slog.Error("client failed", "error", err)
		os.Exit(1)
	}
}

func run(addr string, count int, interval time.Duration) error {
	netConn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	ch, err := framesock.DetachConn(netConn)
	if err != nil {
		return err
	}
	conn, err := framesock.NewConn(ch)
	if err != nil {
		_ = ch.Close()
		return err
	}
	defer conn.Close()

	sent, received := 0, 0
	for received < count {
		ready, err := conn.PollReadiness()
		if err != nil {
			return err
		}
		progress := false

		if ready.Has(framesock.Writable) {
			if !conn.HasPending() && sent < count {
				msg := fmt.Appendf(nil, "%d: hello world", sent)
				if err := conn.SubmitOutbound(msg); err != nil {
					return err
				}
				sent++
			}
			if conn.HasPending() {
				err := conn.PumpOutbound()
				if err != nil && !errors.Is(err, framesock.ErrWouldBlock) {
					return err
				}
				progress = true
			}
		}

		if ready&(framesock.Readable|framesock.Hangup) != 0 {
			err := conn.PumpInbound()
			for _, msg := range conn.DrainInbound() {
				want := fmt.Appendf(nil, "%d: hello world", received)
				if !bytes.Equal(msg, want) {
					return errors.Errorf("reply %d: got %q, want %q", received, msg, want)
				}
				slog.Info("echo received", "message", string(msg))
				received++
				progress = true
			}
			if err != nil && !errors.Is(err, framesock.ErrWouldBlock) {
				return err
			}
		}

		if !progress {
			time.Sleep(interval)
		}
	}
	return nil
}
