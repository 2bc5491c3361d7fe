//go:build unix

package framesock

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSocketPair(t *testing.T) (*FDChannel, *FDChannel) {
	t.Helper()
	a, b, err := SocketPair()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

// eventually retries fn until it reports done or the deadline passes.
func eventually(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !fn() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFDChannel_ReadWouldBlock(t *testing.T) {
	a, _ := newSocketPair(t)

	n, err := a.TryRead(make([]byte, 8))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestFDChannel_WriteRead(t *testing.T) {
	a, b := newSocketPair(t)

	n, err := a.TryWrite([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	eventually(t, func() bool {
		r, err := b.Poll()
		require.NoError(t, err)
		return r.Has(Readable)
	})

	buf := make([]byte, 16)
	n, err = b.TryRead(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestFDChannel_PollIdleIsWritableOnly(t *testing.T) {
	a, _ := newSocketPair(t)

	r, err := a.Poll()
	require.NoError(t, err)
	assert.True(t, r.Has(Writable))
	assert.False(t, r.Has(Readable))
}

func TestFDChannel_PeerClosed(t *testing.T) {
	a, b := newSocketPair(t)
	require.NoError(t, b.Close())

	eventually(t, func() bool {
		r, err := a.Poll()
		require.NoError(t, err)
		return r&(Readable|Hangup) != 0
	})

	_, err := a.TryRead(make([]byte, 4))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = a.TryWrite([]byte("anyone?"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFDChannel_WriteFillsSocketBuffer(t *testing.T) {
	a, _ := newSocketPair(t)

	chunk := make([]byte, 64*1024)
	var err error
	for i := 0; i < 10_000; i++ {
		if _, err = a.TryWrite(chunk); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestFDChannel_CloseIdempotent(t *testing.T) {
	a, _ := newSocketPair(t)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	_, err := a.TryRead(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.TryWrite([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Poll()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDetachConn(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	ch, err := DetachConn(serverConn)
	require.NoError(t, err)
	defer ch.Close()

	// the original net.Conn is closed, the descriptor lives on in ch
	_, err = serverConn.Write([]byte("x"))
	assert.ErrorIs(t, err, net.ErrClosed)

	_, err = clientConn.Write(EncodeFrame([]byte("over tcp")))
	require.NoError(t, err)

	conn, err := NewConn(ch, LoggerOption(NopLogger()))
	require.NoError(t, err)

	eventually(t, func() bool {
		err := conn.PumpInbound()
		require.ErrorIs(t, err, ErrWouldBlock)
		msgs := conn.DrainInbound()
		if len(msgs) == 0 {
			return false
		}
		assert.Equal(t, [][]byte{[]byte("over tcp")}, msgs)
		return true
	})

	require.NoError(t, conn.SubmitOutbound([]byte("reply")))
	require.NoError(t, conn.PumpOutbound())

	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, PrefixLen+5)
	_, err = io.ReadFull(clientConn, got)
	require.NoError(t, err)
	assert.Equal(t, EncodeFrame([]byte("reply")), got)
}

type notSyscallConn struct{ net.Conn }

func TestDetachConn_NotSyscallConn(t *testing.T) {
	_, err := DetachConn(notSyscallConn{})
	assert.ErrorIs(t, err, ErrNotSyscallConn)
}

func TestConn_RoundTripOverSocketPair(t *testing.T) {
	a, b := newSocketPair(t)
	sender, err := NewConn(a, LoggerOption(NopLogger()))
	require.NoError(t, err)
	receiver, err := NewConn(b, LoggerOption(NopLogger()))
	require.NoError(t, err)

	want := [][]byte{payload(1), payload(DefaultMaxMessageSize), []byte("third"), payload(4000)}

	var got [][]byte
	next := 0
	eventually(t, func() bool {
		if !sender.HasPending() && next < len(want) {
			require.NoError(t, sender.SubmitOutbound(want[next]))
			next++
		}
		if err := sender.PumpOutbound(); err != nil {
			require.ErrorIs(t, err, ErrWouldBlock)
		}

		require.ErrorIs(t, receiver.PumpInbound(), ErrWouldBlock)
		got = append(got, receiver.DrainInbound()...)
		return len(got) == len(want)
	})

	for i := range want {
		assert.True(t, bytes.Equal(want[i], got[i]), "message %d differs", i)
	}
}

func TestConn_PeerCloseMidMessage(t *testing.T) {
	a, b := newSocketPair(t)
	receiver, err := NewConn(b, LoggerOption(NopLogger()))
	require.NoError(t, err)

	wire := EncodeFrame([]byte("half of this is lost"))
	_, err = a.TryWrite(wire[:10])
	require.NoError(t, err)
	require.NoError(t, a.Close())

	eventually(t, func() bool {
		err := receiver.PumpInbound()
		if errors.Is(err, ErrWouldBlock) {
			return false
		}
		require.ErrorIs(t, err, ErrClosed)
		return true
	})
	assert.Empty(t, receiver.DrainInbound())
}
