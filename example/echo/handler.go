package main

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/Zereker/framesock"
)

// echoHandler sends every message back to its sender. Replies that cannot be
// submitted yet because the previous one is still in flight wait in a
// per-connection backlog.
type echoHandler struct {
	logger framesock.Logger

	mu      sync.Mutex
	backlog map[uint64][][]byte
}

func newEchoHandler(logger framesock.Logger) *echoHandler {
	return &echoHandler{logger: logger, backlog: make(map[uint64][][]byte)}
}

func (h *echoHandler) Serve(c *framesock.Conn, msgs [][]byte) error {
	h.mu.Lock()
	queue := append(h.backlog[c.ID()], msgs...)
	h.mu.Unlock()

	for len(queue) > 0 {
		err := c.SubmitOutbound(queue[0])
		if errors.Is(err, framesock.ErrBusy) {
			if err = c.PumpOutbound(); err == nil {
				continue
			}
			if errors.Is(err, framesock.ErrWouldBlock) {
				break
			}
			return err
		}
		if err != nil {
			return err
		}
		queue = queue[1:]
	}

	h.mu.Lock()
	if len(queue) == 0 {
		delete(h.backlog, c.ID())
	} else {
		h.backlog[c.ID()] = queue
	}
	h.mu.Unlock()
	return nil
}

func (h *echoHandler) Closed(c *framesock.Conn, err error) {
	h.mu.Lock()
	dropped := len(h.backlog[c.ID()])
	delete(h.backlog, c.ID())
	h.mu.Unlock()

	if dropped > 0 {
		h.logger.Debug("dropped unsent replies", "conn_id", c.ID(), "count", dropped)
	}
}

// pending returns the number of replies waiting for c.
func (h *echoHandler) pending(id uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.backlog[id])
}
