package framesock

import "github.com/pkg/errors"

// Reassembler rebuilds length-prefixed messages from the bytes of one Channel.
// It is not safe for concurrent use.
type Reassembler struct {
	maxSize int

	prefix    [PrefixLen]byte
	payload   []byte
	inPayload bool
	n         int // bytes accumulated in the current phase

	queue [][]byte
	err   error // sticky terminal error
}

// NewReassembler returns a Reassembler that rejects prefixes above maxSize.
// A non-positive maxSize selects DefaultMaxMessageSize; values a 4-byte
// prefix cannot carry are clamped to 1<<32-1.
func NewReassembler(maxSize int) *Reassembler {
	return &Reassembler{maxSize: frameLimit(maxSize)}
}

// Pump reads from ch until the channel would block or fails, completing as
// many messages as the available bytes allow. It always returns a non-nil
// error: ErrWouldBlock in the normal case, otherwise a terminal status.
//
// After ErrMalformedSize every later call returns ErrMalformedSize.
func (r *Reassembler) Pump(ch Channel) error {
	if r.err != nil {
		return r.err
	}

	for {
		buf := r.need()
		n, err := ch.TryRead(buf)
		if n > len(buf) {
			n = len(buf)
		}
		if n > 0 {
			r.n += n
			if perr := r.advance(); perr != nil {
				r.err = perr
				return perr
			}
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, ErrClosed):
			r.discard()
			return ErrClosed
		default:
			return err
		}
	}
}

// need returns the unfilled part of the current phase buffer.
func (r *Reassembler) need() []byte {
	if r.inPayload {
		return r.payload[r.n:]
	}
	return r.prefix[r.n:]
}

// advance performs the phase transition once the current phase is full.
func (r *Reassembler) advance() error {
	if !r.inPayload {
		if r.n < PrefixLen {
			return nil
		}
		length, err := ParsePrefix(r.prefix, r.maxSize)
		if err != nil {
			r.discard()
			return err
		}
		r.payload = make([]byte, length)
		r.inPayload = true
		r.n = 0
		return nil
	}

	if r.n < len(r.payload) {
		return nil
	}
	r.queue = append(r.queue, r.payload)
	r.payload = nil
	r.inPayload = false
	r.n = 0
	return nil
}

// discard drops the partially reassembled message.
func (r *Reassembler) discard() {
	r.payload = nil
	r.inPayload = false
	r.n = 0
}

// Dump removes and returns every completed message in arrival order.
// The reassembly cursor is not affected.
func (r *Reassembler) Dump() [][]byte {
	msgs := r.queue
	r.queue = nil
	return msgs
}

// Buffered returns the number of completed messages waiting in the queue.
func (r *Reassembler) Buffered() int {
	return len(r.queue)
}

// Reset discards the cursor, the queue and any sticky error.
func (r *Reassembler) Reset() {
	r.discard()
	r.queue = nil
	r.err = nil
}
