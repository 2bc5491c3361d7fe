package framesock

import "encoding/binary"

const (
	// PrefixLen is the size of the big-endian length prefix on the wire.
	PrefixLen = 4
	// DefaultMaxMessageSize bounds the payload of a single message. The prefix
	// is not counted.
	DefaultMaxMessageSize = 8192

	// maxPrefixValue is the largest payload length a 4-byte prefix can carry.
	maxPrefixValue = 1<<32 - 1
)

// frameLimit normalizes a maximum message size: non-positive selects the
// default, anything above maxPrefixValue is clamped to it.
func frameLimit(maxSize int) int {
	if maxSize <= 0 {
		return DefaultMaxMessageSize
	}
	if uint64(maxSize) > maxPrefixValue {
		limit := uint64(maxPrefixValue)
		return int(limit)
	}
	return maxSize
}

// AppendFrame appends the wire form of payload, [length BE32][payload], to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// EncodeFrame returns the wire form of payload in a new slice.
func EncodeFrame(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, PrefixLen+len(payload)), payload)
}

// ParsePrefix decodes a length prefix and validates it against maxSize.
func ParsePrefix(b [PrefixLen]byte, maxSize int) (int, error) {
	n := binary.BigEndian.Uint32(b[:])
	if n == 0 || uint64(n) > uint64(maxSize) {
		return 0, ErrMalformedSize
	}
	return int(n), nil
}
