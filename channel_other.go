//go:build !unix

package framesock

import "net"

// DetachConn is only available on unix platforms; elsewhere it always
// returns ErrNotSyscallConn.
func DetachConn(conn net.Conn) (Channel, error) {
	return nil, ErrNotSyscallConn
}
