package streamrt

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// TuneSocket applies low-level socket options to a freshly-accepted or
// freshly-dialed TCP connection: a large receive buffer (the detector can
// burst well above the default OS buffer) and TCP_NODELAY (frame headers
// are small and latency-sensitive). Non-TCP connections (e.g. a net.Pipe
// used in tests) are left untouched.
func TuneSocket(conn net.Conn, recvBuf int) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("streamrt: SyscallConn: %w", err)
	}

	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBuf); err != nil {
			sockErr = fmt.Errorf("SO_RCVBUF: %w", err)
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			sockErr = fmt.Errorf("TCP_NODELAY: %w", err)
			return
		}
	})
	if ctrlErr != nil {
		return fmt.Errorf("streamrt: Control: %w", ctrlErr)
	}
	return sockErr
}
