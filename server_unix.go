//go:build !windows

package ignis

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortListenConfig returns a net.ListenConfig that sets SO_REUSEPORT
// on the listening socket before bind, so that each reactor in the pool
// can own its own listener on the same address and let the kernel
// distribute incoming connections across them, the way a multi-reactor
// server on Unix typically shares a port without a single accept
// bottleneck.
func reusePortListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}

func canReusePort() bool { return true }
