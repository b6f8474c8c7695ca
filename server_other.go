//go:build windows

package ignis

import "net"

// reusePortListenConfig has no SO_REUSEPORT equivalent wired on Windows;
// the reactor pool falls back to one shared listener fanned out to N
// accept goroutines instead of N independent listeners.
func reusePortListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}

func canReusePort() bool { return false }
