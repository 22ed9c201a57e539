//go:build !linux

package session

import (
	"net"
	"time"
)

// setAggressiveKeepalive falls back to the portable net.TCPConn
// SetKeepAlivePeriod on non-Linux platforms, which cannot express idle
// and interval independently the way Linux's TCP_KEEPIDLE/TCP_KEEPINTVL
// socket options can.
func setAggressiveKeepalive(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return err
	}
	return tc.SetKeepAlivePeriod(5 * time.Second)
}
