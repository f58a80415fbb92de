// Package netcheck probes remote reachability before attempting
// network git operations, so an offline session can degrade gracefully
// instead of waiting out ssh timeouts.
package netcheck

import (
	"context"
	"net"
	"time"
)

// DefaultHost is probed when the remote host cannot be determined.
const DefaultHost = "github.com"

// Checker reports whether a host is reachable.
type Checker interface {
	Reachable(ctx context.Context, host string) bool
}

// TCPChecker dials the host on port 443 with a short timeout.
type TCPChecker struct {
	// Timeout bounds the probe. Defaults to 5 seconds.
	Timeout time.Duration
}

// Reachable returns true if a TCP connection to host:443 succeeds.
func (c TCPChecker) Reachable(ctx context.Context, host string) bool {
	if host == "" {
		host = DefaultHost
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
