// Package netcheck answers "is the network reachable right now?" for the sync
// engine. Answers are computed on demand and never cached.
package netcheck

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Oracle reports current reachability.
type Oracle interface {
	Connected(ctx context.Context) bool
}

// Static always gives the same answer. Used for forced offline/online modes.
type Static bool

func (s Static) Connected(context.Context) bool { return bool(s) }

// Func adapts a plain function.
type Func func(ctx context.Context) bool

func (f Func) Connected(ctx context.Context) bool { return f(ctx) }

// Dialer treats a successful TCP connect to Addr as connectivity.
type Dialer struct {
	Addr    string
	Timeout time.Duration
}

func (d Dialer) Connected(ctx context.Context) bool {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Health treats a nil error from Check as connectivity.
type Health struct {
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

func (h Health) Connected(ctx context.Context) bool {
	if h.Check == nil {
		return false
	}
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	return h.Check(ctx) == nil
}

// DialAddr derives host:port from an endpoint URL, defaulting the port from the scheme.
func DialAddr(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "443"
	if u.Scheme == "http" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
