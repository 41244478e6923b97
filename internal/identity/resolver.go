// Package identity derives the weak submitter fingerprint from an incoming
// connection.  Which strategy applies is a deployment decision made in
// configuration, not a compile-time branch: production deployments sit
// behind a proxy that sets X-Real-IP, while local development uses the
// per-connection id so one machine can simulate many clients.
package identity

import (
    "net"
    "net/http"
    "strings"
)

// Resolver derives a weak client fingerprint from the request that opened
// the connection and the transport-assigned connection id.
type Resolver interface {
    ClientID(r *http.Request, connectionID string) string
}

// NewResolver returns the resolver for the configured mode.  Known modes
// are "real_ip" (default) and "connection".
func NewResolver(mode string) Resolver {
    if strings.EqualFold(mode, "connection") {
        return ConnectionResolver{}
    }
    return RealIPResolver{}
}

// RealIPResolver trusts the X-Real-IP header added by the fronting proxy
// and falls back to the remote address for direct connections.  Without a
// proxy stripping inbound X-Real-IP headers this value is spoofable, which
// is why it only ever serves as a weak identity.
type RealIPResolver struct{}

func (RealIPResolver) ClientID(r *http.Request, _ string) string {
    if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
        return ip
    }
    host, _, err := net.SplitHostPort(r.RemoteAddr)
    if err != nil {
        return r.RemoteAddr
    }
    return host
}

// ConnectionResolver uses the transport connection id as the fingerprint,
// letting a single development machine act as multiple distinct clients.
type ConnectionResolver struct{}

func (ConnectionResolver) ClientID(_ *http.Request, connectionID string) string {
    return connectionID
}
