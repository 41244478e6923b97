package identity

import (
    "net/http/httptest"
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestRealIPResolver(t *testing.T) {
    r := httptest.NewRequest("GET", "/v1/ws", nil)
    r.RemoteAddr = "10.0.0.7:51234"

    res := NewResolver("real_ip")
    assert.Equal(t, "10.0.0.7", res.ClientID(r, "conn-1"))

    r.Header.Set("X-Real-IP", "203.0.113.9")
    assert.Equal(t, "203.0.113.9", res.ClientID(r, "conn-1"))
}

func TestConnectionResolver(t *testing.T) {
    r := httptest.NewRequest("GET", "/v1/ws", nil)
    r.Header.Set("X-Real-IP", "203.0.113.9")

    res := NewResolver("connection")
    assert.Equal(t, "conn-1", res.ClientID(r, "conn-1"))
}

func TestNewResolverDefaultsToRealIP(t *testing.T) {
    assert.IsType(t, RealIPResolver{}, NewResolver(""))
    assert.IsType(t, RealIPResolver{}, NewResolver("anything-else"))
    assert.IsType(t, ConnectionResolver{}, NewResolver("CONNECTION"))
}
