// Package hub maintains the server-keyed subscription groups and pushes
// canonical, visibility-filtered merchant state to connected clients.
// Delivery is fire-and-forget: a slow or vanished subscriber never blocks
// the submitting caller's write path.
package hub

import (
    "sync"

    "github.com/lostmerchants/tracker/internal/model"
)

// sendBuffer is how many outbound frames a session may lag behind before
// further pushes to it are dropped.
const sendBuffer = 32

// Session is one connected client: its resolved identity plus a buffered
// outbound queue drained by the connection's writer goroutine.  The
// transport layer owns the websocket itself; the hub only ever touches the
// queue.
type Session struct {
    ID       string
    Identity model.Identity

    send      chan []byte
    closeOnce sync.Once
    done      chan struct{}
}

// NewSession builds a session for a resolved identity.
func NewSession(id string, identity model.Identity) *Session {
    return &Session{
        ID:       id,
        Identity: identity,
        send:     make(chan []byte, sendBuffer),
        done:     make(chan struct{}),
    }
}

// Send queues a frame for delivery.  It never blocks: frames to a closed
// or saturated session are dropped, which is acceptable because clients
// reconcile via queryActiveGroups on reconnect.
func (s *Session) Send(frame []byte) bool {
    select {
    case <-s.done:
        return false
    default:
    }
    select {
    case s.send <- frame:
        return true
    default:
        return false
    }
}

// Outbox is drained by the connection's writer goroutine.
func (s *Session) Outbox() <-chan []byte { return s.send }

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close marks the session dead.  Idempotent.
func (s *Session) Close() {
    s.closeOnce.Do(func() { close(s.done) })
}
