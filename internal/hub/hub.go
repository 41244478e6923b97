package hub

import (
    "log"
    "sync"

    "github.com/lostmerchants/tracker/internal/model"
    "github.com/lostmerchants/tracker/internal/reconcile"
)

// Hub routes group updates to the sessions subscribed to each server.
// Subscription is per server name, validated against the catalog; a
// session may subscribe to several servers at once.
type Hub struct {
    mu          sync.Mutex
    validServer func(string) bool
    subscribers map[string]map[*Session]struct{}
    // memberships tracks which servers each session joined so Detach can
    // clean up without scanning every group.
    memberships map[*Session]map[string]struct{}
}

// New builds a Hub.  validServer decides whether a subscribe call names a
// known server; invalid names are silently ignored.
func New(validServer func(string) bool) *Hub {
    return &Hub{
        validServer: validServer,
        subscribers: make(map[string]map[*Session]struct{}),
        memberships: make(map[*Session]map[string]struct{}),
    }
}

// Subscribe adds the session to a server's broadcast group.  Unknown
// server names are a no-op, mirroring the silent treatment of all
// malformed requests.
func (h *Hub) Subscribe(s *Session, server string) {
    if s == nil || !h.validServer(server) {
        return
    }
    h.mu.Lock()
    defer h.mu.Unlock()
    if h.subscribers[server] == nil {
        h.subscribers[server] = make(map[*Session]struct{})
    }
    h.subscribers[server][s] = struct{}{}
    if h.memberships[s] == nil {
        h.memberships[s] = make(map[string]struct{})
    }
    h.memberships[s][server] = struct{}{}
}

// Unsubscribe removes the session from a server's broadcast group.
// Idempotent; unknown servers and non-members are no-ops.
func (h *Hub) Unsubscribe(s *Session, server string) {
    h.mu.Lock()
    defer h.mu.Unlock()
    h.removeLocked(s, server)
}

// Detach removes the session from every group and closes it.  Called by
// the transport when the connection goes away.
func (h *Hub) Detach(s *Session) {
    h.mu.Lock()
    for server := range h.memberships[s] {
        h.removeLocked(s, server)
    }
    delete(h.memberships, s)
    h.mu.Unlock()
    s.Close()
}

func (h *Hub) removeLocked(s *Session, server string) {
    if set, ok := h.subscribers[server]; ok {
        delete(set, s)
        if len(set) == 0 {
            delete(h.subscribers, server)
        }
    }
    if m, ok := h.memberships[s]; ok {
        delete(m, server)
    }
}

// Subscribers returns a snapshot of the sessions subscribed to server.
func (h *Hub) Subscribers(server string) []*Session {
    h.mu.Lock()
    defer h.mu.Unlock()
    out := make([]*Session, 0, len(h.subscribers[server]))
    for s := range h.subscribers[server] {
        out = append(out, s)
    }
    return out
}

// Publish pushes a group's state to every subscriber of its server, each
// seeing their own visibility projection.  The projection and its JSON
// encoding are computed once per distinct identity, not once per
// subscriber; when the group holds no hidden sightings everyone shares a
// single public frame.
func (h *Hub) Publish(server string, g *model.MerchantGroup) {
    sessions := h.Subscribers(server)
    if len(sessions) == 0 {
        return
    }

    if !reconcile.HasHidden(g) {
        frame, err := EncodeGroupUpdate(server, g)
        if err != nil {
            log.Printf("hub: encode group update for %s/%s: %v", server, g.MerchantName, err)
            return
        }
        for _, s := range sessions {
            s.Send(frame)
        }
        return
    }

    frames := make(map[model.Identity][]byte, len(sessions))
    for _, s := range sessions {
        frame, ok := frames[s.Identity]
        if !ok {
            var err error
            frame, err = EncodeGroupUpdate(server, reconcile.Project(g, s.Identity))
            if err != nil {
                log.Printf("hub: encode group update for %s/%s: %v", server, g.MerchantName, err)
                return
            }
            frames[s.Identity] = frame
        }
        s.Send(frame)
    }
}

// NotifySession delivers a group's state to a single session with that
// session's projection applied.  Used for hidden inserts, where only the
// submitter may learn the outcome.
func (h *Hub) NotifySession(s *Session, server string, g *model.MerchantGroup) {
    frame, err := EncodeGroupUpdate(server, reconcile.Project(g, s.Identity))
    if err != nil {
        log.Printf("hub: encode group update for %s/%s: %v", server, g.MerchantName, err)
        return
    }
    s.Send(frame)
}
