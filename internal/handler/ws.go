// Package handler contains the HTTP surface: the health probe and the
// websocket endpoint every client operation flows through.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lostmerchants/tracker/internal/catalog"
	"github.com/lostmerchants/tracker/internal/hub"
	"github.com/lostmerchants/tracker/internal/identity"
	"github.com/lostmerchants/tracker/internal/middleware"
	"github.com/lostmerchants/tracker/internal/model"
	"github.com/lostmerchants/tracker/internal/reconcile"
	"github.com/lostmerchants/tracker/internal/repository"
)

const (
	writeDeadline = 5 * time.Second
	readDeadline  = 120 * time.Minute
)

// WS owns the websocket endpoint. Each accepted connection becomes a hub
// session with a resolved identity; the reader loop dispatches client ops
// and a writer goroutine drains the session's outbound queue.
type WS struct {
	reconciler    *reconcile.Reconciler
	ledger        *reconcile.VoteLedger
	catalog       *catalog.Catalog
	hub           *hub.Hub
	store         *repository.Store
	push          *repository.PushRepo
	resolver      identity.Resolver
	clientVersion int

	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewWS wires the websocket handler. clientVersion of 0 disables the
// newer-client check.
func NewWS(rec *reconcile.Reconciler, ledger *reconcile.VoteLedger, cat *catalog.Catalog, h *hub.Hub, store *repository.Store, push *repository.PushRepo, resolver identity.Resolver, clientVersion int) *WS {
	return &WS{
		reconciler:    rec,
		ledger:        ledger,
		catalog:       cat,
		hub:           h,
		store:         store,
		push:          push,
		resolver:      resolver,
		clientVersion: clientVersion,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Serve upgrades the request and runs the connection until the client goes
// away. The weak identity is resolved before the upgrade from the request
// (or from the freshly minted connection id in debug mode); the strong
// identity, if any, was placed in context by the auth middleware.
func (ws *WS) Serve(c echo.Context) error {
	connID := uuid.NewString()
	id := model.Identity{
		ClientID: ws.resolver.ClientID(c.Request(), connID),
		UserID:   middleware.CurrentUserID(c),
	}

	conn, err := ws.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := hub.NewSession(connID, id)
	defer ws.hub.Detach(sess)

	// Writes that reach the database must survive the client vanishing
	// mid-operation: a commit followed by a dropped connection is still a
	// commit, and the broadcast to everyone else still happens.
	opCtx := context.WithoutCancel(c.Request().Context())

	// Writer goroutine.
	go func() {
		for {
			select {
			case <-sess.Done():
				return
			case frame := <-sess.Outbox():
				_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					sess.Close()
					return
				}
			}
		}
	}()

	// Reader loop. Malformed frames and unknown ops are dropped without a
	// reply; abusive peers learn nothing about why their input vanished.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		ws.dispatch(opCtx, sess, msg)
	}
}
