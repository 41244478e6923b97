package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/lostmerchants/tracker/internal/hub"
	"github.com/lostmerchants/tracker/internal/model"
	"github.com/lostmerchants/tracker/internal/queue"
	"github.com/lostmerchants/tracker/internal/reconcile"
	"github.com/lostmerchants/tracker/internal/repository"
)

// Client operation names.
const (
	opSubmitSighting    = "submitSighting"
	opVote              = "vote"
	opSubscribe         = "subscribe"
	opUnsubscribe       = "unsubscribe"
	opQueryActiveGroups = "queryActiveGroups"
	opQueryOwnVotes     = "queryOwnVotes"
	opCheckVersion      = "checkClientVersion"
	opGetPushSub        = "getPushSubscription"
	opSetPushSub        = "setPushSubscription"
	opClearPushSub      = "clearPushSubscription"
	opProfileStats      = "profileStats"
)

// clientMessage is the single inbound envelope; which fields matter depends
// on op. Unknown fields are ignored so older clients keep working.
type clientMessage struct {
	Op           string                  `json:"op"`
	Server       string                  `json:"server"`
	Merchant     string                  `json:"merchant"`
	Sighting     *model.Sighting         `json:"sighting"`
	SightingID   string                  `json:"sighting_id"`
	Direction    model.VoteDirection     `json:"direction"`
	Version      int                     `json:"version"`
	Token        string                  `json:"token"`
	Subscription *model.PushSubscription `json:"subscription"`
}

// dispatch decodes one inbound frame and runs the matching operation.
// Everything here is silent on failure: rejected submissions, unknown ops,
// and store errors produce at most a log line, matching the policy that
// callers learn nothing from dropped input.
func (ws *WS) dispatch(ctx context.Context, sess *hub.Session, msg []byte) {
	var m clientMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return
	}

	switch m.Op {
	case opSubmitSighting:
		ws.submitSighting(ctx, sess, m)
	case opVote:
		ws.vote(ctx, sess, m)
	case opSubscribe:
		ws.hub.Subscribe(sess, m.Server)
	case opUnsubscribe:
		ws.hub.Unsubscribe(sess, m.Server)
	case opQueryActiveGroups:
		ws.queryActiveGroups(ctx, sess, m)
	case opQueryOwnVotes:
		ws.queryOwnVotes(ctx, sess, m)
	case opCheckVersion:
		ws.checkClientVersion(sess, m)
	case opGetPushSub:
		ws.getPushSubscription(ctx, sess, m)
	case opSetPushSub:
		ws.setPushSubscription(ctx, m)
	case opClearPushSub:
		ws.clearPushSubscription(ctx, m)
	case opProfileStats:
		ws.profileStats(ctx, sess)
	}
}

// submitSighting runs a candidate through the reconciler and routes the
// resulting notification. Only authenticated clients may submit; anonymous
// frames are dropped.
func (ws *WS) submitSighting(ctx context.Context, sess *hub.Session, m clientMessage) {
	if !sess.Identity.HasUser() || m.Sighting == nil {
		return
	}
	res, err := ws.reconciler.Submit(ctx, m.Server, m.Merchant, m.Sighting, sess.Identity)
	if err != nil {
		log.Printf("ws: submit %s/%s from %s: %v", m.Server, m.Merchant, sess.Identity.ClientID, err)
		return
	}

	if res.Group != nil {
		if res.Broadcast {
			ws.hub.Publish(m.Server, res.Group)
		} else {
			ws.hub.NotifySession(sess, m.Server, res.Group)
		}
	}
	ws.enqueueProcessing(ctx, res, m.Server, m.Merchant)
}

// vote applies an explicit vote and acknowledges it to the voter only.
func (ws *WS) vote(ctx context.Context, sess *hub.Session, m clientMessage) {
	res, err := ws.ledger.Apply(ctx, m.SightingID, sess.Identity, m.Direction)
	if err != nil {
		log.Printf("ws: vote on %s from %s: %v", m.SightingID, sess.Identity.ClientID, err)
		return
	}
	if !res.Applied {
		return
	}
	ws.send(sess, hub.VoteAck{Type: hub.TypeVoteAck, SightingID: m.SightingID, Direction: res.Direction})
	ws.publishEvent(ctx, queue.ProcessEvent{
		SightingID: m.SightingID,
		Server:     m.Server,
		Kind:       queue.KindVote,
	})
}

// queryActiveGroups returns every group currently in a window on a server,
// projected for the caller so their own hidden sightings stay visible.
func (ws *WS) queryActiveGroups(ctx context.Context, sess *hub.Session, m clientMessage) {
	if !ws.catalog.IsValidServer(m.Server) {
		return
	}
	groups, err := ws.store.Groups().ListActive(ctx, m.Server, ws.now())
	if err != nil {
		log.Printf("ws: list active groups for %s: %v", m.Server, err)
		return
	}
	out := make([]*model.MerchantGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, reconcile.Project(g, sess.Identity))
	}
	ws.send(sess, hub.ActiveGroups{Type: hub.TypeActiveGroups, Server: m.Server, Groups: out})
}

// queryOwnVotes returns the caller's votes on sightings in active groups so
// a reconnecting client can restore its vote buttons.
func (ws *WS) queryOwnVotes(ctx context.Context, sess *hub.Session, m clientMessage) {
	if !ws.catalog.IsValidServer(m.Server) {
		return
	}
	votes, err := ws.store.Votes().ListByVoter(ctx, m.Server, sess.Identity, ws.now())
	if err != nil {
		log.Printf("ws: list own votes for %s: %v", m.Server, err)
		return
	}
	ws.send(sess, hub.OwnVotes{Type: hub.TypeOwnVotes, Server: m.Server, Votes: votes})
}

// checkClientVersion tells the client whether a newer release exists. With
// no configured version the answer is always no.
func (ws *WS) checkClientVersion(sess *hub.Session, m clientMessage) {
	ws.send(sess, hub.VersionInfo{
		Type:          hub.TypeVersionInfo,
		LatestVersion: ws.clientVersion,
		HasNewer:      ws.clientVersion > 0 && m.Version < ws.clientVersion,
	})
}

func (ws *WS) getPushSubscription(ctx context.Context, sess *hub.Session, m clientMessage) {
	if m.Token == "" {
		return
	}
	sub, err := ws.push.Get(ctx, m.Token)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Printf("ws: get push subscription: %v", err)
		return
	}
	ws.send(sess, hub.PushSubscriptionInfo{Type: hub.TypePushSubscription, Subscription: sub})
}

func (ws *WS) setPushSubscription(ctx context.Context, m clientMessage) {
	if m.Subscription == nil || m.Subscription.Token == "" {
		return
	}
	if !ws.catalog.IsValidServer(m.Subscription.Server) {
		return
	}
	if err := ws.push.Upsert(ctx, m.Subscription); err != nil {
		log.Printf("ws: set push subscription: %v", err)
	}
}

func (ws *WS) clearPushSubscription(ctx context.Context, m clientMessage) {
	if m.Token == "" {
		return
	}
	if err := ws.push.Clear(ctx, m.Token); err != nil {
		log.Printf("ws: clear push subscription: %v", err)
	}
}

// profileStats aggregates the authenticated caller's submission standing.
func (ws *WS) profileStats(ctx context.Context, sess *hub.Session) {
	if !sess.Identity.HasUser() {
		return
	}
	stats, err := ws.store.Groups().GetProfileStats(ctx, sess.Identity.UserID)
	if err != nil {
		log.Printf("ws: profile stats for %s: %v", sess.Identity.UserID, err)
		return
	}
	ws.send(sess, hub.ProfileStats{
		Type:             hub.TypeProfileStats,
		PrimaryServer:    stats.PrimaryServer,
		TotalUpvotes:     stats.TotalUpvotes,
		TotalSubmissions: stats.TotalSubmissions,
	})
}

// enqueueProcessing publishes outbox work items for whichever dirty flags a
// submission set. The flags are already committed, so publish failures are
// logged inside the publisher and ignored here.
func (ws *WS) enqueueProcessing(ctx context.Context, res reconcile.Result, server, merchant string) {
	ev := queue.ProcessEvent{
		SightingID:   res.SightingID,
		Server:       server,
		MerchantName: merchant,
		EmittedAt:    ws.now().Format(time.RFC3339),
	}
	if res.DirtyProcessing {
		ev.Kind = queue.KindSighting
		ws.publishEvent(ctx, ev)
	}
	if res.DirtyVote {
		ev.Kind = queue.KindVote
		ws.publishEvent(ctx, ev)
	}
}

func (ws *WS) publishEvent(ctx context.Context, ev queue.ProcessEvent) {
	_ = queue.PublishProcessEvent(ctx, ev)
}

// send marshals a reply frame onto the session's outbound queue.
func (ws *WS) send(sess *hub.Session, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: encode reply: %v", err)
		return
	}
	sess.Send(frame)
}
