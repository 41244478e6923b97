package hub

import (
    "encoding/json"

    "github.com/lostmerchants/tracker/internal/model"
)

// Server-to-client message types.
const (
    TypeMerchantGroupUpdate = "merchantGroupUpdate"
    TypeVoteAck             = "voteAck"
    TypeActiveGroups        = "activeGroups"
    TypeOwnVotes            = "ownVotes"
    TypeVersionInfo         = "versionInfo"
    TypePushSubscription    = "pushSubscription"
    TypeProfileStats        = "profileStats"
)

// GroupUpdate is the broadcast payload carrying one group's current state.
type GroupUpdate struct {
    Type   string               `json:"type"`
    Server string               `json:"server"`
    Group  *model.MerchantGroup `json:"group"`
}

// EncodeGroupUpdate marshals a group update frame.
func EncodeGroupUpdate(server string, g *model.MerchantGroup) ([]byte, error) {
    return json.Marshal(GroupUpdate{Type: TypeMerchantGroupUpdate, Server: server, Group: g})
}

// VoteAck confirms a persisted vote back to the voter only.
type VoteAck struct {
    Type       string              `json:"type"`
    SightingID string              `json:"sighting_id"`
    Direction  model.VoteDirection `json:"direction"`
}

// ActiveGroups answers queryActiveGroups with the viewer's projection of
// every group currently inside an appearance window on one server.
type ActiveGroups struct {
    Type   string                 `json:"type"`
    Server string                 `json:"server"`
    Groups []*model.MerchantGroup `json:"groups"`
}

// OwnVotes answers queryOwnVotes with the caller's votes on active
// sightings.
type OwnVotes struct {
    Type   string       `json:"type"`
    Server string       `json:"server"`
    Votes  []model.Vote `json:"votes"`
}

// VersionInfo answers checkClientVersion.
type VersionInfo struct {
    Type          string `json:"type"`
    LatestVersion int    `json:"latest_version"`
    HasNewer      bool   `json:"has_newer_client"`
}

// PushSubscriptionInfo answers getPushSubscription; Subscription is nil
// when no record exists for the token.
type PushSubscriptionInfo struct {
    Type         string                  `json:"type"`
    Subscription *model.PushSubscription `json:"subscription"`
}

// ProfileStats answers profileStats for a strong identity.
type ProfileStats struct {
    Type             string `json:"type"`
    PrimaryServer    string `json:"primary_server"`
    TotalUpvotes     int    `json:"total_upvotes"`
    TotalSubmissions int    `json:"total_submissions"`
}
