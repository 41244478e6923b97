package model

// VoteDirection is the direction of a vote on a sighting.
type VoteDirection int

const (
    // Downvote marks a sighting as wrong or stale.
    Downvote VoteDirection = -1
    // Upvote confirms a sighting.
    Upvote VoteDirection = 1
)

// Valid reports whether the direction is one of the two known values.
func (d VoteDirection) Valid() bool { return d == Upvote || d == Downvote }

// Vote is one identity's opinion on one sighting.  At most one vote exists
// per (sighting, identity); a later vote from the same identity overwrites
// the direction in place.
//
// Fields:
//  ID         – primary key (votes.id); zero until persisted.
//  SightingID – sighting being voted on (votes.active_merchant_id).
//  ClientID   – weak fingerprint of the voter.
//  UserID     – strong account id of the voter, if any.
//  Direction  – up or down.
type Vote struct {
    ID         uint64        `json:"-"`
    SightingID string        `json:"sighting_id"`
    ClientID   string        `json:"-"`
    UserID     string        `json:"-"`
    Direction  VoteDirection `json:"direction"`
}
