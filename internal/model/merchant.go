package model

import (
    "crypto/sha256"
    "encoding/hex"
    "sort"
    "strconv"
    "strings"
    "time"
)

// Card is one item or reward observed in a merchant's stock.  Rarity is an
// ordinal (0 = common upward); the catalog defines which cards a given
// merchant may carry.
type Card struct {
    Name   string `json:"name"`   // active_merchant card name
    Rarity int    `json:"rarity"` // card rarity ordinal
}

// Sighting is one reported occurrence of a merchant inside a group.  It is
// owned by exactly one MerchantGroup and uniquely identified by a UUID so
// that votes can reference it without knowing the group.
//
// Fields:
//  ID                     – primary key (UUID string, active_merchants.id).
//  Zone                   – zone the merchant was spotted in.
//  Cards                  – items on offer; order carries no meaning.
//  UploadedBy             – weak fingerprint of the submitter.
//  UploadedByUserID       – strong account id of the submitter, if any.
//  Hidden                 – true when the submission came from a banned
//                           identity; hidden sightings are visible only to
//                           their own uploader.
//  Votes                  – cached vote tally, recomputed asynchronously by
//                           the background processor.  Never updated here.
//  RequiresProcessing     – dirty flag: the background processor must pick
//                           this record up (rare-card notifications etc.).
//  RequiresVoteProcessing – dirty flag: the vote tally needs recomputation.
//  ClientVotes            – votes cast on this sighting.
//  CreatedAt              – insertion timestamp.
type Sighting struct {
    ID                     string    `json:"id"`
    Zone                   string    `json:"zone"`
    Cards                  []Card    `json:"cards"`
    UploadedBy             string    `json:"-"`
    UploadedByUserID       string    `json:"-"`
    Hidden                 bool      `json:"hidden"`
    Votes                  int       `json:"votes"`
    RequiresProcessing     bool      `json:"-"`
    RequiresVoteProcessing bool      `json:"-"`
    ClientVotes            []Vote    `json:"-"`
    CreatedAt              time.Time `json:"-"`
}

// Uploader returns the submitter identity of the sighting.
func (s *Sighting) Uploader() Identity {
    return Identity{ClientID: s.UploadedBy, UserID: s.UploadedByUserID}
}

// IsEqualTo reports whether two sightings describe the same real-world
// event: same zone and the same multiset of cards, ignoring card order and
// ignoring who uploaded them.  Two equal sightings must never coexist in a
// group; the later submitter's action becomes a vote on the earlier one.
func (s *Sighting) IsEqualTo(other *Sighting) bool {
    if s.Zone != other.Zone || len(s.Cards) != len(other.Cards) {
        return false
    }
    return cardKey(s.Cards) == cardKey(other.Cards)
}

// PayloadHash returns a deterministic digest of the normalized payload
// (zone plus sorted card set).  The store keeps a unique index over
// (group, payload hash) so that two concurrent submissions of the same
// payload collide at write time and the loser can be retried as a vote.
func (s *Sighting) PayloadHash() string {
    sum := sha256.Sum256([]byte(s.Zone + "\x00" + cardKey(s.Cards)))
    return hex.EncodeToString(sum[:])
}

// cardKey builds an order-independent canonical string for a card set.
func cardKey(cards []Card) string {
    parts := make([]string, 0, len(cards))
    for _, c := range cards {
        parts = append(parts, c.Name+"#"+strconv.Itoa(c.Rarity))
    }
    sort.Strings(parts)
    return strings.Join(parts, "|")
}
