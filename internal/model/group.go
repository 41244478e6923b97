package model

import "time"

// MerchantGroup is the canonical record of one merchant's appearance window
// on one server.  It is the unit of deduplication: all sightings reported
// for (server, merchant) during one window hang off the same group.
//
// Groups are created lazily on the first valid submission of a window and
// are never deleted; the next window simply produces a new group with a
// later AppearanceStart.  At most one active group exists per
// (server, merchant) at any instant, enforced by a unique key over
// (server, merchant_name, appearance_start).
//
// Fields:
//  ID                – primary key (merchant_groups.id); zero until persisted.
//  Server            – game server the group belongs to.
//  MerchantName      – merchant this group tracks.
//  AppearanceStart   – start of the appearance window (UTC).
//  AppearanceExpires – end of the appearance window (UTC).
//  Sightings         – reported occurrences; order carries no meaning.
type MerchantGroup struct {
    ID                uint64      `json:"-"`
    Server            string      `json:"server"`
    MerchantName      string      `json:"merchant_name"`
    AppearanceStart   time.Time   `json:"appearance_start"`
    AppearanceExpires time.Time   `json:"appearance_expires"`
    Sightings         []*Sighting `json:"sightings"`
}

// IsActive reports whether the group's window covers the given instant.
func (g *MerchantGroup) IsActive(now time.Time) bool {
    return !now.Before(g.AppearanceStart) && now.Before(g.AppearanceExpires)
}

// FindByUploader returns the first non-hidden sighting uploaded by the given
// identity, or nil.  Used for the one-submission-per-window rate limit.
func (g *MerchantGroup) FindByUploader(id Identity) *Sighting {
    for _, s := range g.Sightings {
        if s.Hidden {
            continue
        }
        if s.UploadedBy == id.ClientID || (id.UserID != "" && s.UploadedByUserID == id.UserID) {
            return s
        }
    }
    return nil
}
