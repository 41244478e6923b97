package model

import "time"

// Ban blocks a weak identity (network fingerprint) from contributing
// visible sightings.  A ban is active iff ExpiresAt is strictly in the
// future; submissions from banned identities are still stored but hidden
// from everyone except the uploader.
//
// Account-level bans are not stored here: they live on the user record
// (users.ban_expires) and take precedence when the submitter is
// authenticated.
type Ban struct {
    ID        uint64    // bans.id
    ClientID  string    // bans.client_id
    ExpiresAt time.Time // bans.expires_at (UTC)
}

// Active reports whether the ban is in force at the given instant.
func (b Ban) Active(now time.Time) bool { return b.ExpiresAt.After(now) }
