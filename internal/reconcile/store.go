// Package reconcile implements the sighting consensus core: merging raw,
// possibly-duplicate, possibly-malicious submissions into one canonical
// merchant group per appearance window, applying per-identity limits, ban
// routing, voting and hidden-item visibility.
//
// The package owns the semantics only; persistence is abstracted behind the
// Store/Tx pair so the core can be exercised against in-memory fakes while
// production runs on the SQL implementation in internal/repository.
package reconcile

import (
    "context"
    "errors"
    "time"

    "github.com/lostmerchants/tracker/internal/model"
)

// ErrDuplicate is returned by Tx write methods when a storage uniqueness
// constraint rejects the row: another transaction already inserted an
// equivalent record.  The core treats it as "someone else won the race"
// and recovers locally; it is never surfaced to callers.
var ErrDuplicate = errors.New("duplicate record")

// Store provides atomic access to the persisted group/sighting/vote/ban
// records.  Every read-then-write sequence in the core runs inside a single
// WithinTx call so concurrent submissions cannot both pass a uniqueness
// check and both insert.
type Store interface {
    // WithinTx runs fn inside one storage transaction, committing when fn
    // returns nil and rolling back otherwise.
    WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view the core operates on.  All timestamps are
// UTC.  Methods returning records include their owned children (a group's
// sightings, a sighting's votes).
type Tx interface {
    // FindActiveGroup returns the group for (server, merchant) whose window
    // covers now, with sightings and votes loaded, or nil when none exists.
    FindActiveGroup(ctx context.Context, server, merchant string, now time.Time) (*model.MerchantGroup, error)

    // CreateGroup persists a newly computed group and fills in its ID.
    // Returns ErrDuplicate when a concurrent submission created the same
    // window first.
    CreateGroup(ctx context.Context, g *model.MerchantGroup) error

    // InsertSighting persists a sighting under the given group.  Returns
    // ErrDuplicate when the group already holds an equal payload (unique
    // index over the normalized payload hash).
    InsertSighting(ctx context.Context, groupID uint64, s *model.Sighting) error

    // UnhideSighting clears the hidden flag on a stored sighting.
    UnhideSighting(ctx context.Context, sightingID string) error

    // HasOtherServerUpload reports whether the identity uploaded a sighting
    // to any currently active group on a different server.
    HasOtherServerUpload(ctx context.Context, server string, id model.Identity, now time.Time) (bool, error)

    // HasActiveBan reports whether the identity is banned at now.  An
    // account-level ban takes precedence when a user record exists for a
    // strong identity; otherwise the weak fingerprint ban list applies.
    HasActiveBan(ctx context.Context, id model.Identity, now time.Time) (bool, error)

    // FindVote returns the identity's vote on a sighting, preferring a
    // strong-identity match, or nil when none exists.
    FindVote(ctx context.Context, sightingID string, id model.Identity) (*model.Vote, error)

    // InsertVote persists a new vote.  Returns ErrDuplicate when the
    // identity already voted on the sighting.
    InsertVote(ctx context.Context, v *model.Vote) error

    // UpdateVoteDirection flips an existing vote's direction in place.
    UpdateVoteDirection(ctx context.Context, voteID uint64, d model.VoteDirection) error

    // MarkVoteProcessing sets the sighting's requires_vote_processing flag
    // with a keyed update that does not load the sighting graph.
    MarkVoteProcessing(ctx context.Context, sightingID string) error
}

// Catalog answers the validity questions the core needs.  Implemented by
// internal/catalog; narrowed here so tests can substitute fixtures.
type Catalog interface {
    IsValidServer(server string) bool
    Validate(merchant string, s *model.Sighting) bool
    ActiveWindow(merchant string, now time.Time) (start, expires time.Time, ok bool)
}
