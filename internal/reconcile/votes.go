package reconcile

import (
    "context"
    "errors"

    "github.com/lostmerchants/tracker/internal/model"
)

// VoteLedger applies idempotent per-identity votes to sightings.  Tally
// recomputation is not done here: the ledger only flips the dirty flag that
// the background vote processor sweeps.
type VoteLedger struct {
    store Store
}

// NewVoteLedger builds a VoteLedger over the given store.
func NewVoteLedger(store Store) *VoteLedger {
    return &VoteLedger{store: store}
}

// VoteResult reports what a vote call did.  Applied is false when the vote
// was a no-op (same direction already recorded, or invalid direction), in
// which case nothing was persisted and the caller should stay silent.
type VoteResult struct {
    Applied   bool
    Direction model.VoteDirection
}

// Apply records voter's vote on a sighting.  A first vote creates the
// record, a direction change updates it in place, and a repeat of the same
// direction does nothing.  Every write that changes vote state also sets
// the sighting's requires_vote_processing flag in the same transaction.
func (l *VoteLedger) Apply(ctx context.Context, sightingID string, voter model.Identity, dir model.VoteDirection) (VoteResult, error) {
    if sightingID == "" || !dir.Valid() {
        return VoteResult{}, nil
    }
    var changed bool
    err := l.store.WithinTx(ctx, func(tx Tx) error {
        s := &model.Sighting{ID: sightingID}
        var err error
        changed, err = applyVote(ctx, tx, s, voter, dir)
        return err
    })
    if err != nil {
        return VoteResult{}, err
    }
    return VoteResult{Applied: changed, Direction: dir}, nil
}

// applyVote is the shared write path for explicit votes and the implicit
// upvotes produced by duplicate-payload merges.  It prefers a strong
// identity match when looking up prior votes and falls back to the weak
// fingerprint.  Returns whether vote state changed (and therefore whether
// the dirty flag was set).
func applyVote(ctx context.Context, tx Tx, s *model.Sighting, voter model.Identity, dir model.VoteDirection) (bool, error) {
    existing, err := tx.FindVote(ctx, s.ID, voter)
    if err != nil {
        return false, err
    }
    if existing == nil {
        v := &model.Vote{SightingID: s.ID, ClientID: voter.ClientID, UserID: voter.UserID, Direction: dir}
        err := tx.InsertVote(ctx, v)
        if errors.Is(err, ErrDuplicate) {
            // A concurrent call from the same identity won the insert; fall
            // through to the direction comparison against the winner.
            existing, err = tx.FindVote(ctx, s.ID, voter)
            if err != nil {
                return false, err
            }
            if existing == nil {
                return false, nil
            }
        } else if err != nil {
            return false, err
        } else {
            s.ClientVotes = append(s.ClientVotes, *v)
            s.RequiresVoteProcessing = true
            return true, tx.MarkVoteProcessing(ctx, s.ID)
        }
    }
    if existing.Direction == dir {
        return false, nil
    }
    if err := tx.UpdateVoteDirection(ctx, existing.ID, dir); err != nil {
        return false, err
    }
    existing.Direction = dir
    for i := range s.ClientVotes {
        if s.ClientVotes[i].ID == existing.ID {
            s.ClientVotes[i].Direction = dir
        }
    }
    s.RequiresVoteProcessing = true
    return true, tx.MarkVoteProcessing(ctx, s.ID)
}
