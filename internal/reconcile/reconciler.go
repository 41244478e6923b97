package reconcile

import (
    "context"
    "errors"
    "time"

    "github.com/google/uuid"

    "github.com/lostmerchants/tracker/internal/model"
)

// Reconciler merges candidate sightings into their canonical group.  Safe
// for concurrent use; all state lives in the store.
type Reconciler struct {
    store   Store
    catalog Catalog
    now     func() time.Time
}

// NewReconciler builds a Reconciler.  nowFn may be nil, in which case
// time.Now (UTC) is used; tests inject a fixed clock.
func NewReconciler(store Store, cat Catalog, nowFn func() time.Time) *Reconciler {
    if nowFn == nil {
        nowFn = func() time.Time { return time.Now().UTC() }
    }
    return &Reconciler{store: store, catalog: cat, now: nowFn}
}

// Submit reconciles one candidate sighting for (server, merchant) submitted
// by id.  It performs at most one persisted transaction and returns what
// the submission turned into.  Expected disagreements (duplicates, policy
// rejections) come back as OutcomeRejected with a nil error; only storage
// faults produce a non-nil error, and in that case nothing was committed.
func (r *Reconciler) Submit(ctx context.Context, server, merchant string, cand *model.Sighting, id model.Identity) (Result, error) {
    if cand == nil || !r.catalog.IsValidServer(server) || !r.catalog.Validate(merchant, cand) {
        return Result{Outcome: OutcomeRejected, Reason: RejectInvalid}, nil
    }
    now := r.now()

    var res Result
    err := r.store.WithinTx(ctx, func(tx Tx) error {
        group, err := tx.FindActiveGroup(ctx, server, merchant, now)
        if err != nil {
            return err
        }
        if group == nil {
            // No persisted group yet: compute the window in memory and
            // create it lazily.  Submissions outside any window are not
            // allowed to resurrect expired groups.
            start, expires, ok := r.catalog.ActiveWindow(merchant, now)
            if !ok {
                res = Result{Outcome: OutcomeRejected, Reason: RejectInactive}
                return nil
            }
            group = &model.MerchantGroup{
                Server:            server,
                MerchantName:      merchant,
                AppearanceStart:   start,
                AppearanceExpires: expires,
            }
            if err := tx.CreateGroup(ctx, group); err != nil {
                if !errors.Is(err, ErrDuplicate) {
                    return err
                }
                // A concurrent submission created the window first; adopt it.
                group, err = tx.FindActiveGroup(ctx, server, merchant, now)
                if err != nil {
                    return err
                }
                if group == nil {
                    res = Result{Outcome: OutcomeRejected, Reason: RejectInactive}
                    return nil
                }
            }
        }

        // One submission per identity per window, checked independently for
        // the weak fingerprint and the strong account id.
        if group.FindByUploader(id) != nil {
            res = Result{Outcome: OutcomeRejected, Reason: RejectDuplicate}
            return nil
        }

        // An equal payload from a different identity confirms the earlier
        // sighting instead of inserting a second record.
        for _, existing := range group.Sightings {
            if existing.IsEqualTo(cand) {
                return r.mergeAsVote(ctx, tx, group, existing, id, &res)
            }
        }

        banned, err := tx.HasActiveBan(ctx, id, now)
        if err != nil {
            return err
        }
        if banned {
            return r.insertSighting(ctx, tx, group, cand, id, true, &res)
        }

        // An identity may only actively contribute to one server at a time.
        conflict, err := tx.HasOtherServerUpload(ctx, server, id, now)
        if err != nil {
            return err
        }
        if conflict {
            res = Result{Outcome: OutcomeRejected, Reason: RejectCrossServer}
            return nil
        }

        return r.insertSighting(ctx, tx, group, cand, id, false, &res)
    })
    if err != nil {
        return Result{}, err
    }
    return res, nil
}

// mergeAsVote converts the submission into an upvote on existing.  When the
// existing sighting was hidden (a banned identity got there first), the
// legitimate confirmation unhides it and the broadcast snapshot drops every
// remaining hidden sighting in the group.
func (r *Reconciler) mergeAsVote(ctx context.Context, tx Tx, group *model.MerchantGroup, existing *model.Sighting, id model.Identity, res *Result) error {
    broadcast := false
    if existing.Hidden {
        if err := tx.UnhideSighting(ctx, existing.ID); err != nil {
            return err
        }
        existing.Hidden = false
        kept := group.Sightings[:0]
        for _, s := range group.Sightings {
            if !s.Hidden {
                kept = append(kept, s)
            }
        }
        group.Sightings = kept
        broadcast = true
    }

    changed, err := applyVote(ctx, tx, existing, id, model.Upvote)
    if err != nil {
        return err
    }
    *res = Result{
        Outcome:    OutcomeMergedAsVote,
        SightingID: existing.ID,
        DirtyVote:  changed,
    }
    if broadcast {
        res.Group = group
        res.Broadcast = true
    }
    return nil
}

// insertSighting stores cand in the group with the submitter stamped on it
// and an auto-upvote so uploaders see their own submissions by default.
// A payload-hash uniqueness race means an equal sighting landed between our
// scan and our write; the submission is retried as a merge instead.
func (r *Reconciler) insertSighting(ctx context.Context, tx Tx, group *model.MerchantGroup, cand *model.Sighting, id model.Identity, hidden bool, res *Result) error {
    cand.ID = uuid.NewString()
    cand.UploadedBy = id.ClientID
    cand.UploadedByUserID = id.UserID
    cand.Hidden = hidden
    cand.RequiresProcessing = !hidden
    cand.CreatedAt = r.now()
    // Client-supplied tallies never survive; the cached count starts at
    // zero and the processor recomputes it from the ledger.
    cand.Votes = 0
    cand.ClientVotes = nil

    if err := tx.InsertSighting(ctx, group.ID, cand); err != nil {
        if !errors.Is(err, ErrDuplicate) {
            return err
        }
        fresh, err := tx.FindActiveGroup(ctx, group.Server, group.MerchantName, r.now())
        if err != nil {
            return err
        }
        if fresh != nil {
            for _, existing := range fresh.Sightings {
                if existing.IsEqualTo(cand) {
                    return r.mergeAsVote(ctx, tx, fresh, existing, id, res)
                }
            }
        }
        *res = Result{Outcome: OutcomeRejected, Reason: RejectDuplicate}
        return nil
    }

    auto := &model.Vote{SightingID: cand.ID, ClientID: id.ClientID, UserID: id.UserID, Direction: model.Upvote}
    if err := tx.InsertVote(ctx, auto); err != nil && !errors.Is(err, ErrDuplicate) {
        return err
    }
    cand.ClientVotes = append(cand.ClientVotes, *auto)
    group.Sightings = append(group.Sightings, cand)

    if hidden {
        *res = Result{Outcome: OutcomeInsertedHidden, SightingID: cand.ID, Group: group}
        return nil
    }
    *res = Result{
        Outcome:         OutcomeInserted,
        SightingID:      cand.ID,
        Group:           group,
        Broadcast:       true,
        DirtyProcessing: true,
    }
    return nil
}
