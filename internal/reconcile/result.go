package reconcile

import "github.com/lostmerchants/tracker/internal/model"

// Outcome classifies what a submission turned into.
type Outcome int

const (
    // OutcomeRejected means the submission was dropped without effect:
    // invalid shape, no active window, duplicate identity, or cross-server
    // conflict.  Callers surface nothing to the client.
    OutcomeRejected Outcome = iota
    // OutcomeMergedAsVote means an equal sighting already existed and the
    // submission became an upvote on it.
    OutcomeMergedAsVote
    // OutcomeInserted means a new public sighting was stored.
    OutcomeInserted
    // OutcomeInsertedHidden means the submitter is banned; the sighting was
    // stored hidden and only the submitter may see it.
    OutcomeInsertedHidden
)

// RejectReason explains an OutcomeRejected for logging; clients never see it.
type RejectReason string

const (
    RejectInvalid     RejectReason = "invalid"       // unknown server, merchant, or payload shape
    RejectInactive    RejectReason = "inactive"      // no appearance window covers now
    RejectDuplicate   RejectReason = "duplicate"     // identity already submitted this window
    RejectCrossServer RejectReason = "cross_server"  // identity has an active upload elsewhere
)

// Result reports the effect of one submission or vote.
//
// Group is a post-transaction snapshot used for notification: the full
// canonical group for broadcast after a public insert or an unhide, or the
// caller-only view after a hidden insert.  It is nil for rejections and
// plain vote merges.
type Result struct {
    Outcome    Outcome
    Reason     RejectReason // set only for OutcomeRejected
    SightingID string       // inserted or merged-into sighting
    Group      *model.MerchantGroup

    // Broadcast is true when the group snapshot must go to every subscriber
    // of the server (public insert, or a merge that unhid a sighting).
    // When false with a non-nil Group, only the submitter is notified.
    Broadcast bool

    // DirtyProcessing/DirtyVote report which dirty flags this operation set,
    // so the caller can enqueue outbox work items after commit.
    DirtyProcessing bool
    DirtyVote       bool
}
