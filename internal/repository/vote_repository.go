package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/lostmerchants/tracker/internal/model"
)

// VoteRepo provides access to the votes table and the vote-related dirty
// flag on active_merchants.
type VoteRepo struct {
    db *sql.DB
}

// NewVoteRepo returns a new VoteRepo bound to the given database.
func NewVoteRepo(db *sql.DB) *VoteRepo { return &VoteRepo{db: db} }

// FindTx returns the identity's vote on a sighting, or nil when none
// exists.  An authenticated caller is matched on user id so their vote
// follows them across addresses; anonymous callers match on fingerprint.
func (r *VoteRepo) FindTx(ctx context.Context, tx *sql.Tx, sightingID string, id model.Identity) (*model.Vote, error) {
    var row *sql.Row
    if id.UserID != "" {
        const q = `SELECT id, active_merchant_id, client_id, user_id, direction
                   FROM votes WHERE active_merchant_id = ? AND user_id = ?`
        row = tx.QueryRowContext(ctx, q, sightingID, id.UserID)
    } else {
        const q = `SELECT id, active_merchant_id, client_id, user_id, direction
                   FROM votes WHERE active_merchant_id = ? AND client_id = ?`
        row = tx.QueryRowContext(ctx, q, sightingID, id.ClientID)
    }
    v, err := scanVote(row)
    if err == sql.ErrNoRows {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    return v, nil
}

// CreateTx inserts a new vote and fills in its generated ID.  The unique
// key over (sighting, client) turns concurrent double-votes into
// duplicate-key errors the caller resolves by re-reading.
func (r *VoteRepo) CreateTx(ctx context.Context, tx *sql.Tx, v *model.Vote) error {
    const q = `INSERT INTO votes (active_merchant_id, client_id, user_id, direction) VALUES (?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, q, v.SightingID, v.ClientID, nullString(v.UserID), v.Direction)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    v.ID = uint64(id)
    return nil
}

// UpdateDirectionTx flips an existing vote's direction in place.
func (r *VoteRepo) UpdateDirectionTx(ctx context.Context, tx *sql.Tx, voteID uint64, d model.VoteDirection) error {
    _, err := tx.ExecContext(ctx, `UPDATE votes SET direction = ? WHERE id = ?`, d, voteID)
    return err
}

// MarkVoteProcessingTx sets the requires_vote_processing flag with a keyed
// update, deliberately not loading the sighting graph: the flag write must
// be safe to issue from inside the reconciler's transaction without
// tracking conflicts, and the background processor is the only reader.
func (r *VoteRepo) MarkVoteProcessingTx(ctx context.Context, tx *sql.Tx, sightingID string) error {
    _, err := tx.ExecContext(ctx, `UPDATE active_merchants SET requires_vote_processing = 1 WHERE id = ?`, sightingID)
    return err
}

// ListByVoter returns the votes the identity has cast within the server's
// currently active groups, so reconnecting clients can restore their local
// vote state.
func (r *VoteRepo) ListByVoter(ctx context.Context, server string, id model.Identity, now time.Time) ([]model.Vote, error) {
    var rows *sql.Rows
    var err error
    const base = `SELECT v.id, v.active_merchant_id, v.client_id, v.user_id, v.direction
                  FROM votes v
                  JOIN active_merchants m ON m.id = v.active_merchant_id
                  JOIN merchant_groups g ON g.id = m.merchant_group_id
                  WHERE g.server = ? AND g.appearance_expires > ?`
    if id.UserID != "" {
        rows, err = r.db.QueryContext(ctx, base+` AND v.user_id = ?`, server, now, id.UserID)
    } else {
        rows, err = r.db.QueryContext(ctx, base+` AND v.client_id = ?`, server, now, id.ClientID)
    }
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    votes := make([]model.Vote, 0)
    for rows.Next() {
        v, err := scanVote(rows)
        if err != nil {
            return nil, err
        }
        votes = append(votes, *v)
    }
    return votes, rows.Err()
}
