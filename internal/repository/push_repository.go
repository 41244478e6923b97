package repository

import (
    "context"
    "database/sql"

    "github.com/lostmerchants/tracker/internal/model"
)

// PushRepo manages push-notification registration records.  The sender that
// consumes these records runs as a separate process; to avoid racing its
// key updates, registrations are cleared by blanking their fields rather
// than deleting rows.
type PushRepo struct {
    db *sql.DB
}

// NewPushRepo returns a new PushRepo bound to the given database.
func NewPushRepo(db *sql.DB) *PushRepo { return &PushRepo{db: db} }

// Get returns the subscription for a token, or ErrNotFound.
func (r *PushRepo) Get(ctx context.Context, token string) (*model.PushSubscription, error) {
    const q = `SELECT token, server, wei_cards_only, last_merchant_sent FROM push_subscriptions WHERE token = ?`
    sub := &model.PushSubscription{}
    var last sql.NullString
    err := r.db.QueryRowContext(ctx, q, token).Scan(&sub.Token, &sub.Server, &sub.WeiCardsOnly, &last)
    if err == sql.ErrNoRows {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    if last.Valid {
        sub.LastMerchantSent = last.String
    }
    return sub, nil
}

// Upsert stores or replaces the subscription for its token.
func (r *PushRepo) Upsert(ctx context.Context, sub *model.PushSubscription) error {
    const q = `INSERT INTO push_subscriptions (token, server, wei_cards_only, last_merchant_sent)
               VALUES (?, ?, ?, ?)
               ON DUPLICATE KEY UPDATE server = VALUES(server), wei_cards_only = VALUES(wei_cards_only)`
    _, err := r.db.ExecContext(ctx, q, sub.Token, sub.Server, sub.WeiCardsOnly, nullString(sub.LastMerchantSent))
    return err
}

// Clear blanks a subscription's fields in place.  Clearing a token that was
// already cleared or never registered is not an error: users multi-click
// delete, and the row may legitimately be gone mid-race.
func (r *PushRepo) Clear(ctx context.Context, token string) error {
    const q = `UPDATE push_subscriptions SET server = '', wei_cards_only = 0, last_merchant_sent = NULL WHERE token = ?`
    _, err := r.db.ExecContext(ctx, q, token)
    return err
}
