package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/lostmerchants/tracker/internal/model"
)

// BanRepo answers ban checks against the users and bans tables.
type BanRepo struct {
    db *sql.DB
}

// NewBanRepo returns a new BanRepo bound to the given database.
func NewBanRepo(db *sql.DB) *BanRepo { return &BanRepo{db: db} }

// HasActiveBanTx reports whether the identity is banned at now.  When the
// caller is authenticated and a user record exists, the account-level
// expiry decides and the fingerprint list is not consulted; an account in
// good standing is not penalised for a shared or recycled address.
// Otherwise the weak fingerprint ban list applies.
func (r *BanRepo) HasActiveBanTx(ctx context.Context, tx *sql.Tx, id model.Identity, now time.Time) (bool, error) {
    if id.UserID != "" {
        var banExpires sql.NullTime
        err := tx.QueryRowContext(ctx, `SELECT ban_expires FROM users WHERE id = ?`, id.UserID).Scan(&banExpires)
        if err == nil {
            return banExpires.Valid && banExpires.Time.After(now), nil
        }
        if err != sql.ErrNoRows {
            return false, err
        }
    }
    const q = `SELECT EXISTS (SELECT 1 FROM bans WHERE client_id = ? AND expires_at > ?)`
    var banned bool
    err := tx.QueryRowContext(ctx, q, id.ClientID, now).Scan(&banned)
    return banned, err
}
