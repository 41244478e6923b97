package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "time"

    "github.com/lostmerchants/tracker/internal/model"
)

// GroupRepo provides access to merchant_groups and their active_merchants
// rows.  Groups are the unit of deduplication: one row per merchant
// appearance window per server, never deleted, superseded by the next
// window's row.
type GroupRepo struct {
    db *sql.DB
}

// NewGroupRepo returns a new GroupRepo bound to the given database.
func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

// DB exposes the underlying handle so callers can begin transactions that
// span repositories.
func (r *GroupRepo) DB() *sql.DB { return r.db }

const sightingColumns = `id, zone, cards, uploaded_by, uploaded_by_user_id,
    hidden, votes, requires_processing, requires_vote_processing, created_at`

// FindActiveTx returns the group for (server, merchant) whose window covers
// now, with its sightings and their votes loaded, or nil when no such group
// exists.  Runs inside the supplied transaction so the caller's subsequent
// writes observe the same state.
func (r *GroupRepo) FindActiveTx(ctx context.Context, tx *sql.Tx, server, merchant string, now time.Time) (*model.MerchantGroup, error) {
    const q = `SELECT id, server, merchant_name, appearance_start, appearance_expires
               FROM merchant_groups
               WHERE server = ? AND merchant_name = ? AND appearance_start <= ? AND appearance_expires > ?`
    g := &model.MerchantGroup{}
    err := tx.QueryRowContext(ctx, q, server, merchant, now, now).Scan(
        &g.ID, &g.Server, &g.MerchantName, &g.AppearanceStart, &g.AppearanceExpires,
    )
    if err == sql.ErrNoRows {
        return nil, nil
    }
    if err != nil {
        return nil, err
    }
    if err := r.loadSightingsTx(ctx, tx, g); err != nil {
        return nil, err
    }
    return g, nil
}

// loadSightingsTx attaches the group's sightings and their votes.
func (r *GroupRepo) loadSightingsTx(ctx context.Context, tx *sql.Tx, g *model.MerchantGroup) error {
    const q = `SELECT ` + sightingColumns + ` FROM active_merchants WHERE merchant_group_id = ?`
    rows, err := tx.QueryContext(ctx, q, g.ID)
    if err != nil {
        return err
    }
    defer rows.Close()
    byID := make(map[string]*model.Sighting)
    for rows.Next() {
        s, err := scanSighting(rows)
        if err != nil {
            return err
        }
        g.Sightings = append(g.Sightings, s)
        byID[s.ID] = s
    }
    if err := rows.Err(); err != nil {
        return err
    }
    if len(g.Sightings) == 0 {
        return nil
    }
    const voteQ = `SELECT v.id, v.active_merchant_id, v.client_id, v.user_id, v.direction
                   FROM votes v
                   JOIN active_merchants m ON m.id = v.active_merchant_id
                   WHERE m.merchant_group_id = ?`
    vrows, err := tx.QueryContext(ctx, voteQ, g.ID)
    if err != nil {
        return err
    }
    defer vrows.Close()
    for vrows.Next() {
        v, err := scanVote(vrows)
        if err != nil {
            return err
        }
        if s, ok := byID[v.SightingID]; ok {
            s.ClientVotes = append(s.ClientVotes, *v)
        }
    }
    return vrows.Err()
}

// CreateTx inserts a newly computed group row and fills in its generated
// ID.  A duplicate-key error means a concurrent submission created the
// same window first; callers re-read and adopt the winner.
func (r *GroupRepo) CreateTx(ctx context.Context, tx *sql.Tx, g *model.MerchantGroup) error {
    const q = `INSERT INTO merchant_groups (server, merchant_name, appearance_start, appearance_expires)
               VALUES (?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, q, g.Server, g.MerchantName, g.AppearanceStart, g.AppearanceExpires)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    g.ID = uint64(id)
    return nil
}

// InsertSightingTx inserts one sighting under a group.  The payload hash
// backs the uq_group_payload unique key, so an equal concurrent payload
// surfaces as a duplicate-key error for the caller to merge as a vote.
func (r *GroupRepo) InsertSightingTx(ctx context.Context, tx *sql.Tx, groupID uint64, s *model.Sighting) error {
    cards, err := json.Marshal(s.Cards)
    if err != nil {
        return err
    }
    const q = `INSERT INTO active_merchants
               (id, merchant_group_id, zone, cards, payload_hash, uploaded_by, uploaded_by_user_id,
                hidden, votes, requires_processing, requires_vote_processing, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?)`
    _, err = tx.ExecContext(ctx, q,
        s.ID, groupID, s.Zone, cards, s.PayloadHash(), s.UploadedBy, nullString(s.UploadedByUserID),
        s.Hidden, s.RequiresProcessing, s.CreatedAt,
    )
    return err
}

// UnhideTx clears the hidden flag on a sighting after a non-banned identity
// confirmed the same payload.
func (r *GroupRepo) UnhideTx(ctx context.Context, tx *sql.Tx, sightingID string) error {
    _, err := tx.ExecContext(ctx, `UPDATE active_merchants SET hidden = 0 WHERE id = ?`, sightingID)
    return err
}

// HasOtherServerUploadTx reports whether the identity uploaded any sighting
// to a currently active group on a server other than the given one.  Used
// for the one-server-at-a-time contribution policy.
func (r *GroupRepo) HasOtherServerUploadTx(ctx context.Context, tx *sql.Tx, server string, id model.Identity, now time.Time) (bool, error) {
    const q = `SELECT EXISTS (
                   SELECT 1
                   FROM active_merchants m
                   JOIN merchant_groups g ON g.id = m.merchant_group_id
                   WHERE g.server <> ? AND g.appearance_expires > ?
                     AND (m.uploaded_by = ? OR (? <> '' AND m.uploaded_by_user_id = ?))
               )`
    var exists bool
    err := tx.QueryRowContext(ctx, q, server, now, id.ClientID, id.UserID, id.UserID).Scan(&exists)
    return exists, err
}

// ListActive returns every group on the server whose window covers now,
// with sightings and votes loaded.  Visibility filtering is the caller's
// concern; this returns the canonical records.
func (r *GroupRepo) ListActive(ctx context.Context, server string, now time.Time) ([]*model.MerchantGroup, error) {
    const q = `SELECT id, server, merchant_name, appearance_start, appearance_expires
               FROM merchant_groups
               WHERE server = ? AND appearance_start <= ? AND appearance_expires > ?`
    rows, err := r.db.QueryContext(ctx, q, server, now, now)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    groups := make([]*model.MerchantGroup, 0)
    for rows.Next() {
        g := &model.MerchantGroup{}
        if err := rows.Scan(&g.ID, &g.Server, &g.MerchantName, &g.AppearanceStart, &g.AppearanceExpires); err != nil {
            return nil, err
        }
        groups = append(groups, g)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    for _, g := range groups {
        if err := r.loadSightings(ctx, g); err != nil {
            return nil, err
        }
    }
    return groups, nil
}

// loadSightings is the non-transactional twin of loadSightingsTx, used by
// read-only queries.
func (r *GroupRepo) loadSightings(ctx context.Context, g *model.MerchantGroup) error {
    const q = `SELECT ` + sightingColumns + ` FROM active_merchants WHERE merchant_group_id = ?`
    rows, err := r.db.QueryContext(ctx, q, g.ID)
    if err != nil {
        return err
    }
    defer rows.Close()
    byID := make(map[string]*model.Sighting)
    for rows.Next() {
        s, err := scanSighting(rows)
        if err != nil {
            return err
        }
        g.Sightings = append(g.Sightings, s)
        byID[s.ID] = s
    }
    if err := rows.Err(); err != nil {
        return err
    }
    if len(g.Sightings) == 0 {
        return nil
    }
    const voteQ = `SELECT v.id, v.active_merchant_id, v.client_id, v.user_id, v.direction
                   FROM votes v
                   JOIN active_merchants m ON m.id = v.active_merchant_id
                   WHERE m.merchant_group_id = ?`
    vrows, err := r.db.QueryContext(ctx, voteQ, g.ID)
    if err != nil {
        return err
    }
    defer vrows.Close()
    for vrows.Next() {
        v, err := scanVote(vrows)
        if err != nil {
            return err
        }
        if s, ok := byID[v.SightingID]; ok {
            s.ClientVotes = append(s.ClientVotes, *v)
        }
    }
    return vrows.Err()
}

// ProfileStats aggregates an authenticated uploader's standing: totals over
// their non-hidden, non-negative submissions plus the server they submit to
// most.
type ProfileStats struct {
    PrimaryServer    string `json:"primary_server"`
    TotalUpvotes     int    `json:"total_upvotes"`
    TotalSubmissions int    `json:"total_submissions"`
}

// GetProfileStats computes ProfileStats for a user.  A user with no
// qualifying submissions gets zero totals and an empty primary server.
func (r *GroupRepo) GetProfileStats(ctx context.Context, userID string) (ProfileStats, error) {
    var stats ProfileStats
    const totalsQ = `SELECT COALESCE(SUM(votes), 0), COUNT(*)
                     FROM active_merchants
                     WHERE uploaded_by_user_id = ? AND votes >= 0 AND hidden = 0`
    if err := r.db.QueryRowContext(ctx, totalsQ, userID).Scan(&stats.TotalUpvotes, &stats.TotalSubmissions); err != nil {
        return ProfileStats{}, err
    }
    const serverQ = `SELECT g.server
                     FROM active_merchants m
                     JOIN merchant_groups g ON g.id = m.merchant_group_id
                     WHERE m.uploaded_by_user_id = ? AND m.votes >= 0 AND m.hidden = 0
                     GROUP BY g.server
                     ORDER BY COUNT(*) DESC
                     LIMIT 1`
    err := r.db.QueryRowContext(ctx, serverQ, userID).Scan(&stats.PrimaryServer)
    if err != nil && err != sql.ErrNoRows {
        return ProfileStats{}, err
    }
    return stats, nil
}

// scanner abstracts *sql.Rows / *sql.Row for the shared scan helpers.
type scanner interface {
    Scan(dest ...any) error
}

func scanSighting(sc scanner) (*model.Sighting, error) {
    s := &model.Sighting{}
    var cards []byte
    var userID sql.NullString
    if err := sc.Scan(
        &s.ID, &s.Zone, &cards, &s.UploadedBy, &userID,
        &s.Hidden, &s.Votes, &s.RequiresProcessing, &s.RequiresVoteProcessing, &s.CreatedAt,
    ); err != nil {
        return nil, err
    }
    if userID.Valid {
        s.UploadedByUserID = userID.String
    }
    if len(cards) > 0 {
        if err := json.Unmarshal(cards, &s.Cards); err != nil {
            return nil, err
        }
    }
    return s, nil
}

func scanVote(sc scanner) (*model.Vote, error) {
    v := &model.Vote{}
    var userID sql.NullString
    if err := sc.Scan(&v.ID, &v.SightingID, &v.ClientID, &userID, &v.Direction); err != nil {
        return nil, err
    }
    if userID.Valid {
        v.UserID = userID.String
    }
    return v, nil
}

// nullString maps an empty string to SQL NULL so unique indexes over
// user ids ignore anonymous rows.
func nullString(s string) sql.NullString {
    return sql.NullString{String: s, Valid: s != ""}
}
