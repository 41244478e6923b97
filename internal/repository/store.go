package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/lostmerchants/tracker/internal/model"
    "github.com/lostmerchants/tracker/internal/reconcile"
)

// Store adapts the SQL repositories to the reconciliation core's Store/Tx
// contract.  Each WithinTx call maps to one database transaction, so every
// read-then-write sequence in the core rides the store's row-level
// uniqueness guarantees.
type Store struct {
    db     *sql.DB
    groups *GroupRepo
    votes  *VoteRepo
    bans   *BanRepo
}

// NewStore builds a Store over the shared database handle.
func NewStore(db *sql.DB) *Store {
    return &Store{
        db:     db,
        groups: NewGroupRepo(db),
        votes:  NewVoteRepo(db),
        bans:   NewBanRepo(db),
    }
}

// Groups exposes the group repository for read-side queries that do not go
// through the core (active-group listing, profile stats).
func (s *Store) Groups() *GroupRepo { return s.groups }

// Votes exposes the vote repository for read-side queries.
func (s *Store) Votes() *VoteRepo { return s.votes }

// WithinTx implements reconcile.Store.  fn's error aborts and rolls back;
// otherwise the transaction commits before WithinTx returns.
func (s *Store) WithinTx(ctx context.Context, fn func(tx reconcile.Tx) error) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(&storeTx{tx: tx, s: s}); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// storeTx implements reconcile.Tx over one *sql.Tx, translating MySQL
// duplicate-key violations into reconcile.ErrDuplicate so the core can
// recover races without knowing the driver.
type storeTx struct {
    tx *sql.Tx
    s  *Store
}

func (t *storeTx) FindActiveGroup(ctx context.Context, server, merchant string, now time.Time) (*model.MerchantGroup, error) {
    return t.s.groups.FindActiveTx(ctx, t.tx, server, merchant, now)
}

func (t *storeTx) CreateGroup(ctx context.Context, g *model.MerchantGroup) error {
    return mapDuplicate(t.s.groups.CreateTx(ctx, t.tx, g))
}

func (t *storeTx) InsertSighting(ctx context.Context, groupID uint64, sighting *model.Sighting) error {
    return mapDuplicate(t.s.groups.InsertSightingTx(ctx, t.tx, groupID, sighting))
}

func (t *storeTx) UnhideSighting(ctx context.Context, sightingID string) error {
    return t.s.groups.UnhideTx(ctx, t.tx, sightingID)
}

func (t *storeTx) HasOtherServerUpload(ctx context.Context, server string, id model.Identity, now time.Time) (bool, error) {
    return t.s.groups.HasOtherServerUploadTx(ctx, t.tx, server, id, now)
}

func (t *storeTx) HasActiveBan(ctx context.Context, id model.Identity, now time.Time) (bool, error) {
    return t.s.bans.HasActiveBanTx(ctx, t.tx, id, now)
}

func (t *storeTx) FindVote(ctx context.Context, sightingID string, id model.Identity) (*model.Vote, error) {
    return t.s.votes.FindTx(ctx, t.tx, sightingID, id)
}

func (t *storeTx) InsertVote(ctx context.Context, v *model.Vote) error {
    return mapDuplicate(t.s.votes.CreateTx(ctx, t.tx, v))
}

func (t *storeTx) UpdateVoteDirection(ctx context.Context, voteID uint64, d model.VoteDirection) error {
    return t.s.votes.UpdateDirectionTx(ctx, t.tx, voteID, d)
}

func (t *storeTx) MarkVoteProcessing(ctx context.Context, sightingID string) error {
    return t.s.votes.MarkVoteProcessingTx(ctx, t.tx, sightingID)
}

func mapDuplicate(err error) error {
    if isDuplicateKey(err) {
        return reconcile.ErrDuplicate
    }
    return err
}
