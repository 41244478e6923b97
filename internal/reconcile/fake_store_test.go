package reconcile

import (
    "context"
    "sync"
    "time"

    "github.com/lostmerchants/tracker/internal/model"
)

// fakeStore is an in-memory Store used to exercise the core without a
// database.  WithinTx serializes callers with a mutex, which is enough to
// model the store's atomicity for these tests.  Uniqueness rules mirror
// the SQL schema: one group per (server, merchant, window start), one
// payload hash per group, one vote per (sighting, identity).
type fakeStore struct {
    mu sync.Mutex

    nextGroupID uint64
    nextVoteID  uint64

    groups    []*model.MerchantGroup // sightings attached, without votes
    sightings map[string]*storedSighting
    votes     []*model.Vote

    clientBans map[string]time.Time // weak fingerprint -> ban expiry
    userRecord map[string]time.Time // strong id -> ban expiry (zero = user known, not banned)

    markCalls map[string]int // MarkVoteProcessing invocations per sighting

    // raceOnInsert, when set, runs once before the next InsertSighting so a
    // test can slip a competing row in between scan and write.
    raceOnInsert func()
    // raceOnCreateGroup does the same for group creation.
    raceOnCreateGroup func()
}

type storedSighting struct {
    groupID uint64
    s       model.Sighting
}

func newFakeStore() *fakeStore {
    return &fakeStore{
        sightings:  make(map[string]*storedSighting),
        clientBans: make(map[string]time.Time),
        userRecord: make(map[string]time.Time),
        markCalls:  make(map[string]int),
    }
}

func (f *fakeStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    return fn(&fakeTx{f})
}

// groupSnapshot returns a detached copy of a stored group with current
// sightings and votes attached, the way the SQL store loads them.
func (f *fakeStore) groupSnapshot(g *model.MerchantGroup) *model.MerchantGroup {
    out := *g
    out.Sightings = nil
    for _, st := range f.sightings {
        if st.groupID != g.ID {
            continue
        }
        s := st.s
        s.ClientVotes = nil
        for _, v := range f.votes {
            if v.SightingID == s.ID {
                s.ClientVotes = append(s.ClientVotes, *v)
            }
        }
        out.Sightings = append(out.Sightings, &s)
    }
    return &out
}

type fakeTx struct{ f *fakeStore }

func (t *fakeTx) FindActiveGroup(_ context.Context, server, merchant string, now time.Time) (*model.MerchantGroup, error) {
    for _, g := range t.f.groups {
        if g.Server == server && g.MerchantName == merchant && g.IsActive(now) {
            return t.f.groupSnapshot(g), nil
        }
    }
    return nil, nil
}

func (t *fakeTx) CreateGroup(_ context.Context, g *model.MerchantGroup) error {
    if t.f.raceOnCreateGroup != nil {
        hook := t.f.raceOnCreateGroup
        t.f.raceOnCreateGroup = nil
        hook()
    }
    for _, existing := range t.f.groups {
        if existing.Server == g.Server && existing.MerchantName == g.MerchantName && existing.AppearanceStart.Equal(g.AppearanceStart) {
            return ErrDuplicate
        }
    }
    t.f.nextGroupID++
    g.ID = t.f.nextGroupID
    stored := *g
    stored.Sightings = nil
    t.f.groups = append(t.f.groups, &stored)
    return nil
}

func (t *fakeTx) InsertSighting(_ context.Context, groupID uint64, s *model.Sighting) error {
    if t.f.raceOnInsert != nil {
        hook := t.f.raceOnInsert
        t.f.raceOnInsert = nil
        hook()
    }
    for _, st := range t.f.sightings {
        if st.groupID == groupID && st.s.PayloadHash() == s.PayloadHash() {
            return ErrDuplicate
        }
    }
    stored := *s
    stored.ClientVotes = nil
    t.f.sightings[s.ID] = &storedSighting{groupID: groupID, s: stored}
    return nil
}

func (t *fakeTx) UnhideSighting(_ context.Context, sightingID string) error {
    if st, ok := t.f.sightings[sightingID]; ok {
        st.s.Hidden = false
    }
    return nil
}

func (t *fakeTx) HasOtherServerUpload(_ context.Context, server string, id model.Identity, now time.Time) (bool, error) {
    for _, g := range t.f.groups {
        if g.Server == server || !g.IsActive(now) {
            continue
        }
        for _, st := range t.f.sightings {
            if st.groupID != g.ID {
                continue
            }
            if st.s.UploadedBy == id.ClientID || (id.UserID != "" && st.s.UploadedByUserID == id.UserID) {
                return true, nil
            }
        }
    }
    return false, nil
}

func (t *fakeTx) HasActiveBan(_ context.Context, id model.Identity, now time.Time) (bool, error) {
    if id.UserID != "" {
        if exp, ok := t.f.userRecord[id.UserID]; ok {
            return exp.After(now), nil
        }
    }
    exp, ok := t.f.clientBans[id.ClientID]
    return ok && exp.After(now), nil
}

func (t *fakeTx) FindVote(_ context.Context, sightingID string, id model.Identity) (*model.Vote, error) {
    if id.UserID != "" {
        for _, v := range t.f.votes {
            if v.SightingID == sightingID && v.UserID == id.UserID {
                out := *v
                return &out, nil
            }
        }
        return nil, nil
    }
    for _, v := range t.f.votes {
        if v.SightingID == sightingID && v.ClientID == id.ClientID {
            out := *v
            return &out, nil
        }
    }
    return nil, nil
}

func (t *fakeTx) InsertVote(_ context.Context, v *model.Vote) error {
    for _, existing := range t.f.votes {
        if existing.SightingID != v.SightingID {
            continue
        }
        if existing.ClientID == v.ClientID || (v.UserID != "" && existing.UserID == v.UserID) {
            return ErrDuplicate
        }
    }
    t.f.nextVoteID++
    v.ID = t.f.nextVoteID
    stored := *v
    t.f.votes = append(t.f.votes, &stored)
    return nil
}

func (t *fakeTx) UpdateVoteDirection(_ context.Context, voteID uint64, d model.VoteDirection) error {
    for _, v := range t.f.votes {
        if v.ID == voteID {
            v.Direction = d
        }
    }
    return nil
}

func (t *fakeTx) MarkVoteProcessing(_ context.Context, sightingID string) error {
    if st, ok := t.f.sightings[sightingID]; ok {
        st.s.RequiresVoteProcessing = true
    }
    t.f.markCalls[sightingID]++
    return nil
}
