package reconcile

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lostmerchants/tracker/internal/catalog"
    "github.com/lostmerchants/tracker/internal/model"
)

var testNow = time.Date(2024, 5, 1, 13, 5, 0, 0, time.UTC)

func testCatalog() Catalog {
    return catalog.New(
        map[string][]string{"EU Central": {"Kadan", "Trixion"}},
        []catalog.MerchantDef{
            {
                Name:            "Ben",
                Zones:           []string{"Bilbrin Forest", "Blackrose Chapel"},
                Cards:           []model.Card{{Name: "Wei", Rarity: 3}, {Name: "Seria", Rarity: 1}, {Name: "Thirain", Rarity: 2}},
                AppearanceHours: []int{1, 7, 13, 19},
            },
            {
                Name:            "Lailai",
                Zones:           []string{"Port City Changhun"},
                Cards:           []model.Card{{Name: "Sian", Rarity: 1}},
                AppearanceHours: []int{13},
            },
        },
        25*time.Minute,
    )
}

func newTestReconciler(f *fakeStore) *Reconciler {
    return NewReconciler(f, testCatalog(), func() time.Time { return testNow })
}

func weiSighting() *model.Sighting {
    return &model.Sighting{Zone: "Bilbrin Forest", Cards: []model.Card{{Name: "Wei", Rarity: 3}}}
}

func seriaSighting() *model.Sighting {
    return &model.Sighting{Zone: "Bilbrin Forest", Cards: []model.Card{{Name: "Seria", Rarity: 1}}}
}

func ident(client string) model.Identity { return model.Identity{ClientID: client} }

// activeSnapshot reads the current state of a group directly from the fake.
func activeSnapshot(t *testing.T, f *fakeStore, server, merchant string) *model.MerchantGroup {
    t.Helper()
    for _, g := range f.groups {
        if g.Server == server && g.MerchantName == merchant && g.IsActive(testNow) {
            return f.groupSnapshot(g)
        }
    }
    return nil
}

func TestSubmit_FirstSubmissionCreatesGroup(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)

    res, err := r.Submit(context.Background(), "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)

    assert.Equal(t, OutcomeInserted, res.Outcome)
    assert.True(t, res.Broadcast)
    assert.True(t, res.DirtyProcessing)
    assert.False(t, res.DirtyVote)
    require.NotNil(t, res.Group)
    assert.Equal(t, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), res.Group.AppearanceStart)

    g := activeSnapshot(t, f, "Kadan", "Ben")
    require.NotNil(t, g)
    require.Len(t, g.Sightings, 1)
    s := g.Sightings[0]
    assert.False(t, s.Hidden)
    assert.True(t, s.RequiresProcessing)
    assert.Equal(t, "1.1.1.1", s.UploadedBy)
    require.Len(t, s.ClientVotes, 1)
    assert.Equal(t, model.Upvote, s.ClientVotes[0].Direction)
    assert.Equal(t, "1.1.1.1", s.ClientVotes[0].ClientID)
    // The auto-upvote is not a vote event for the background processor.
    assert.Zero(t, f.markCalls[s.ID])
}

func TestSubmit_ValidationRejections(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)

    tests := []struct {
        name     string
        server   string
        merchant string
        sighting *model.Sighting
        reason   RejectReason
    }{
        {"unknown server", "Nonexistent", "Ben", weiSighting(), RejectInvalid},
        {"unknown merchant", "Kadan", "Nobody", weiSighting(), RejectInvalid},
        {"wrong zone", "Kadan", "Ben", &model.Sighting{Zone: "Port City Changhun", Cards: []model.Card{{Name: "Wei", Rarity: 3}}}, RejectInvalid},
        {"nil sighting", "Kadan", "Ben", nil, RejectInvalid},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            res, err := r.Submit(context.Background(), tt.server, tt.merchant, tt.sighting, ident("1.1.1.1"))
            require.NoError(t, err)
            assert.Equal(t, OutcomeRejected, res.Outcome)
            assert.Equal(t, tt.reason, res.Reason)
        })
    }
    assert.Empty(t, f.groups)
}

func TestSubmit_InactiveWindowRejected(t *testing.T) {
    f := newFakeStore()
    // 14:00 is past the 13:00 + 25m window and before 19:00.
    r := NewReconciler(f, testCatalog(), func() time.Time {
        return time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
    })

    res, err := r.Submit(context.Background(), "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeRejected, res.Outcome)
    assert.Equal(t, RejectInactive, res.Reason)
}

func TestSubmit_SameIdentityOncePerWindow(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    ctx := context.Background()

    _, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)

    // Same weak identity, different payload: rejected, not stored.
    res, err := r.Submit(ctx, "Kadan", "Ben", seriaSighting(), ident("1.1.1.1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeRejected, res.Outcome)
    assert.Equal(t, RejectDuplicate, res.Reason)

    g := activeSnapshot(t, f, "Kadan", "Ben")
    assert.Len(t, g.Sightings, 1)
}

func TestSubmit_SameUserDifferentAddressRejected(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    ctx := context.Background()

    _, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), model.Identity{ClientID: "1.1.1.1", UserID: "user-1"})
    require.NoError(t, err)

    res, err := r.Submit(ctx, "Kadan", "Ben", seriaSighting(), model.Identity{ClientID: "9.9.9.9", UserID: "user-1"})
    require.NoError(t, err)
    assert.Equal(t, OutcomeRejected, res.Outcome)
    assert.Equal(t, RejectDuplicate, res.Reason)
}

func TestSubmit_EqualPayloadMergesAsVote(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    ctx := context.Background()

    first, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)

    // Same payload with cards in a different order from another identity.
    res, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("2.2.2.2"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeMergedAsVote, res.Outcome)
    assert.Equal(t, first.SightingID, res.SightingID)
    assert.True(t, res.DirtyVote)
    assert.False(t, res.Broadcast)
    assert.Nil(t, res.Group)

    g := activeSnapshot(t, f, "Kadan", "Ben")
    require.Len(t, g.Sightings, 1)
    assert.Len(t, g.Sightings[0].ClientVotes, 2)
    assert.Equal(t, 1, f.markCalls[first.SightingID])
}

func TestSubmit_DifferentPayloadAddsSighting(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    ctx := context.Background()

    _, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)
    res, err := r.Submit(ctx, "Kadan", "Ben", seriaSighting(), ident("3.3.3.3"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeInserted, res.Outcome)

    g := activeSnapshot(t, f, "Kadan", "Ben")
    assert.Len(t, g.Sightings, 2)
}

func TestSubmit_BannedIdentityInsertsHidden(t *testing.T) {
    f := newFakeStore()
    f.clientBans["6.6.6.6"] = testNow.Add(time.Hour)
    r := newTestReconciler(f)

    res, err := r.Submit(context.Background(), "Kadan", "Ben", weiSighting(), ident("6.6.6.6"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeInsertedHidden, res.Outcome)
    assert.False(t, res.Broadcast, "hidden inserts must only notify the submitter")
    assert.False(t, res.DirtyProcessing)
    require.NotNil(t, res.Group)

    g := activeSnapshot(t, f, "Kadan", "Ben")
    require.Len(t, g.Sightings, 1)
    s := g.Sightings[0]
    assert.True(t, s.Hidden)
    assert.False(t, s.RequiresProcessing)
    require.Len(t, s.ClientVotes, 1)
    assert.Equal(t, model.Upvote, s.ClientVotes[0].Direction)
}

func TestSubmit_ExpiredBanDoesNotHide(t *testing.T) {
    f := newFakeStore()
    f.clientBans["6.6.6.6"] = testNow.Add(-time.Minute)
    r := newTestReconciler(f)

    res, err := r.Submit(context.Background(), "Kadan", "Ben", weiSighting(), ident("6.6.6.6"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeInserted, res.Outcome)
}

func TestSubmit_UserBanTakesPrecedence(t *testing.T) {
    f := newFakeStore()
    // The user record exists and is not banned; the stale weak-identity ban
    // must not apply to an authenticated submitter.
    f.userRecord["user-1"] = time.Time{}
    f.clientBans["1.1.1.1"] = testNow.Add(time.Hour)
    r := newTestReconciler(f)

    res, err := r.Submit(context.Background(), "Kadan", "Ben", weiSighting(), model.Identity{ClientID: "1.1.1.1", UserID: "user-1"})
    require.NoError(t, err)
    assert.Equal(t, OutcomeInserted, res.Outcome)
}

func TestSubmit_ConfirmingHiddenUnhidesAndDropsOtherHidden(t *testing.T) {
    f := newFakeStore()
    f.clientBans["6.6.6.6"] = testNow.Add(time.Hour)
    f.clientBans["7.7.7.7"] = testNow.Add(time.Hour)
    r := newTestReconciler(f)
    ctx := context.Background()

    banned, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("6.6.6.6"))
    require.NoError(t, err)
    require.Equal(t, OutcomeInsertedHidden, banned.Outcome)
    other, err := r.Submit(ctx, "Kadan", "Ben", seriaSighting(), ident("7.7.7.7"))
    require.NoError(t, err)
    require.Equal(t, OutcomeInsertedHidden, other.Outcome)

    // A clean identity confirms the first hidden payload.
    res, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("2.2.2.2"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeMergedAsVote, res.Outcome)
    assert.Equal(t, banned.SightingID, res.SightingID)
    assert.True(t, res.Broadcast, "an unhide must be pushed to subscribers")
    require.NotNil(t, res.Group)

    // The broadcast snapshot carries the confirmed sighting and drops the
    // still-hidden one.
    require.Len(t, res.Group.Sightings, 1)
    assert.Equal(t, banned.SightingID, res.Group.Sightings[0].ID)
    assert.False(t, res.Group.Sightings[0].Hidden)

    // Persisted state: confirmed sighting unhidden, the other stays hidden.
    g := activeSnapshot(t, f, "Kadan", "Ben")
    require.Len(t, g.Sightings, 2)
    for _, s := range g.Sightings {
        if s.ID == banned.SightingID {
            assert.False(t, s.Hidden)
            assert.Len(t, s.ClientVotes, 2)
        } else {
            assert.True(t, s.Hidden)
        }
    }
}

func TestSubmit_CrossServerConflictRejected(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    ctx := context.Background()

    _, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)

    res, err := r.Submit(ctx, "Trixion", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeRejected, res.Outcome)
    assert.Equal(t, RejectCrossServer, res.Reason)
    assert.Nil(t, activeSnapshot(t, f, "Trixion", "Ben"))
}

func TestSubmit_CrossServerAllowedAfterExpiry(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    _, err := r.Submit(context.Background(), "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)

    // Next window, six hours later: Kadan's group has expired.
    later := time.Date(2024, 5, 1, 19, 5, 0, 0, time.UTC)
    r2 := NewReconciler(f, testCatalog(), func() time.Time { return later })
    res, err := r2.Submit(context.Background(), "Trixion", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeInserted, res.Outcome)
}

func TestSubmit_PayloadRaceRetriedAsVote(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    ctx := context.Background()

    // Between this submission's dedup scan and its write, a competing
    // transaction inserts the same payload.
    f.raceOnInsert = func() {
        winner := weiSighting()
        winner.ID = "winner"
        winner.UploadedBy = "9.9.9.9"
        winner.CreatedAt = testNow
        g := f.groups[0]
        f.sightings[winner.ID] = &storedSighting{groupID: g.ID, s: *winner}
        f.nextVoteID++
        f.votes = append(f.votes, &model.Vote{ID: f.nextVoteID, SightingID: winner.ID, ClientID: "9.9.9.9", Direction: model.Upvote})
    }

    res, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeMergedAsVote, res.Outcome)
    assert.Equal(t, "winner", res.SightingID)

    g := activeSnapshot(t, f, "Kadan", "Ben")
    require.Len(t, g.Sightings, 1)
    assert.Len(t, g.Sightings[0].ClientVotes, 2)
}

func TestSubmit_GroupCreateRaceAdoptsWinner(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)

    f.raceOnCreateGroup = func() {
        f.nextGroupID++
        f.groups = append(f.groups, &model.MerchantGroup{
            ID:                f.nextGroupID,
            Server:            "Kadan",
            MerchantName:      "Ben",
            AppearanceStart:   time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC),
            AppearanceExpires: time.Date(2024, 5, 1, 13, 25, 0, 0, time.UTC),
        })
    }

    res, err := r.Submit(context.Background(), "Kadan", "Ben", weiSighting(), ident("1.1.1.1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeInserted, res.Outcome)
    assert.Len(t, f.groups, 1, "no second group may be created for the same window")

    g := activeSnapshot(t, f, "Kadan", "Ben")
    require.NotNil(t, g)
    assert.Len(t, g.Sightings, 1)
}

func TestScenario_KadanConsensus(t *testing.T) {
    f := newFakeStore()
    r := newTestReconciler(f)
    ctx := context.Background()

    // I1 reports payload P: group created with one sighting, one vote.
    p1, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("I1"))
    require.NoError(t, err)
    require.Equal(t, OutcomeInserted, p1.Outcome)
    g := activeSnapshot(t, f, "Kadan", "Ben")
    require.Len(t, g.Sightings, 1)
    assert.Len(t, g.Sightings[0].ClientVotes, 1)

    // I2 reports identical P: still one sighting, two votes, same id.
    p2, err := r.Submit(ctx, "Kadan", "Ben", weiSighting(), ident("I2"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeMergedAsVote, p2.Outcome)
    assert.Equal(t, p1.SightingID, p2.SightingID)
    g = activeSnapshot(t, f, "Kadan", "Ben")
    require.Len(t, g.Sightings, 1)
    assert.Len(t, g.Sightings[0].ClientVotes, 2)

    // I3 reports a different payload Q: two sightings in the group.
    q, err := r.Submit(ctx, "Kadan", "Ben", seriaSighting(), ident("I3"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeInserted, q.Outcome)
    g = activeSnapshot(t, f, "Kadan", "Ben")
    assert.Len(t, g.Sightings, 2)

    // Ban I1; in the next window I1's new report P' is stored hidden.
    f.clientBans["I1"] = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
    later := time.Date(2024, 5, 1, 19, 5, 0, 0, time.UTC)
    r2 := NewReconciler(f, testCatalog(), func() time.Time { return later })

    pPrime := &model.Sighting{Zone: "Blackrose Chapel", Cards: []model.Card{{Name: "Thirain", Rarity: 2}}}
    hiddenRes, err := r2.Submit(ctx, "Kadan", "Ben", pPrime, ident("I1"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeInsertedHidden, hiddenRes.Outcome)

    // Only I1 sees it until a non-banned identity submits the same payload.
    var next *model.MerchantGroup
    for _, grp := range f.groups {
        if grp.Server == "Kadan" && grp.IsActive(later) {
            next = f.groupSnapshot(grp)
        }
    }
    require.NotNil(t, next)
    assert.Empty(t, PublicView(next).Sightings)
    assert.Len(t, Project(next, ident("I1")).Sightings, 1)

    confirm := &model.Sighting{Zone: "Blackrose Chapel", Cards: []model.Card{{Name: "Thirain", Rarity: 2}}}
    confRes, err := r2.Submit(ctx, "Kadan", "Ben", confirm, ident("I4"))
    require.NoError(t, err)
    assert.Equal(t, OutcomeMergedAsVote, confRes.Outcome)
    assert.True(t, confRes.Broadcast)
    require.NotNil(t, confRes.Group)
    require.Len(t, confRes.Group.Sightings, 1)
    assert.False(t, confRes.Group.Sightings[0].Hidden)
}
