package reconcile

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/lostmerchants/tracker/internal/model"
)

// seedSighting stores a sighting directly so ledger tests do not depend on
// the reconciler.
func seedSighting(f *fakeStore, id string) {
    f.nextGroupID++
    f.groups = append(f.groups, &model.MerchantGroup{ID: f.nextGroupID, Server: "Kadan", MerchantName: "Ben"})
    f.sightings[id] = &storedSighting{groupID: f.nextGroupID, s: model.Sighting{ID: id, Zone: "Bilbrin Forest"}}
}

func TestVoteLedger_FirstVote(t *testing.T) {
    f := newFakeStore()
    seedSighting(f, "s1")
    l := NewVoteLedger(f)

    res, err := l.Apply(context.Background(), "s1", ident("1.1.1.1"), model.Upvote)
    require.NoError(t, err)
    assert.True(t, res.Applied)
    assert.Equal(t, model.Upvote, res.Direction)

    require.Len(t, f.votes, 1)
    assert.Equal(t, model.Upvote, f.votes[0].Direction)
    assert.True(t, f.sightings["s1"].s.RequiresVoteProcessing)
    assert.Equal(t, 1, f.markCalls["s1"])
}

func TestVoteLedger_Idempotent(t *testing.T) {
    f := newFakeStore()
    seedSighting(f, "s1")
    l := NewVoteLedger(f)
    ctx := context.Background()

    _, err := l.Apply(ctx, "s1", ident("1.1.1.1"), model.Upvote)
    require.NoError(t, err)
    res, err := l.Apply(ctx, "s1", ident("1.1.1.1"), model.Upvote)
    require.NoError(t, err)

    assert.False(t, res.Applied, "repeating the same direction is a no-op")
    assert.Len(t, f.votes, 1)
    assert.Equal(t, 1, f.markCalls["s1"], "dirty flag must be written only once")
}

func TestVoteLedger_DirectionChangeUpdatesInPlace(t *testing.T) {
    f := newFakeStore()
    seedSighting(f, "s1")
    l := NewVoteLedger(f)
    ctx := context.Background()

    _, err := l.Apply(ctx, "s1", ident("1.1.1.1"), model.Upvote)
    require.NoError(t, err)
    res, err := l.Apply(ctx, "s1", ident("1.1.1.1"), model.Downvote)
    require.NoError(t, err)

    assert.True(t, res.Applied)
    require.Len(t, f.votes, 1, "no duplicate vote record on direction change")
    assert.Equal(t, model.Downvote, f.votes[0].Direction)
    assert.Equal(t, 2, f.markCalls["s1"])
}

func TestVoteLedger_PrefersStrongIdentity(t *testing.T) {
    f := newFakeStore()
    seedSighting(f, "s1")
    l := NewVoteLedger(f)
    ctx := context.Background()

    // Vote as an authenticated user, then again from a different address.
    _, err := l.Apply(ctx, "s1", model.Identity{ClientID: "1.1.1.1", UserID: "user-1"}, model.Upvote)
    require.NoError(t, err)
    res, err := l.Apply(ctx, "s1", model.Identity{ClientID: "9.9.9.9", UserID: "user-1"}, model.Downvote)
    require.NoError(t, err)

    assert.True(t, res.Applied)
    require.Len(t, f.votes, 1, "strong identity must match across addresses")
    assert.Equal(t, model.Downvote, f.votes[0].Direction)
}

func TestVoteLedger_InvalidInputIsNoop(t *testing.T) {
    f := newFakeStore()
    seedSighting(f, "s1")
    l := NewVoteLedger(f)
    ctx := context.Background()

    res, err := l.Apply(ctx, "", ident("1.1.1.1"), model.Upvote)
    require.NoError(t, err)
    assert.False(t, res.Applied)

    res, err = l.Apply(ctx, "s1", ident("1.1.1.1"), model.VoteDirection(0))
    require.NoError(t, err)
    assert.False(t, res.Applied)
    assert.Empty(t, f.votes)
}
