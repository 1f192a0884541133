package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

func TestSubmitCreatesThenMerges(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	first, err := s.Submit(ctx, "Hey Jude", "The Beatles", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := s.Submit(ctx, "  hey JUDE ", "", domain.Requester{Name: "bob"})
	require.NoError(t, err)
	assert.False(t, second.Created, "same title merges instead of duplicating")
	assert.Equal(t, first.RequestID, second.RequestID)

	req, err := s.GetRequest(ctx, first.RequestID)
	require.NoError(t, err)
	assert.Len(t, req.Requesters, 2)
	assert.Equal(t, 0, req.Votes, "merging never adds votes")
	assert.Equal(t, 2, req.Score())
}

func TestSubmitAfterPlayedStartsFresh(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	first, err := s.Submit(ctx, "Wonderwall", "Oasis", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	require.NoError(t, s.MarkPlayed(ctx, first.RequestID))

	second, err := s.Submit(ctx, "Wonderwall", "Oasis", domain.Requester{Name: "bob"})
	require.NoError(t, err)
	assert.True(t, second.Created, "a played request is never a merge target")
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

func TestCastVoteOncePerVoter(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)

	outcome, err := s.CastVote(ctx, res.RequestID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteAccepted, outcome)

	outcome, err = s.CastVote(ctx, res.RequestID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlreadyVoted, outcome)

	req, err := s.GetRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Votes, "rejected duplicate must not bump the count")
	assert.Len(t, s.VotesFor(res.RequestID), 1)
}

func TestCastVoteOnPlayed(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	require.NoError(t, s.MarkPlayed(ctx, res.RequestID))

	outcome, err := s.CastVote(ctx, res.RequestID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPlayed, outcome)

	req, err := s.GetRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 0, req.Votes)
}

func TestCastVoteUnknownRequest(t *testing.T) {
	s := New(nil)
	_, err := s.CastVote(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestConcurrentDistinctVotersAllCount(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)

	const voters = 50
	var wg sync.WaitGroup
	outcomes := make([]domain.VoteOutcome, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := s.CastVote(ctx, res.RequestID, fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		assert.Equal(t, domain.VoteAccepted, outcome, "voter %d", i)
	}
	req, err := s.GetRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, voters, req.Votes, "no lost updates under concurrency")
	assert.Len(t, s.VotesFor(res.RequestID), voters)
}

func TestConcurrentSameVoterCountsOnce(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)

	const attempts = 20
	var wg sync.WaitGroup
	accepted := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := s.CastVote(ctx, res.RequestID, "same-user")
			assert.NoError(t, err)
			if outcome == domain.VoteAccepted {
				accepted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(accepted)

	assert.Len(t, accepted, 1, "exactly one attempt wins")
	req, err := s.GetRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 1, req.Votes)
}

func TestKioskVotersBypassLedger(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		outcome, err := s.CastVote(ctx, res.RequestID, domain.NewKioskVoterID())
		require.NoError(t, err)
		assert.Equal(t, domain.VoteAccepted, outcome)
	}

	req, err := s.GetRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 5, req.Votes)
}

func TestLockIsSingleton(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	a, err := s.Submit(ctx, "Song A", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	b, err := s.Submit(ctx, "Song B", "", domain.Requester{Name: "bob"})
	require.NoError(t, err)

	require.NoError(t, s.Lock(ctx, a.RequestID))
	require.NoError(t, s.Lock(ctx, b.RequestID))

	requests, err := s.ListRequests(ctx)
	require.NoError(t, err)

	locked := 0
	for _, req := range requests {
		if req.IsLocked() {
			locked++
			assert.Equal(t, b.RequestID, req.ID, "latest lock wins")
		}
	}
	assert.Equal(t, 1, locked, "at most one locked unplayed request")
}

func TestConcurrentLocksLeaveOneWinner(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	ids := make([]string, 10)
	for i := range ids {
		res, err := s.Submit(ctx, fmt.Sprintf("Song %d", i), "", domain.Requester{Name: "ana"})
		require.NoError(t, err)
		ids[i] = res.RequestID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, s.Lock(ctx, id))
		}(id)
	}
	wg.Wait()

	requests, err := s.ListRequests(ctx)
	require.NoError(t, err)
	locked := 0
	for _, req := range requests {
		if req.IsLocked() {
			locked++
		}
	}
	assert.Equal(t, 1, locked)
}

func TestLockPlayedFails(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	require.NoError(t, s.MarkPlayed(ctx, res.RequestID))

	assert.ErrorIs(t, s.Lock(ctx, res.RequestID), domain.ErrRequestPlayed)
}

func TestUnlockOnlyClearsTarget(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	a, err := s.Submit(ctx, "Song A", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	b, err := s.Submit(ctx, "Song B", "", domain.Requester{Name: "bob"})
	require.NoError(t, err)

	require.NoError(t, s.Lock(ctx, a.RequestID))

	// Unlocking an unlocked request is a no-op and must not touch the holder.
	require.NoError(t, s.Unlock(ctx, b.RequestID))
	req, err := s.GetRequest(ctx, a.RequestID)
	require.NoError(t, err)
	assert.True(t, req.IsLocked())

	require.NoError(t, s.Unlock(ctx, a.RequestID))
	req, err = s.GetRequest(ctx, a.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, req.Status)
}

func TestMarkPlayedDropsLock(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	require.NoError(t, s.Lock(ctx, res.RequestID))
	require.NoError(t, s.MarkPlayed(ctx, res.RequestID))

	req, err := s.GetRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlayed, req.Status)
	assert.False(t, req.IsLocked())
}

func TestResetClearsEverything(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	_, err = s.CastVote(ctx, res.RequestID, "user-1")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))

	requests, err := s.ListRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.Empty(t, s.VotesFor(res.RequestID), "vote ledger goes with the request")

	// Post-reset the old title creates a new request.
	again, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "bob"})
	require.NoError(t, err)
	assert.True(t, again.Created)
}

func TestListRequestsNewestFirst(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Submit(ctx, fmt.Sprintf("Song %d", i), "", domain.Requester{Name: "ana"})
		require.NoError(t, err)
	}

	requests, err := s.ListRequests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 3)
	assert.Equal(t, "Song 2", requests[0].Title)
	assert.Equal(t, "Song 0", requests[2].Title)
}

func TestListRequestsReturnsCopies(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	res, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)

	requests, err := s.ListRequests(ctx)
	require.NoError(t, err)
	requests[0].Votes = 99
	requests[0].Requesters[0].Name = "mutated"

	req, err := s.GetRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 0, req.Votes)
	assert.Equal(t, "ana", req.Requesters[0].Name)
}

func TestClosedStoreRejectsEverything(t *testing.T) {
	s := New(nil)
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err := s.Submit(ctx, "Song", "", domain.Requester{Name: "ana"})
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
	_, err = s.ListRequests(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreClosed)
}

func TestPurgePlayedRemovesOnlyOldPlayed(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	played, err := s.Submit(ctx, "Old Played", "", domain.Requester{Name: "ana"})
	require.NoError(t, err)
	require.NoError(t, s.MarkPlayed(ctx, played.RequestID))
	pending, err := s.Submit(ctx, "Still Pending", "", domain.Requester{Name: "bob"})
	require.NoError(t, err)

	// Retention 0 makes the cutoff "now", so the fresh played row qualifies.
	removed, err := s.PurgePlayed(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetRequest(ctx, played.RequestID)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
	_, err = s.GetRequest(ctx, pending.RequestID)
	assert.NoError(t, err)

	// Positive retention keeps recent played rows.
	replay, err := s.Submit(ctx, "Recent Played", "", domain.Requester{Name: "cat"})
	require.NoError(t, err)
	require.NoError(t, s.MarkPlayed(ctx, replay.RequestID))
	removed, err = s.PurgePlayed(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
