package overlay

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/domain"
)

func TestApplyRequestVisibleImmediately(t *testing.T) {
	o := New(time.Minute)

	_, req := o.ApplyRequest("Hey Jude", "The Beatles", domain.Requester{Name: "ana"})

	assert.True(t, strings.HasPrefix(req.ID, OptimisticIDPrefix))
	assert.Equal(t, domain.StatusPending, req.Status,
		"speculative entries are never locked or played")
	assert.Equal(t, 0, req.Votes)

	view := o.View()
	require.Len(t, view.Requests, 1)
	assert.Equal(t, "Hey Jude", view.Requests[0].Title)
}

func TestApplyVoteDelta(t *testing.T) {
	o := New(time.Minute)

	o.ApplyVote("req-1", 4)
	o.ApplyVote("req-1", 5)

	view := o.View()
	assert.Equal(t, 2, view.VoteDeltas["req-1"])
}

func TestDiscardReverts(t *testing.T) {
	o := New(time.Minute)

	token := o.ApplyVote("req-1", 0)
	o.Discard(token)

	view := o.View()
	assert.Empty(t, view.VoteDeltas)

	// Discarding again is a no-op.
	o.Discard(token)
	assert.Equal(t, 0, o.Len())
}

func TestCommitKeepsEntryUntilReconcile(t *testing.T) {
	o := New(time.Minute)

	token := o.ApplyVote("req-1", 4)
	o.Commit(token)

	view := o.View()
	assert.Equal(t, 1, view.VoteDeltas["req-1"],
		"committed entries stay visible until the feed confirms them")
}

func TestReconcileDropsConfirmedVote(t *testing.T) {
	o := New(time.Minute)

	o.ApplyVote("req-1", 4)

	// Authoritative count still 4: delta stays.
	o.Reconcile([]domain.Request{{ID: "req-1", Votes: 4}})
	assert.Equal(t, 1, o.View().VoteDeltas["req-1"])

	// Count reached 5: delta drops, no double count.
	o.Reconcile([]domain.Request{{ID: "req-1", Votes: 5}})
	assert.Empty(t, o.View().VoteDeltas)
}

func TestReconcileDropsVoteForVanishedRequest(t *testing.T) {
	o := New(time.Minute)

	o.ApplyVote("req-1", 0)
	o.Reconcile([]domain.Request{})
	assert.Empty(t, o.View().VoteDeltas)
}

func TestReconcileDropsMatchedRequest(t *testing.T) {
	o := New(time.Minute)

	o.ApplyRequest("Hey Jude", "", domain.Requester{Name: "ana"})

	// Authoritative list gains an unplayed request with the same title.
	o.Reconcile([]domain.Request{{ID: "srv-1", Title: "hey jude", Status: domain.StatusPending}})
	assert.Empty(t, o.View().Requests)
}

func TestReconcileIgnoresPlayedTitleMatch(t *testing.T) {
	o := New(time.Minute)

	o.ApplyRequest("Hey Jude", "", domain.Requester{Name: "ana"})

	// A played request with the same title is not the counterpart: the
	// submission will create a fresh row.
	o.Reconcile([]domain.Request{{ID: "srv-1", Title: "Hey Jude", Status: domain.StatusPlayed}})
	assert.Len(t, o.View().Requests, 1)
}

func TestCommitDeadTokenIsNoop(t *testing.T) {
	o := New(time.Minute)

	token := o.ApplyVote("req-1", 4)
	o.Reconcile([]domain.Request{{ID: "req-1", Votes: 5}})

	// Confirmation raced ahead of the commit; the late commit must not
	// resurrect anything.
	o.Commit(token)
	assert.Equal(t, 0, o.Len())
}

func TestGraceWindowExpiry(t *testing.T) {
	o := New(20 * time.Millisecond)

	o.ApplyVote("req-1", 0)
	o.ApplyRequest("Song", "", domain.Requester{Name: "ana"})

	time.Sleep(40 * time.Millisecond)

	view := o.View()
	assert.Empty(t, view.Requests, "expired entries never reach readers")
	assert.Empty(t, view.VoteDeltas)

	swept := o.Sweep()
	assert.Equal(t, 2, swept)
	assert.Equal(t, 0, o.Len())
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	o := New(time.Minute)

	o.ApplyVote("req-1", 0)
	assert.Equal(t, 0, o.Sweep())
	assert.Equal(t, 1, o.Len())
}
