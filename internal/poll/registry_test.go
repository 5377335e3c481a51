package poll

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(NewAllocator(0))
}

func createPickOne(t *testing.T, r *Registry) domain.Snapshot {
	t.Helper()
	snap, err := r.Create(domain.NewPoll{Question: "Pick one", Options: []string{"A", "B"}})
	require.NoError(t, err)
	return snap
}

func assertTallyMatchesVoters(t *testing.T, snap domain.Snapshot) {
	t.Helper()
	assert.Equal(t, uint64(len(snap.Voters)), snap.TotalVotes(), "sum of tallies must equal voter count")
}

func TestRegistry_CreateAssignsIDAndNumbersOptions(t *testing.T) {
	r := newTestRegistry(t)

	snap := createPickOne(t, r)

	assert.Equal(t, domain.PollID(1), snap.ID)
	assert.Equal(t, "Pick one", snap.Question)
	assert.True(t, snap.IsOpen)
	assert.Equal(t, []domain.Option{
		{ID: 1, Label: "A", Votes: 0},
		{ID: 2, Label: "B", Votes: 0},
	}, snap.Options)
	assert.Empty(t, snap.Voters)
}

func TestRegistry_CreateHonoursClosedFlag(t *testing.T) {
	r := newTestRegistry(t)
	closed := false

	snap, err := r.Create(domain.NewPoll{Question: "Later", Options: []string{"x"}, IsOpen: &closed})
	require.NoError(t, err)
	assert.False(t, snap.IsOpen)
}

func TestRegistry_CreateDuplicateIDLeavesExistingPoll(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create(domain.NewPoll{ID: 7, Question: "Original", Options: []string{"A"}})
	require.NoError(t, err)

	_, err = r.Create(domain.NewPoll{ID: 7, Question: "Replacement", Options: []string{"X", "Y"}})
	require.ErrorIs(t, err, domain.ErrPollExists)

	snap, err := r.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "Original", snap.Question)
	assert.Len(t, snap.Options, 1)
	assert.Equal(t, uint64(1), snap.Revision)
}

func TestRegistry_ExplicitIDAdvancesGeneratedIDs(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create(domain.NewPoll{ID: 3, Question: "Explicit"})
	require.NoError(t, err)

	snap, err := r.Create(domain.NewPoll{Question: "Generated"})
	require.NoError(t, err)
	assert.Equal(t, domain.PollID(4), snap.ID)
}

func TestRegistry_GetUnknownPoll(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get(42)
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestRegistry_ListReturnsCopies(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)
	createPickOne(t, r)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, domain.PollID(1), list[0].ID)
	assert.Equal(t, domain.PollID(2), list[1].ID)

	list[0].Options[0].Votes = 99
	snap, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), snap.Options[0].Votes)
}

func TestRegistry_AddOption(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)

	opt, snap, err := r.AddOption(1, 0, "C")
	require.NoError(t, err)
	assert.Equal(t, domain.Option{ID: 3, Label: "C"}, opt)
	assert.Len(t, snap.Options, 3)
	assert.Equal(t, uint64(2), snap.Revision)

	opt, _, err = r.AddOption(1, 10, "J")
	require.NoError(t, err)
	assert.Equal(t, domain.OptionID(10), opt.ID)
}

func TestRegistry_AddOptionErrors(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)

	_, _, err := r.AddOption(99, 1, "nope")
	assert.ErrorIs(t, err, domain.ErrPollNotFound)

	_, _, err = r.AddOption(1, 2, "duplicate")
	assert.ErrorIs(t, err, domain.ErrOptionExists)

	snap, err := r.Get(1)
	require.NoError(t, err)
	assert.Len(t, snap.Options, 2)
	assert.Equal(t, "B", snap.Options[1].Label)
}

func TestRegistry_AddOptionAtMaxIDDoesNotWrap(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)

	_, _, err := r.AddOption(1, math.MaxUint64, "last")
	require.NoError(t, err)

	for _, label := range []string{"x", "y"} {
		_, _, err = r.AddOption(1, 0, label)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}

	_, _, err = r.AddOption(1, math.MaxUint64, "again")
	assert.ErrorIs(t, err, domain.ErrOptionExists)

	snap, err := r.Get(1)
	require.NoError(t, err)
	ids := make(map[domain.OptionID]struct{})
	for _, o := range snap.Options {
		assert.NotZero(t, o.ID)
		ids[o.ID] = struct{}{}
	}
	assert.Len(t, ids, len(snap.Options))
	assert.Len(t, snap.Options, 3)
}

func TestRegistry_GeneratedIDAfterMaxExplicitID(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create(domain.NewPoll{ID: math.MaxUint64, Question: "last", Options: []string{"A"}})
	require.NoError(t, err)

	_, err = r.Create(domain.NewPoll{Question: "next", Options: []string{"A"}})
	assert.ErrorIs(t, err, domain.ErrIDsExhausted)

	assert.Equal(t, 1, r.Len())
	_, err = r.Get(0)
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestRegistry_VoteTwiceSameVoter(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)

	snap, err := r.ApplyVote(domain.Vote{PollID: 1, OptionID: 1, VoterID: "x"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Options[0].Votes)
	assert.Equal(t, []string{"x"}, snap.Voters)

	// Repeat voter gets AlreadyVoted regardless of the option targeted
	for _, optionID := range []domain.OptionID{1, 2, 99} {
		_, err = r.ApplyVote(domain.Vote{PollID: 1, OptionID: optionID, VoterID: "x"})
		assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
	}

	snap, err = r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Options[0].Votes)
	assert.Equal(t, uint64(0), snap.Options[1].Votes)
	assertTallyMatchesVoters(t, snap)
}

func TestRegistry_ClosedPollRejectsEveryone(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)
	_, err := r.ApplyVote(domain.Vote{PollID: 1, OptionID: 1, VoterID: "early"})
	require.NoError(t, err)

	before, _, err := r.SetOpen(1, false)
	require.NoError(t, err)

	for _, voter := range []string{"early", "newcomer"} {
		_, err := r.ApplyVote(domain.Vote{PollID: 1, OptionID: 2, VoterID: voter})
		assert.ErrorIs(t, err, domain.ErrPollClosed, voter)
	}

	after, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegistry_UnknownOptionDoesNotMutate(t *testing.T) {
	r := newTestRegistry(t)
	before := createPickOne(t, r)

	_, err := r.ApplyVote(domain.Vote{PollID: 1, OptionID: 3, VoterID: "v"})
	require.ErrorIs(t, err, domain.ErrOptionNotFound)

	after, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, after.Voters)
}

func TestRegistry_VoteUnknownPoll(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.ApplyVote(domain.Vote{PollID: 5, OptionID: 1, VoterID: "v"})
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestRegistry_SetOpenBumpsRevisionOnlyOnChange(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)

	snap, changed, err := r.SetOpen(1, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, uint64(1), snap.Revision)

	snap, changed, err = r.SetOpen(1, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint64(2), snap.Revision)
	assert.False(t, snap.IsOpen)

	_, _, err = r.SetOpen(9, false)
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestRegistry_ConcurrentDistinctVotersNoLostUpdates(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)

	const voters = 500
	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := range voters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := r.ApplyVote(domain.Vote{PollID: 1, OptionID: 1, VoterID: fmt.Sprintf("voter-%d", i)}); err == nil {
				applied.Add(1)
			}
		}(i)
	}

	// Readers racing the writers must always see a consistent poll
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 200 {
			snap, err := r.Get(1)
			if err == nil {
				assertTallyMatchesVoters(t, snap)
			}
		}
	}()

	wg.Wait()
	<-done

	snap, err := r.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int32(voters), applied.Load())
	assert.Equal(t, uint64(voters), snap.Options[0].Votes)
	assert.Len(t, snap.Voters, voters)
	assert.Equal(t, uint64(voters+1), snap.Revision)
}

func TestRegistry_ConcurrentSameVoterAppliesOnce(t *testing.T) {
	r := newTestRegistry(t)
	createPickOne(t, r)

	var applied, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.ApplyVote(domain.Vote{PollID: 1, OptionID: domain.OptionID(i%2 + 1), VoterID: "same"})
			if err == nil {
				applied.Add(1)
			} else if assert.ErrorIs(t, err, domain.ErrAlreadyVoted) {
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(99), rejected.Load())

	snap, err := r.Get(1)
	require.NoError(t, err)
	assertTallyMatchesVoters(t, snap)
}

func TestSeedDemo(t *testing.T) {
	r := newTestRegistry(t)

	snap, err := SeedDemo(r)
	require.NoError(t, err)
	assert.Equal(t, DemoPollID, snap.ID)
	assert.Len(t, snap.Options, 3)

	next, err := r.Create(domain.NewPoll{Question: "After seed"})
	require.NoError(t, err)
	assert.Equal(t, domain.PollID(2), next.ID)

	_, err = SeedDemo(r)
	assert.ErrorIs(t, err, domain.ErrPollExists)
}
