package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepInsideResetsVotes(t *testing.T) {
	t.Parallel()

	for _, cur := range []Status{
		{State: StateUnknown},
		{State: StateInside, OutsideVotes: 2},
		{State: StateOutsidePending, OutsideVotes: 7},
	} {
		tr := Step(cur, Inside)
		assert.Equal(t, Status{State: StateInside}, tr.Next)
		assert.Equal(t, ReportInside, tr.Report)
		assert.True(t, tr.CancelGrace)
		assert.False(t, tr.StartGrace)
	}
}

func TestStepBorderlineRetainsState(t *testing.T) {
	t.Parallel()

	inside := Status{State: StateInside}
	tr := Step(inside, Borderline)
	assert.Equal(t, inside, tr.Next)
	assert.Equal(t, ReportInside, tr.Report)

	voting := Status{State: StateUnknown, OutsideVotes: 2}
	tr = Step(voting, Borderline)
	assert.Equal(t, voting, tr.Next, "borderline must not touch the vote count")
	assert.Equal(t, ReportBorderline, tr.Report)

	pending := Status{State: StateOutsidePending, OutsideVotes: 3}
	tr = Step(pending, Borderline)
	assert.Equal(t, pending, tr.Next)
	assert.False(t, tr.CancelGrace)
	assert.False(t, tr.StartGrace)
}

func TestStepThreeStrikes(t *testing.T) {
	t.Parallel()

	cur := Status{State: StateInside}

	tr := Step(cur, CandidateOutside)
	assert.Equal(t, Status{State: StateInside, OutsideVotes: 1}, tr.Next)
	assert.Equal(t, ReportBorderline, tr.Report)
	assert.False(t, tr.StartGrace)

	tr = Step(tr.Next, CandidateOutside)
	assert.Equal(t, 2, tr.Next.OutsideVotes)
	assert.NotEqual(t, StateOutsidePending, tr.Next.State)

	tr = Step(tr.Next, CandidateOutside)
	require.Equal(t, StateOutsidePending, tr.Next.State)
	assert.Equal(t, 3, tr.Next.OutsideVotes)
	assert.Equal(t, ReportOutside, tr.Report)
	assert.True(t, tr.StartGrace)
	assert.True(t, tr.EnteredOutside)

	tr = Step(tr.Next, CandidateOutside)
	assert.Equal(t, StateOutsidePending, tr.Next.State)
	assert.Equal(t, 4, tr.Next.OutsideVotes)
	assert.False(t, tr.EnteredOutside, "already outside")
}

func TestStepOutsideVoteKeepsRetainedState(t *testing.T) {
	t.Parallel()

	tr := Step(Status{State: StateInside}, CandidateOutside)
	require.Equal(t, Status{State: StateInside, OutsideVotes: 1}, tr.Next)
	assert.Equal(t, ReportBorderline, tr.Report)
	assert.False(t, tr.CancelGrace)

	tr = Step(tr.Next, Borderline)
	assert.Equal(t, Status{State: StateInside, OutsideVotes: 1}, tr.Next)
	assert.Equal(t, ReportInside, tr.Report, "a wavering fix still reads as inside")

	tr = Step(Status{State: StateUnknown}, CandidateOutside)
	assert.Equal(t, Status{State: StateUnknown, OutsideVotes: 1}, tr.Next)
	assert.Equal(t, ReportBorderline, tr.Report)
}

func TestStepNeverEvictsBeforeThreeVotesSinceInside(t *testing.T) {
	t.Parallel()

	seq := []Classification{CandidateOutside, CandidateOutside, Inside, CandidateOutside, Borderline, CandidateOutside}
	cur := Status{}
	for i, c := range seq {
		tr := Step(cur, c)
		assert.NotEqual(t, StateOutsidePending, tr.Next.State, "step %d", i)
		cur = tr.Next
	}
	assert.Equal(t, 2, cur.OutsideVotes)
}

func TestStepIgnoredAndEvicted(t *testing.T) {
	t.Parallel()

	cur := Status{State: StateInside, OutsideVotes: 2}
	tr := Step(cur, Ignored)
	assert.Equal(t, cur, tr.Next)
	assert.Empty(t, tr.Report)

	gone := Status{State: StateEvicted, OutsideVotes: 3}
	tr = Step(gone, Inside)
	assert.Equal(t, gone, tr.Next)
	assert.Empty(t, tr.Report)
}
