package tm2pc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	t.Run("NilOrderIsNone", func(t *testing.T) {
		assert.Equal(t, ResultNone, Aggregate(nil, PhasePrepare))
	})

	t.Run("EmptyParticipantListIsYes", func(t *testing.T) {
		o := &Order{Tasks: nil}
		assert.Equal(t, ResultYes, Aggregate(o, PhasePrepare))
	})

	t.Run("AllDoneIsYes", func(t *testing.T) {
		o := &Order{Tasks: []*TPCTask{
			{Status: StatusDone},
			{Status: StatusDone},
		}}
		assert.Equal(t, ResultYes, Aggregate(o, PhasePrepare))
	})

	t.Run("AnyErrorIsNoRegardlessOfOthers", func(t *testing.T) {
		o := &Order{Tasks: []*TPCTask{
			{Status: StatusDone},
			{Status: StatusError},
			{Status: StatusDoing},
		}}
		assert.Equal(t, ResultNo, Aggregate(o, PhasePrepare))
	})

	t.Run("PendingWithNoFailureIsDoing", func(t *testing.T) {
		o := &Order{Tasks: []*TPCTask{
			{Status: StatusDone},
			{Status: StatusTodo},
		}}
		assert.Equal(t, ResultDoing, Aggregate(o, PhasePrepare))
	})

	t.Run("UnknownCountsAsFailure", func(t *testing.T) {
		o := &Order{Tasks: []*TPCTask{
			{Status: StatusDone},
			{Status: StatusUnknown},
		}}
		assert.Equal(t, ResultNo, Aggregate(o, PhasePrepare))
	})

	t.Run("CommitPhaseReadsCommits", func(t *testing.T) {
		o := &Order{Commits: []*TPCCommit{
			{Status: StatusDone},
			{Status: StatusDoing},
		}}
		assert.Equal(t, ResultDoing, Aggregate(o, PhaseCommit))
	})

	t.Run("CompensatePhaseReadsComps", func(t *testing.T) {
		o := &Order{Comps: []*TPCCompensate{
			{Status: StatusError},
		}}
		assert.Equal(t, ResultNo, Aggregate(o, PhaseCompensate))
	})
}
