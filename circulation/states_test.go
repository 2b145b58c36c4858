package circulation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
)

func Test_CopyState_Lendable(t *testing.T) {
	assert.True(t, circulation.CopyAvailable.Lendable())
	assert.True(t, circulation.CopyReserved.Lendable())
	assert.True(t, circulation.CopyLent.Lendable())
	assert.False(t, circulation.CopyLost.Lendable())
	assert.False(t, circulation.CopyDamaged.Lendable())
	assert.False(t, circulation.CopyMaintenance.Lendable())
}

func Test_CopyState_IsValid(t *testing.T) {
	assert.True(t, circulation.CopyAvailable.IsValid())
	assert.False(t, circulation.CopyState("misplaced").IsValid())
	assert.False(t, circulation.CopyState("").IsValid())
}

func Test_LoanState_Lifecycle(t *testing.T) {
	tests := []struct {
		state     circulation.LoanState
		holdsCopy bool
		terminal  bool
	}{
		{state: circulation.LoanPending, holdsCopy: false, terminal: false},
		{state: circulation.LoanScheduled, holdsCopy: true, terminal: false},
		{state: circulation.LoanAwaitingPickup, holdsCopy: true, terminal: false},
		{state: circulation.LoanActive, holdsCopy: true, terminal: false},
		{state: circulation.LoanOverdue, holdsCopy: true, terminal: false},
		{state: circulation.LoanReturned, holdsCopy: false, terminal: true},
		{state: circulation.LoanCancelled, holdsCopy: false, terminal: true},
		{state: circulation.LoanExpired, holdsCopy: false, terminal: true},
	}

	for _, tc := range tests {
		t.Run(string(tc.state), func(t *testing.T) {
			assert.True(t, tc.state.IsValid())
			assert.Equal(t, tc.holdsCopy, tc.state.HoldsCopy())
			assert.Equal(t, tc.terminal, tc.state.Terminal())
			assert.Equal(t, tc.holdsCopy, tc.state.ActiveFlag())
		})
	}
}

func Test_LoanStatesHoldingCopy_MatchesHoldsCopy(t *testing.T) {
	holding := circulation.LoanStatesHoldingCopy()

	assert.Len(t, holding, 4)
	for _, s := range holding {
		assert.True(t, circulation.LoanState(s).HoldsCopy())
	}
}

func Test_LoanStatesNonTerminal_IsPendingPlusHolding(t *testing.T) {
	nonTerminal := circulation.LoanStatesNonTerminal()

	assert.Len(t, nonTerminal, 5)
	assert.Contains(t, nonTerminal, string(circulation.LoanPending))
	for _, s := range nonTerminal {
		assert.False(t, circulation.LoanState(s).Terminal())
	}
}

func Test_ReservationState_IsValid(t *testing.T) {
	assert.True(t, circulation.ReservationActive.IsValid())
	assert.True(t, circulation.ReservationCancelled.IsValid())
	assert.True(t, circulation.ReservationPromoted.IsValid())
	assert.False(t, circulation.ReservationState("waiting").IsValid())
}
