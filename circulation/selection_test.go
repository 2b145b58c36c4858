package circulation_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
)

func candidate(t *testing.T, code string, state circulation.CopyState, claims ...circulation.DateRange) circulation.CandidateCopy {
	t.Helper()

	return circulation.CandidateCopy{
		ID:            uuid.New(),
		InventoryCode: code,
		State:         state,
		Claims:        claims,
	}
}

func Test_SelectCopy_PicksFirstFreeCandidate(t *testing.T) {
	requested := mustRange(t, day(2026, 7, 1), day(2026, 7, 14))

	busy := candidate(t, "a-001", circulation.CopyAvailable, requested)
	free := candidate(t, "a-002", circulation.CopyAvailable)
	alsoFree := candidate(t, "a-003", circulation.CopyAvailable)

	selected, found := circulation.SelectCopy(nil, []circulation.CandidateCopy{busy, free, alsoFree}, requested)

	assert.True(t, found)
	assert.Equal(t, free.ID, selected)
}

func Test_SelectCopy_PrefersAlreadyBoundCopy(t *testing.T) {
	requested := mustRange(t, day(2026, 7, 1), day(2026, 7, 14))

	first := candidate(t, "a-001", circulation.CopyAvailable)
	bound := candidate(t, "a-002", circulation.CopyReserved)

	selected, found := circulation.SelectCopy(&bound.ID, []circulation.CandidateCopy{first, bound}, requested)

	assert.True(t, found)
	assert.Equal(t, bound.ID, selected)
}

func Test_SelectCopy_FallsBackWhenBoundCopyIsConflicted(t *testing.T) {
	requested := mustRange(t, day(2026, 7, 1), day(2026, 7, 14))

	bound := candidate(t, "a-001", circulation.CopyReserved, requested)
	fallback := candidate(t, "a-002", circulation.CopyAvailable)

	selected, found := circulation.SelectCopy(&bound.ID, []circulation.CandidateCopy{bound, fallback}, requested)

	assert.True(t, found)
	assert.Equal(t, fallback.ID, selected)
}

func Test_SelectCopy_SkipsNonLendableStates(t *testing.T) {
	requested := mustRange(t, day(2026, 7, 1), day(2026, 7, 14))

	lost := candidate(t, "a-001", circulation.CopyLost)
	damaged := candidate(t, "a-002", circulation.CopyDamaged)
	maintenance := candidate(t, "a-003", circulation.CopyMaintenance)
	free := candidate(t, "a-004", circulation.CopyAvailable)

	selected, found := circulation.SelectCopy(nil,
		[]circulation.CandidateCopy{lost, damaged, maintenance, free}, requested)

	assert.True(t, found)
	assert.Equal(t, free.ID, selected)
}

func Test_SelectCopy_FragmentedAvailabilityFindsNoCopy(t *testing.T) {
	// Two copies, each free for part of the requested range but neither free
	// for all of it. Aggregate capacity exists on every single day, yet no
	// copy can serve the whole request.
	requested := mustRange(t, day(2026, 7, 1), day(2026, 7, 10))

	firstHalfBusy := candidate(t, "a-001", circulation.CopyAvailable,
		mustRange(t, day(2026, 7, 1), day(2026, 7, 5)))
	secondHalfBusy := candidate(t, "a-002", circulation.CopyAvailable,
		mustRange(t, day(2026, 7, 6), day(2026, 7, 10)))

	_, found := circulation.SelectCopy(nil,
		[]circulation.CandidateCopy{firstHalfBusy, secondHalfBusy}, requested)

	assert.False(t, found)
}

func Test_SelectCopy_NoCandidates(t *testing.T) {
	requested := mustRange(t, day(2026, 7, 1), day(2026, 7, 14))

	selected, found := circulation.SelectCopy(nil, nil, requested)

	assert.False(t, found)
	assert.Equal(t, uuid.Nil, selected)
}
