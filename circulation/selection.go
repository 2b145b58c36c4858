package circulation

import (
	"github.com/google/uuid"
)

// CandidateCopy is a copy of the book under consideration for binding,
// together with the date ranges of every loan currently holding it.
type CandidateCopy struct {
	ID            uuid.UUID
	InventoryCode string
	State         CopyState
	Claims        []DateRange
}

// freeFor reports whether the copy is lendable and none of its current
// claims overlap the requested range.
func (c CandidateCopy) freeFor(rng DateRange) bool {
	if !c.State.Lendable() {
		return false
	}

	for _, claim := range c.Claims {
		if claim.Overlaps(rng) {
			return false
		}
	}

	return true
}

// SelectCopy is the single deterministic copy-selection algorithm.
//
// Priority one: when the loan already has a copy bound (currentCopyID),
// reuse it if it is still lendable and free for the requested range.
// Otherwise scan the candidates in the order given (the engine orders them
// by inventory code) and pick the first copy free for the range.
//
// This scan is the authority on specific-copy conflicts. The caller's
// slot-count check guards the other half of the invariant: active
// reservations occupy aggregate capacity without being bound to a copy,
// so an approval needs both the slot count (occupied < total per day,
// loans plus reservations) and a copy this scan finds free. Fragmented
// availability — every day free in aggregate, but no single copy free for
// the whole range — fails here and must surface as not available.
func SelectCopy(currentCopyID *uuid.UUID, candidates []CandidateCopy, rng DateRange) (uuid.UUID, bool) {
	if currentCopyID != nil {
		for _, candidate := range candidates {
			if candidate.ID == *currentCopyID && candidate.freeFor(rng) {
				return candidate.ID, true
			}
		}
	}

	for _, candidate := range candidates {
		if candidate.freeFor(rng) {
			return candidate.ID, true
		}
	}

	return uuid.Nil, false
}
