package circulation

import (
	"time"

	"github.com/google/uuid"
)

// ClaimKind says whether a claim stems from a loan or a reservation.
type ClaimKind string

const (
	ClaimLoan        ClaimKind = "loan"
	ClaimReservation ClaimKind = "reservation"
)

// Claim is one date-range occupation of a book's capacity: a loan in a
// copy-holding state or an active reservation. The engine gathers claims
// from the database (already filtered for excluded users or loans) and the
// pure functions below count them per day.
type Claim struct {
	Kind   ClaimKind
	ID     uuid.UUID
	UserID uuid.UUID
	Range  DateRange
}

// DayAvailability is the per-day breakdown of free versus total capacity.
type DayAvailability struct {
	Available int
	Total     int
}

// ComputeDailyAvailability returns, for every day in the window, how many
// lendable copies remain free after subtracting the claims covering that day.
// Available never goes below zero even if the claim rows over-commit.
func ComputeDailyAvailability(totalLendable int, claims []Claim, window DateRange) map[time.Time]DayAvailability {
	result := make(map[time.Time]DayAvailability, window.Days())

	window.EachDay(func(day time.Time) {
		occupied := 0
		for _, claim := range claims {
			if claim.Range.Contains(day) {
				occupied++
			}
		}

		available := totalLendable - occupied
		if available < 0 {
			available = 0
		}

		result[day] = DayAvailability{Available: available, Total: totalLendable}
	})

	return result
}

// RangeIsFree reports whether occupied < total holds for every day of the
// requested range. The per-day check matters: a multi-week range can be free
// at the start and saturated near the end.
func RangeIsFree(totalLendable int, claims []Claim, rng DateRange) bool {
	if totalLendable <= 0 {
		return false
	}

	free := true

	rng.EachDay(func(day time.Time) {
		occupied := 0
		for _, claim := range claims {
			if claim.Range.Contains(day) {
				occupied++
			}
		}

		if occupied >= totalLendable {
			free = false
		}
	})

	return free
}

// FilterClaims returns the claims that do not belong to the excluded user
// and are not the excluded claim itself. Either exclusion may be nil.
// A user checking a range they already hold must not be blocked by their own
// claim.
func FilterClaims(claims []Claim, excludeUser *uuid.UUID, excludeID *uuid.UUID) []Claim {
	filtered := make([]Claim, 0, len(claims))

	for _, claim := range claims {
		if excludeUser != nil && claim.UserID == *excludeUser {
			continue
		}
		if excludeID != nil && claim.ID == *excludeID {
			continue
		}

		filtered = append(filtered, claim)
	}

	return filtered
}
