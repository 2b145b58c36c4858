package circulation_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
)

func loanClaim(userID uuid.UUID, rng circulation.DateRange) circulation.Claim {
	return circulation.Claim{Kind: circulation.ClaimLoan, ID: uuid.New(), UserID: userID, Range: rng}
}

func reservationClaim(userID uuid.UUID, rng circulation.DateRange) circulation.Claim {
	return circulation.Claim{Kind: circulation.ClaimReservation, ID: uuid.New(), UserID: userID, Range: rng}
}

func Test_ComputeDailyAvailability(t *testing.T) {
	window := mustRange(t, day(2026, 6, 1), day(2026, 6, 5))
	someUser := uuid.New()

	claims := []circulation.Claim{
		loanClaim(someUser, mustRange(t, day(2026, 6, 1), day(2026, 6, 3))),
		reservationClaim(uuid.New(), mustRange(t, day(2026, 6, 3), day(2026, 6, 10))),
	}

	result := circulation.ComputeDailyAvailability(2, claims, window)

	assert.Len(t, result, 5)
	assert.Equal(t, circulation.DayAvailability{Available: 1, Total: 2}, result[day(2026, 6, 1)])
	assert.Equal(t, circulation.DayAvailability{Available: 1, Total: 2}, result[day(2026, 6, 2)])
	assert.Equal(t, circulation.DayAvailability{Available: 0, Total: 2}, result[day(2026, 6, 3)])
	assert.Equal(t, circulation.DayAvailability{Available: 1, Total: 2}, result[day(2026, 6, 4)])
	assert.Equal(t, circulation.DayAvailability{Available: 1, Total: 2}, result[day(2026, 6, 5)])
}

func Test_ComputeDailyAvailability_NeverGoesNegative(t *testing.T) {
	window := mustRange(t, day(2026, 6, 1), day(2026, 6, 1))

	claims := []circulation.Claim{
		loanClaim(uuid.New(), window),
		loanClaim(uuid.New(), window),
		loanClaim(uuid.New(), window),
	}

	result := circulation.ComputeDailyAvailability(1, claims, window)

	assert.Equal(t, circulation.DayAvailability{Available: 0, Total: 1}, result[day(2026, 6, 1)])
}

func Test_RangeIsFree(t *testing.T) {
	requested := mustRange(t, day(2026, 6, 1), day(2026, 6, 10))

	tests := []struct {
		name     string
		total    int
		claims   []circulation.Claim
		expected bool
	}{
		{
			name:     "no_claims_and_one_copy",
			total:    1,
			claims:   nil,
			expected: true,
		},
		{
			name:  "fully_booked_single_copy",
			total: 1,
			claims: []circulation.Claim{
				loanClaim(uuid.New(), mustRange(t, day(2026, 6, 1), day(2026, 6, 10))),
			},
			expected: false,
		},
		{
			name:  "one_saturated_day_blocks_the_whole_range",
			total: 1,
			claims: []circulation.Claim{
				loanClaim(uuid.New(), mustRange(t, day(2026, 6, 10), day(2026, 6, 10))),
			},
			expected: false,
		},
		{
			name:  "reservations_count_against_capacity",
			total: 1,
			claims: []circulation.Claim{
				reservationClaim(uuid.New(), mustRange(t, day(2026, 6, 5), day(2026, 6, 6))),
			},
			expected: false,
		},
		{
			name:  "second_copy_absorbs_the_claim",
			total: 2,
			claims: []circulation.Claim{
				loanClaim(uuid.New(), mustRange(t, day(2026, 6, 1), day(2026, 6, 10))),
			},
			expected: true,
		},
		{
			name:     "zero_lendable_copies_is_never_free",
			total:    0,
			claims:   nil,
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, circulation.RangeIsFree(tc.total, tc.claims, requested))
		})
	}
}

func Test_FilterClaims(t *testing.T) {
	requester := uuid.New()
	other := uuid.New()
	rng := mustRange(t, day(2026, 6, 1), day(2026, 6, 10))

	ownClaim := loanClaim(requester, rng)
	otherClaim := loanClaim(other, rng)
	excludedClaim := reservationClaim(other, rng)

	claims := []circulation.Claim{ownClaim, otherClaim, excludedClaim}

	filteredByUser := circulation.FilterClaims(claims, &requester, nil)
	assert.Equal(t, []circulation.Claim{otherClaim, excludedClaim}, filteredByUser)

	filteredByID := circulation.FilterClaims(claims, nil, &excludedClaim.ID)
	assert.Equal(t, []circulation.Claim{ownClaim, otherClaim}, filteredByID)

	unfiltered := circulation.FilterClaims(claims, nil, nil)
	assert.Equal(t, claims, unfiltered)
}
