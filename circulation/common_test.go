package circulation_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
)

func Test_ReasonCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil_error", err: nil, expected: ""},
		{name: "book_not_found", err: circulation.ErrBookNotFound, expected: circulation.ReasonBookNotFound},
		{name: "not_available", err: circulation.ErrNotAvailable, expected: circulation.ReasonNotAvailable},
		{name: "duplicate", err: circulation.ErrDuplicate, expected: circulation.ReasonDuplicate},
		{name: "conflict", err: circulation.ErrConflict, expected: circulation.ReasonConflict},
		{name: "not_found", err: circulation.ErrNotFound, expected: circulation.ReasonNotFound},
		{name: "forbidden", err: circulation.ErrForbidden, expected: circulation.ReasonForbidden},
		{name: "lock_timeout", err: circulation.ErrLockTimeout, expected: circulation.ReasonLockTimeout},
		{name: "integrity", err: circulation.ErrIntegrity, expected: circulation.ReasonIntegrity},
		{name: "invalid_input", err: circulation.ErrInvalidInput, expected: circulation.ReasonValidation},
		{name: "invalid_date_range", err: circulation.ErrInvalidDateRange, expected: circulation.ReasonValidation},
		{
			name:     "wrapped_sentinel_is_still_recognized",
			err:      fmt.Errorf("%w: user already has an open loan", circulation.ErrDuplicate),
			expected: circulation.ReasonDuplicate,
		},
		{
			name:     "joined_sentinel_is_still_recognized",
			err:      errors.Join(circulation.ErrDatabaseOperation, errors.New("connection reset")),
			expected: circulation.ReasonDB,
		},
		{
			name:     "unknown_error_maps_to_db",
			err:      errors.New("something else entirely"),
			expected: circulation.ReasonDB,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, circulation.ReasonCode(tc.err))
		})
	}
}

func Test_Outcome_String(t *testing.T) {
	assert.Equal(t, "ok", circulation.OutcomeOk.String())
	assert.Equal(t, "conflict", circulation.OutcomeConflict.String())
	assert.Equal(t, "not_found", circulation.OutcomeNotFound.String())
	assert.Equal(t, "unknown", circulation.Outcome(99).String())
}
