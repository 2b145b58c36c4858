package circulation_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
)

func Test_RenumberQueue(t *testing.T) {
	first := uuid.New()
	third := uuid.New()
	fifth := uuid.New()

	tests := []struct {
		name     string
		entries  []circulation.QueueEntry
		expected []circulation.QueueEntry
	}{
		{
			name:     "empty_queue_needs_no_changes",
			entries:  nil,
			expected: []circulation.QueueEntry{},
		},
		{
			name: "dense_queue_needs_no_changes",
			entries: []circulation.QueueEntry{
				{ReservationID: first, Position: 1},
				{ReservationID: third, Position: 2},
			},
			expected: []circulation.QueueEntry{},
		},
		{
			name: "gap_after_cancellation_closes_up",
			entries: []circulation.QueueEntry{
				{ReservationID: first, Position: 1},
				{ReservationID: third, Position: 3},
				{ReservationID: fifth, Position: 5},
			},
			expected: []circulation.QueueEntry{
				{ReservationID: third, Position: 2},
				{ReservationID: fifth, Position: 3},
			},
		},
		{
			name: "head_removed_shifts_everyone",
			entries: []circulation.QueueEntry{
				{ReservationID: third, Position: 2},
				{ReservationID: fifth, Position: 3},
			},
			expected: []circulation.QueueEntry{
				{ReservationID: third, Position: 1},
				{ReservationID: fifth, Position: 2},
			},
		},
		{
			name: "unsorted_input_keeps_relative_order_by_old_position",
			entries: []circulation.QueueEntry{
				{ReservationID: fifth, Position: 5},
				{ReservationID: first, Position: 2},
				{ReservationID: third, Position: 4},
			},
			expected: []circulation.QueueEntry{
				{ReservationID: first, Position: 1},
				{ReservationID: third, Position: 2},
				{ReservationID: fifth, Position: 3},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			changed := circulation.RenumberQueue(tc.entries)

			assert.Equal(t, tc.expected, changed)
		})
	}
}

func Test_NextQueuePosition(t *testing.T) {
	assert.Equal(t, 1, circulation.NextQueuePosition(nil))

	entries := []circulation.QueueEntry{
		{ReservationID: uuid.New(), Position: 1},
		{ReservationID: uuid.New(), Position: 2},
	}
	assert.Equal(t, 3, circulation.NextQueuePosition(entries))

	// Positions are renumbered densely on every removal, but the next
	// position is derived from the maximum either way.
	sparse := []circulation.QueueEntry{
		{ReservationID: uuid.New(), Position: 4},
	}
	assert.Equal(t, 5, circulation.NextQueuePosition(sparse))
}
