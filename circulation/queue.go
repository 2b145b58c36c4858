package circulation

import (
	"sort"

	"github.com/google/uuid"
)

// QueueEntry is the position of one active reservation in a book's queue.
type QueueEntry struct {
	ReservationID uuid.UUID
	Position      int
}

// RenumberQueue computes the dense 1..N renumbering of the remaining active
// reservations after a cancellation or promotion. Entries keep their original
// relative order (by old position). Only entries whose position actually
// changes are returned, so the caller issues one UPDATE per drifted row.
func RenumberQueue(entries []QueueEntry) []QueueEntry {
	ordered := make([]QueueEntry, len(entries))
	copy(ordered, entries)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	changed := make([]QueueEntry, 0, len(ordered))

	for idx, entry := range ordered {
		want := idx + 1
		if entry.Position != want {
			changed = append(changed, QueueEntry{ReservationID: entry.ReservationID, Position: want})
		}
	}

	return changed
}

// NextQueuePosition returns the position a newly filed reservation receives:
// one past the highest existing active position, or 1 for an empty queue.
// The engine calls this under the book row lock so two concurrent requests
// cannot receive the same position.
func NextQueuePosition(entries []QueueEntry) int {
	max := 0
	for _, entry := range entries {
		if entry.Position > max {
			max = entry.Position
		}
	}

	return max + 1
}
