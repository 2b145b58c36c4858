package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Book is the catalog-level record. AvailableCopies is a derived convenience
// counter for read paths; allocation decisions never trust it and always
// recompute occupancy from the loan and reservation rows live, under lock.
type Book struct {
	ID              uuid.UUID
	Title           string
	ISBN10          string
	ISBN13          string
	EAN             string
	TotalCopies     int
	AvailableCopies int
	DeletedAt       *time.Time
}

// Deleted reports whether the book carries the soft-deletion marker.
func (b Book) Deleted() bool {
	return b.DeletedAt != nil
}

// NewBook is the input for creating a catalog entry together with its
// initial physical copies.
type NewBook struct {
	Title  string
	ISBN10 string
	ISBN13 string
	EAN    string
	Copies int
}

// Identifiers returns the non-empty identifiers of the new book, in a stable
// order, for the cross-column uniqueness check.
func (nb NewBook) Identifiers() []string {
	idents := make([]string, 0, 3)
	for _, ident := range []string{nb.ISBN10, nb.ISBN13, nb.EAN} {
		if ident != "" {
			idents = append(idents, ident)
		}
	}

	return idents
}

// Copy is one physical copy of a book.
type Copy struct {
	ID            uuid.UUID
	BookID        uuid.UUID
	InventoryCode string
	State         CopyState
	Note          string
}

// Loan is a loan request in any lifecycle state. CopyID is nil until a copy
// is bound by approval; a loan in a copy-holding state always has one.
type Loan struct {
	ID             uuid.UUID
	BookID         uuid.UUID
	UserID         uuid.UUID
	CopyID         *uuid.UUID
	Range          DateRange
	State          LoanState
	Active         bool
	PickupDeadline *time.Time
	Notes          string
}

// Reservation is one waiting-list entry. Positions of active reservations
// for a book always form a dense 1..N sequence.
type Reservation struct {
	ID       uuid.UUID
	BookID   uuid.UUID
	UserID   uuid.UUID
	Range    DateRange
	Position int
	State    ReservationState
}
