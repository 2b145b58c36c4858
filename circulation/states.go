package circulation

// CopyState is the lifecycle state of a physical copy.
type CopyState string

const (
	CopyAvailable   CopyState = "available"
	CopyReserved    CopyState = "reserved"
	CopyLent        CopyState = "lent"
	CopyLost        CopyState = "lost"
	CopyDamaged     CopyState = "damaged"
	CopyMaintenance CopyState = "maintenance"
)

// IsValid reports whether s is one of the known copy states.
func (s CopyState) IsValid() bool {
	switch s {
	case CopyAvailable, CopyReserved, CopyLent, CopyLost, CopyDamaged, CopyMaintenance:
		return true
	default:
		return false
	}
}

// Lendable reports whether a copy in this state counts towards capacity and
// may be bound to loans or reservations. Lost, damaged and in-maintenance
// copies are excluded from all allocation decisions.
func (s CopyState) Lendable() bool {
	switch s {
	case CopyLost, CopyDamaged, CopyMaintenance:
		return false
	default:
		return true
	}
}

// LoanState is the lifecycle state of a loan request.
type LoanState string

const (
	LoanPending        LoanState = "pending"
	LoanScheduled      LoanState = "scheduled"
	LoanAwaitingPickup LoanState = "awaiting_pickup"
	LoanActive         LoanState = "active"
	LoanOverdue        LoanState = "overdue"
	LoanReturned       LoanState = "returned"
	LoanCancelled      LoanState = "cancelled"
	LoanExpired        LoanState = "expired"
)

// IsValid reports whether s is one of the known loan states.
func (s LoanState) IsValid() bool {
	switch s {
	case LoanPending, LoanScheduled, LoanAwaitingPickup, LoanActive, LoanOverdue,
		LoanReturned, LoanCancelled, LoanExpired:
		return true
	default:
		return false
	}
}

// HoldsCopy reports whether a loan in this state must have exactly one copy
// bound to it. These are the states that occupy capacity.
func (s LoanState) HoldsCopy() bool {
	switch s {
	case LoanScheduled, LoanAwaitingPickup, LoanActive, LoanOverdue:
		return true
	default:
		return false
	}
}

// Terminal reports whether the loan is closed.
func (s LoanState) Terminal() bool {
	switch s {
	case LoanReturned, LoanCancelled, LoanExpired:
		return true
	default:
		return false
	}
}

// ActiveFlag is the persisted active flag for this state: true for every
// state that occupies a copy, false for pending and all terminal states.
func (s LoanState) ActiveFlag() bool {
	return s.HoldsCopy()
}

// LoanStatesHoldingCopy lists every loan state that occupies capacity,
// for use in SQL IN clauses.
func LoanStatesHoldingCopy() []string {
	return []string{
		string(LoanScheduled),
		string(LoanAwaitingPickup),
		string(LoanActive),
		string(LoanOverdue),
	}
}

// LoanStatesNonTerminal lists every loan state that blocks a user from filing
// a second request for the same book.
func LoanStatesNonTerminal() []string {
	return append([]string{string(LoanPending)}, LoanStatesHoldingCopy()...)
}

// ReservationState is the lifecycle state of a waiting-list entry.
type ReservationState string

const (
	ReservationActive    ReservationState = "active"
	ReservationCancelled ReservationState = "cancelled"
	ReservationPromoted  ReservationState = "promoted"
)

// IsValid reports whether s is one of the known reservation states.
func (s ReservationState) IsValid() bool {
	switch s {
	case ReservationActive, ReservationCancelled, ReservationPromoted:
		return true
	default:
		return false
	}
}
