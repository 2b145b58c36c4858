package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
)

// GetLoan reads one loan record.
func (e *Engine) GetLoan(ctx context.Context, loanID uuid.UUID) (circulation.Loan, error) {
	loans, err := e.queryLoans(ctx, goqu.Ex{colID: loanID.String()})
	if err != nil {
		return circulation.Loan{}, err
	}

	if len(loans) == 0 {
		return circulation.Loan{}, circulation.ErrNotFound
	}

	return loans[0], nil
}

// ListPendingLoans returns pending loans awaiting a staff decision, oldest
// window first. With bookID set, only that book's requests are returned.
func (e *Engine) ListPendingLoans(ctx context.Context, bookID *uuid.UUID) ([]circulation.Loan, error) {
	conditions := []exp.Expression{goqu.Ex{colState: string(circulation.LoanPending)}}
	if bookID != nil {
		conditions = append(conditions, goqu.Ex{colBookID: bookID.String()})
	}

	return e.queryLoans(ctx, conditions...)
}

// ListActiveLoans returns the book's loans in copy-holding states.
func (e *Engine) ListActiveLoans(ctx context.Context, bookID uuid.UUID) ([]circulation.Loan, error) {
	return e.queryLoans(ctx,
		goqu.Ex{colBookID: bookID.String()},
		goqu.C(colState).In(circulation.LoanStatesHoldingCopy()),
	)
}

func (e *Engine) queryLoans(ctx context.Context, conditions ...exp.Expression) ([]circulation.Loan, error) {
	stmt := builder.
		From(e.tables.Loans).
		Select(colID, colBookID, colUserID, colCopyID, colStartDate, colEndDate, colState, colActive, colPickupDeadline, colNotes).
		Where(conditions...).
		Order(goqu.I(colStartDate).Asc(), goqu.I(colID).Asc())

	rows, err := e.runQuery(ctx, e.db, stmt)
	if err != nil {
		return nil, err
	}
	defer e.closeRows(rows)

	loans := make([]circulation.Loan, 0)

	for rows.Next() {
		var loan circulation.Loan
		var copyID uuid.NullUUID
		var start, end time.Time
		var deadline sql.NullTime

		if scanErr := rows.Scan(&loan.ID, &loan.BookID, &loan.UserID, &copyID, &start, &end,
			&loan.State, &loan.Active, &deadline, &loan.Notes); scanErr != nil {
			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		loan.Range = circulation.DateRange{Start: circulation.DayOf(start), End: circulation.DayOf(end)}

		if copyID.Valid {
			id := copyID.UUID
			loan.CopyID = &id
		}

		if deadline.Valid {
			d := circulation.DayOf(deadline.Time)
			loan.PickupDeadline = &d
		}

		loans = append(loans, loan)
	}

	return loans, nil
}

// GetReservation reads one reservation record.
func (e *Engine) GetReservation(ctx context.Context, reservationID uuid.UUID) (circulation.Reservation, error) {
	reservations, err := e.queryReservations(ctx, goqu.Ex{colID: reservationID.String()})
	if err != nil {
		return circulation.Reservation{}, err
	}

	if len(reservations) == 0 {
		return circulation.Reservation{}, circulation.ErrNotFound
	}

	return reservations[0], nil
}

// ListQueue returns the book's active reservations in position order.
func (e *Engine) ListQueue(ctx context.Context, bookID uuid.UUID) ([]circulation.Reservation, error) {
	return e.queryReservations(ctx,
		goqu.Ex{colBookID: bookID.String(), colState: string(circulation.ReservationActive)},
	)
}

func (e *Engine) queryReservations(ctx context.Context, conditions ...exp.Expression) ([]circulation.Reservation, error) {
	stmt := builder.
		From(e.tables.Reservations).
		Select(colID, colBookID, colUserID, colStartDate, colEndDate, colPosition, colState).
		Where(conditions...).
		Order(goqu.I(colPosition).Asc())

	rows, err := e.runQuery(ctx, e.db, stmt)
	if err != nil {
		return nil, err
	}
	defer e.closeRows(rows)

	reservations := make([]circulation.Reservation, 0)

	for rows.Next() {
		var reservation circulation.Reservation
		var start, end time.Time

		if scanErr := rows.Scan(&reservation.ID, &reservation.BookID, &reservation.UserID,
			&start, &end, &reservation.Position, &reservation.State); scanErr != nil {
			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		reservation.Range = circulation.DateRange{Start: circulation.DayOf(start), End: circulation.DayOf(end)}
		reservations = append(reservations, reservation)
	}

	return reservations, nil
}
