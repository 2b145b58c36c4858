package postgresengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

// CreateReservation queues a reservation for an explicit future date range.
// Unlike a loan request, a reservation does not require free capacity: it
// claims a queue position and waits. The position is assigned under the book
// row lock, so two concurrent reservations can never end up with the same
// position.
func (e *Engine) CreateReservation(ctx context.Context, actor circulation.Actor, bookID uuid.UUID, rng circulation.DateRange) (uuid.UUID, error) {
	normalized, err := circulation.NewDateRange(rng.Start, rng.End)
	if err != nil {
		return uuid.Nil, err
	}

	if normalized.Start.Before(e.today()) {
		return uuid.Nil, fmt.Errorf("%w: reservation must not start in the past", circulation.ErrInvalidDateRange)
	}

	reservationID := uuid.New()

	err = e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		if _, lockErr := e.lockBookRow(ctx, tx, bookID, false); lockErr != nil {
			return lockErr
		}

		duplicate, dupErr := e.hasActiveReservation(ctx, tx, bookID, actor.UserID)
		if dupErr != nil {
			return dupErr
		}

		if duplicate {
			return fmt.Errorf("%w: user already has an active reservation for this book", circulation.ErrDuplicate)
		}

		entries, entriesErr := e.activeQueueEntries(ctx, tx, bookID)
		if entriesErr != nil {
			return entriesErr
		}

		insertStmt := builder.
			Insert(e.tables.Reservations).
			Rows(goqu.Record{
				colID:        reservationID.String(),
				colBookID:    bookID.String(),
				colUserID:    actor.UserID.String(),
				colStartDate: dateLiteral(normalized.Start),
				colEndDate:   dateLiteral(normalized.End),
				colPosition:  circulation.NextQueuePosition(entries),
				colState:     string(circulation.ReservationActive),
			})

		_, insertErr := e.execStatement(ctx, tx, insertStmt)

		return insertErr
	})
	if err != nil {
		return uuid.Nil, err
	}

	e.logOperation("reservation created",
		logAttrReservationID, reservationID.String(), logAttrBookID, bookID.String(), logAttrUserID, actor.UserID.String())

	return reservationID, nil
}

// CancelReservation cancels an active reservation and closes the gap in the
// queue. Renumbering happens in the same transaction, so no reader ever
// observes a queue with holes.
func (e *Engine) CancelReservation(ctx context.Context, actor circulation.Actor, reservationID uuid.UUID) error {
	err := e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfReservation(ctx, tx, reservationID)
		if bookErr != nil {
			return bookErr
		}

		if _, lockErr := e.lockBookRow(ctx, tx, bookID, true); lockErr != nil {
			return lockErr
		}

		reservation, resErr := e.lockReservationRow(ctx, tx, reservationID)
		if resErr != nil {
			return resErr
		}

		if reservation.userID != actor.UserID && !actor.IsStaff() {
			return circulation.ErrForbidden
		}

		if reservation.state != circulation.ReservationActive {
			return fmt.Errorf("%w: reservation %s is %s, not active", circulation.ErrConflict, reservationID, reservation.state)
		}

		updateStmt := builder.
			Update(e.tables.Reservations).
			Set(goqu.Record{colState: string(circulation.ReservationCancelled)}).
			Where(goqu.Ex{colID: reservationID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		if renumberErr := e.renumberQueue(ctx, tx, bookID); renumberErr != nil {
			return renumberErr
		}

		_, recomputeErr := e.recomputeAvailability(ctx, tx, bookID)

		return recomputeErr
	})
	if err != nil {
		return err
	}

	e.logOperation("reservation cancelled", logAttrReservationID, reservationID.String())

	return nil
}

// ChangeReservationDates moves an active reservation to a new date range.
// The queue position is kept; only the claimed window changes.
func (e *Engine) ChangeReservationDates(ctx context.Context, actor circulation.Actor, reservationID uuid.UUID, rng circulation.DateRange) error {
	normalized, err := circulation.NewDateRange(rng.Start, rng.End)
	if err != nil {
		return err
	}

	if normalized.Start.Before(e.today()) {
		return fmt.Errorf("%w: reservation must not start in the past", circulation.ErrInvalidDateRange)
	}

	err = e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfReservation(ctx, tx, reservationID)
		if bookErr != nil {
			return bookErr
		}

		if _, lockErr := e.lockBookRow(ctx, tx, bookID, false); lockErr != nil {
			return lockErr
		}

		reservation, resErr := e.lockReservationRow(ctx, tx, reservationID)
		if resErr != nil {
			return resErr
		}

		if reservation.userID != actor.UserID && !actor.IsStaff() {
			return circulation.ErrForbidden
		}

		if reservation.state != circulation.ReservationActive {
			return fmt.Errorf("%w: reservation %s is %s, not active", circulation.ErrConflict, reservationID, reservation.state)
		}

		updateStmt := builder.
			Update(e.tables.Reservations).
			Set(goqu.Record{
				colStartDate: dateLiteral(normalized.Start),
				colEndDate:   dateLiteral(normalized.End),
			}).
			Where(goqu.Ex{colID: reservationID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		_, recomputeErr := e.recomputeAvailability(ctx, tx, bookID)

		return recomputeErr
	})
	if err != nil {
		return err
	}

	e.logOperation("reservation dates changed", logAttrReservationID, reservationID.String())

	return nil
}

// renumberQueue restores dense 1..N positions over the book's active
// reservations, preserving relative order. Must run under the book row lock.
func (e *Engine) renumberQueue(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID) error {
	entries, err := e.activeQueueEntries(ctx, tx, bookID)
	if err != nil {
		return err
	}

	for _, changed := range circulation.RenumberQueue(entries) {
		updateStmt := builder.
			Update(e.tables.Reservations).
			Set(goqu.Record{colPosition: changed.Position}).
			Where(goqu.Ex{colID: changed.ReservationID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}
	}

	return nil
}

// hasActiveReservation reports whether the user already holds an active
// reservation for the book.
func (e *Engine) hasActiveReservation(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID, userID uuid.UUID) (bool, error) {
	stmt := builder.
		From(e.tables.Reservations).
		Select(goqu.COUNT(colID)).
		Where(goqu.Ex{
			colBookID: bookID.String(),
			colUserID: userID.String(),
			colState:  string(circulation.ReservationActive),
		})

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return false, err
	}

	var count int

	if scanErr := tx.QueryRow(ctx, sqlQuery).Scan(&count); scanErr != nil {
		return false, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	return count > 0, nil
}
