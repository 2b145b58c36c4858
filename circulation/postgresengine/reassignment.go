package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

const contextKeyLoanID = "loan_id"

// ReassignOnNewCopy offers a specific available copy to the reservation
// queue. The lifecycle paths (return, cancellation, copy creation) trigger
// reassignment inside their own transactions; this entry point covers the
// manual case where staff want to push a copy back into rotation, for
// example after clearing a maintenance state by hand.
func (e *Engine) ReassignOnNewCopy(ctx context.Context, actor circulation.Actor, copyID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	err := e.inTransaction(ctx, func(tx adapters.DBTx, outbox *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfCopy(ctx, tx, copyID)
		if bookErr != nil {
			return bookErr
		}

		if _, lockErr := e.lockBookRow(ctx, tx, bookID, false); lockErr != nil {
			return lockErr
		}

		freed, _, copyLockErr := e.lockCopyRow(ctx, tx, copyID, false)
		if copyLockErr != nil {
			return copyLockErr
		}

		if freed.state != circulation.CopyAvailable {
			return fmt.Errorf("%w: copy %s is %s, not available", circulation.ErrConflict, copyID, freed.state)
		}

		if reassignErr := e.reassignFreedCopy(ctx, tx, freed, outbox); reassignErr != nil {
			return reassignErr
		}

		_, recomputeErr := e.recomputeAvailability(ctx, tx, bookID)

		return recomputeErr
	})
	if err != nil {
		return err
	}

	e.logOperation("copy offered to queue", logAttrCopyID, copyID.String())

	return nil
}

// reassignFreedCopy walks the book's reservation queue in position order and
// promotes the first reservation whose full date range the freed copy can
// serve. Promotion converts the reservation into a loan bound to the copy,
// marks the copy reserved, and renumbers the remaining queue.
//
// Satisfiability is checked per entry, not just for the head: a copy that
// cannot serve position 1 may still serve position 2, and skipping the head
// does not cost it its place. An empty or unsatisfiable queue leaves the
// copy available. Must run inside the caller's transaction, after the book
// row lock; the notification goes through the caller's outbox so it is only
// delivered when the surrounding transaction commits.
func (e *Engine) reassignFreedCopy(ctx context.Context, tx adapters.DBTx, freed copyRow, outbox *circulation.Outbox) error {
	queue, err := e.activeReservationRows(ctx, tx, freed.bookID)
	if err != nil {
		return err
	}

	for _, reservation := range queue {
		conflicts, countErr := e.countOverlappingLoansForCopy(ctx, tx, freed.id, reservation.rng, nil)
		if countErr != nil {
			return countErr
		}

		if conflicts > 0 {
			continue
		}

		return e.promoteReservation(ctx, tx, freed, reservation, outbox)
	}

	return nil
}

// promoteReservation converts an active reservation into a loan bound to the
// given copy. A reservation starting in the future becomes a scheduled loan;
// one starting today or earlier becomes awaiting_pickup with a fresh pickup
// deadline.
func (e *Engine) promoteReservation(ctx context.Context, tx adapters.DBTx, freed copyRow, reservation reservationRow, outbox *circulation.Outbox) error {
	today := e.today()
	newState := circulation.LoanAwaitingPickup
	var deadline *string

	if reservation.rng.Start.After(today) {
		newState = circulation.LoanScheduled
	} else {
		expiryDays, settingErr := e.pickupExpiryDays(ctx, tx)
		if settingErr != nil {
			return settingErr
		}

		d := dateLiteral(today.AddDate(0, 0, expiryDays))
		deadline = &d
	}

	loanID := uuid.New()

	record := goqu.Record{
		colID:        loanID.String(),
		colBookID:    reservation.bookID.String(),
		colUserID:    reservation.userID.String(),
		colCopyID:    freed.id.String(),
		colStartDate: dateLiteral(reservation.rng.Start),
		colEndDate:   dateLiteral(reservation.rng.End),
		colState:     string(newState),
		colActive:    newState.ActiveFlag(),
		colNotes:     "",
	}
	if deadline != nil {
		record[colPickupDeadline] = *deadline
	}

	insertStmt := builder.Insert(e.tables.Loans).Rows(record)

	if _, insertErr := e.execStatement(ctx, tx, insertStmt); insertErr != nil {
		return insertErr
	}

	reservationStmt := builder.
		Update(e.tables.Reservations).
		Set(goqu.Record{colState: string(circulation.ReservationPromoted)}).
		Where(goqu.Ex{colID: reservation.id.String()})

	if _, updateErr := e.execStatement(ctx, tx, reservationStmt); updateErr != nil {
		return updateErr
	}

	copyStmt := builder.
		Update(e.tables.Copies).
		Set(goqu.Record{colState: string(circulation.CopyReserved)}).
		Where(goqu.Ex{colID: freed.id.String()})

	if _, updateErr := e.execStatement(ctx, tx, copyStmt); updateErr != nil {
		return updateErr
	}

	if renumberErr := e.renumberQueue(ctx, tx, reservation.bookID); renumberErr != nil {
		return renumberErr
	}

	notification := circulation.Notification{
		Kind:      circulation.NotificationReservationPromoted,
		SubjectID: reservation.id,
		UserID:    reservation.userID,
		Context: map[string]string{
			contextKeyBookIDValue: reservation.bookID.String(),
			contextKeyLoanID:      loanID.String(),
		},
	}
	if deadline != nil {
		notification.Context[contextKeyPickupDeadline] = *deadline
	}

	outbox.Add(notification)

	e.logOperation("reservation promoted",
		logAttrReservationID, reservation.id.String(),
		logAttrLoanID, loanID.String(),
		logAttrCopyID, freed.id.String(),
		logAttrState, string(newState))

	return nil
}

// activeReservationRows reads the book's active reservations in position
// order. Rows are read under the book row lock, which serializes queue
// mutations, so no FOR UPDATE is needed per reservation row here.
func (e *Engine) activeReservationRows(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID) ([]reservationRow, error) {
	stmt := builder.
		From(e.tables.Reservations).
		Select(colID, colBookID, colUserID, colStartDate, colEndDate, colPosition, colState).
		Where(goqu.Ex{colBookID: bookID.String(), colState: string(circulation.ReservationActive)}).
		Order(goqu.I(colPosition).Asc())

	rows, err := e.runQuery(ctx, tx, stmt)
	if err != nil {
		return nil, err
	}
	defer e.closeRows(rows)

	reservations := make([]reservationRow, 0)

	for rows.Next() {
		var row reservationRow
		var start, end time.Time

		if scanErr := rows.Scan(&row.id, &row.bookID, &row.userID, &start, &end, &row.position, &row.state); scanErr != nil {
			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		row.rng = circulation.DateRange{Start: circulation.DayOf(start), End: circulation.DayOf(end)}
		reservations = append(reservations, row)
	}

	return reservations, nil
}
