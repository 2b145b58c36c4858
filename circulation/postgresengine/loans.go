package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

const (
	contextKeyBookTitle      = "book_title"
	contextKeyPickupDeadline = "pickup_deadline"
	contextKeyWarningDays    = "expiry_warning_days"
	contextKeyBookIDValue    = "book_id"
)

// RequestLoan files a loan request for the implicit window starting today
// (14 days by default). The request is written as a pending loan with no
// copy bound; binding happens at approval.
//
// Preconditions, checked under the book row lock: the book exists and is not
// deleted, the requester holds no other non-terminal loan for it, and the
// full window is free when the requester's own claims are discounted.
func (e *Engine) RequestLoan(ctx context.Context, actor circulation.Actor, bookID uuid.UUID) (uuid.UUID, error) {
	window, err := circulation.RangeFrom(e.today(), e.loanRequestDays)
	if err != nil {
		return uuid.Nil, err
	}

	loanID := uuid.New()

	err = e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		if _, lockErr := e.lockBookRow(ctx, tx, bookID, false); lockErr != nil {
			return lockErr
		}

		duplicate, dupErr := e.hasNonTerminalLoan(ctx, tx, bookID, actor.UserID)
		if dupErr != nil {
			return dupErr
		}

		if duplicate {
			return fmt.Errorf("%w: user already has an open loan for this book", circulation.ErrDuplicate)
		}

		userID := actor.UserID

		free, freeErr := e.rangeIsFree(ctx, tx, bookID, window, &userID, nil)
		if freeErr != nil {
			return freeErr
		}

		if !free {
			return circulation.ErrNotAvailable
		}

		insertStmt := builder.
			Insert(e.tables.Loans).
			Rows(goqu.Record{
				colID:        loanID.String(),
				colBookID:    bookID.String(),
				colUserID:    actor.UserID.String(),
				colStartDate: dateLiteral(window.Start),
				colEndDate:   dateLiteral(window.End),
				colState:     string(circulation.LoanPending),
				colActive:    circulation.LoanPending.ActiveFlag(),
				colNotes:     "",
			})

		_, insertErr := e.execStatement(ctx, tx, insertStmt)

		return insertErr
	})
	if err != nil {
		return uuid.Nil, err
	}

	e.logOperation("loan requested",
		logAttrLoanID, loanID.String(), logAttrBookID, bookID.String(), logAttrUserID, actor.UserID.String())

	return loanID, nil
}

// ApproveLoan moves a pending loan to scheduled (future start) or
// awaiting_pickup (start today or past, with a pickup deadline) and binds a
// copy to it. Nothing is partially applied: if no copy can be bound the
// whole transaction rolls back with ErrNotAvailable.
func (e *Engine) ApproveLoan(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	var approvedState circulation.LoanState

	err := e.inTransaction(ctx, func(tx adapters.DBTx, outbox *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfLoan(ctx, tx, loanID)
		if bookErr != nil {
			return bookErr
		}

		book, lockErr := e.lockBookRow(ctx, tx, bookID, false)
		if lockErr != nil {
			return lockErr
		}

		loan, loanErr := e.lockLoanRow(ctx, tx, loanID)
		if loanErr != nil {
			return loanErr
		}

		if loan.state != circulation.LoanPending {
			return fmt.Errorf("%w: loan %s is %s, not pending", circulation.ErrConflict, loanID, loan.state)
		}

		today := e.today()
		newState := circulation.LoanAwaitingPickup
		var deadline *string

		if loan.rng.Start.After(today) {
			newState = circulation.LoanScheduled
		} else {
			expiryDays, settingErr := e.pickupExpiryDays(ctx, tx)
			if settingErr != nil {
				return settingErr
			}

			d := dateLiteral(today.AddDate(0, 0, expiryDays))
			deadline = &d
		}

		// Slot count over loans plus reservations: queued reservations
		// occupy aggregate capacity without naming a copy.
		id := loan.id

		free, freeErr := e.rangeIsFree(ctx, tx, bookID, loan.rng, nil, &id)
		if freeErr != nil {
			return freeErr
		}

		if !free {
			return circulation.ErrNotAvailable
		}

		candidates, candidatesErr := e.copyCandidates(ctx, tx, bookID, &id)
		if candidatesErr != nil {
			return candidatesErr
		}

		copyID, found := circulation.SelectCopy(loan.copyID, candidates, loan.rng)
		if !found {
			return circulation.ErrNotAvailable
		}

		bound, bindErr := e.bindCopyToLoan(ctx, tx, copyID, loan)
		if bindErr != nil {
			return bindErr
		}

		if !bound {
			return circulation.ErrNotAvailable
		}

		record := goqu.Record{
			colState:  string(newState),
			colCopyID: copyID.String(),
			colActive: newState.ActiveFlag(),
		}
		if deadline != nil {
			record[colPickupDeadline] = *deadline
		}

		updateStmt := builder.
			Update(e.tables.Loans).
			Set(record).
			Where(goqu.Ex{colID: loanID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		if _, recomputeErr := e.recomputeAvailability(ctx, tx, bookID); recomputeErr != nil {
			return recomputeErr
		}

		approvedState = newState

		notification := circulation.Notification{
			Kind:      circulation.NotificationLoanApproved,
			SubjectID: loanID,
			UserID:    loan.userID,
			Context:   map[string]string{contextKeyBookTitle: book.title},
		}

		if newState == circulation.LoanAwaitingPickup {
			warningDays, settingErr := e.expiryWarningDays(ctx, tx)
			if settingErr != nil {
				return settingErr
			}

			notification.Kind = circulation.NotificationPickupReady
			notification.Context[contextKeyPickupDeadline] = *deadline
			notification.Context[contextKeyWarningDays] = strconv.Itoa(warningDays)
		}

		outbox.Add(notification)

		return nil
	})
	if err != nil {
		return err
	}

	e.logOperation("loan approved",
		logAttrLoanID, loanID.String(), logAttrState, string(approvedState))

	return nil
}

// bindCopyToLoan locks the selected copy and re-verifies under that lock
// that it is still lendable and has no conflicting overlap. The double
// check closes the race between candidate selection and binding; it is the
// correctness-critical step, not an optimization.
func (e *Engine) bindCopyToLoan(ctx context.Context, tx adapters.DBTx, copyID uuid.UUID, loan loanRow) (bool, error) {
	target, _, lockErr := e.lockCopyRow(ctx, tx, copyID, false)
	if lockErr != nil {
		return false, lockErr
	}

	if !target.state.Lendable() {
		return false, nil
	}

	loanID := loan.id

	conflicts, countErr := e.countOverlappingLoansForCopy(ctx, tx, copyID, loan.rng, &loanID)
	if countErr != nil {
		return false, countErr
	}

	if conflicts > 0 {
		return false, nil
	}

	updateStmt := builder.
		Update(e.tables.Copies).
		Set(goqu.Record{colState: string(circulation.CopyReserved)}).
		Where(goqu.Ex{colID: copyID.String()})

	if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
		return false, updateErr
	}

	return true, nil
}

func (e *Engine) countOverlappingLoansForCopy(ctx context.Context, tx adapters.DBTx, copyID uuid.UUID, rng circulation.DateRange, excludeLoan *uuid.UUID) (int, error) {
	conditions := []goqu.Expression{
		goqu.Ex{colCopyID: copyID.String()},
		goqu.C(colState).In(circulation.LoanStatesHoldingCopy()),
		goqu.C(colStartDate).Lte(dateLiteral(rng.End)),
		goqu.C(colEndDate).Gte(dateLiteral(rng.Start)),
	}
	if excludeLoan != nil {
		conditions = append(conditions, goqu.C(colID).Neq(excludeLoan.String()))
	}

	stmt := builder.
		From(e.tables.Loans).
		Select(goqu.COUNT(colID)).
		Where(conditions...)

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return 0, err
	}

	var count int

	if scanErr := tx.QueryRow(ctx, sqlQuery).Scan(&count); scanErr != nil {
		return 0, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	return count, nil
}

// RejectLoan deletes a pending loan outright. The user, book title and loan
// id are captured into the notification before the row is gone, because
// there is nothing left to look up afterwards.
func (e *Engine) RejectLoan(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	err := e.inTransaction(ctx, func(tx adapters.DBTx, outbox *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfLoan(ctx, tx, loanID)
		if bookErr != nil {
			return bookErr
		}

		book, lockErr := e.lockBookRow(ctx, tx, bookID, true)
		if lockErr != nil {
			return lockErr
		}

		loan, loanErr := e.lockLoanRow(ctx, tx, loanID)
		if loanErr != nil {
			return loanErr
		}

		if loan.state != circulation.LoanPending {
			return fmt.Errorf("%w: loan %s is %s, not pending", circulation.ErrConflict, loanID, loan.state)
		}

		notification := circulation.Notification{
			Kind:      circulation.NotificationLoanRejected,
			SubjectID: loanID,
			UserID:    loan.userID,
			Context: map[string]string{
				contextKeyBookTitle:   book.title,
				contextKeyBookIDValue: bookID.String(),
			},
		}

		deleteStmt := builder.
			Delete(e.tables.Loans).
			Where(goqu.Ex{colID: loanID.String()})

		if _, deleteErr := e.execStatement(ctx, tx, deleteStmt); deleteErr != nil {
			return deleteErr
		}

		if _, recomputeErr := e.recomputeAvailability(ctx, tx, bookID); recomputeErr != nil {
			return recomputeErr
		}

		outbox.Add(notification)

		return nil
	})
	if err != nil {
		return err
	}

	e.logOperation("loan rejected", logAttrLoanID, loanID.String())

	return nil
}

// ConfirmPickup hands the reserved copy over: the loan becomes active, the
// pickup deadline is cleared, and the copy flips from reserved to lent.
// A loan past its pickup deadline is refused; staff must cancel it instead.
func (e *Engine) ConfirmPickup(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	err := e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfLoan(ctx, tx, loanID)
		if bookErr != nil {
			return bookErr
		}

		if _, lockErr := e.lockBookRow(ctx, tx, bookID, true); lockErr != nil {
			return lockErr
		}

		loan, loanErr := e.lockLoanRow(ctx, tx, loanID)
		if loanErr != nil {
			return loanErr
		}

		today := e.today()

		if !e.pickupDueStates(loan) {
			return fmt.Errorf("%w: loan %s is %s and not due for pickup", circulation.ErrConflict, loanID, loan.state)
		}

		if loan.copyID == nil {
			if e.logger != nil {
				e.logger.Error(logMsgMissingBoundCopy, logAttrLoanID, loanID.String(), logAttrState, string(loan.state))
			}

			return fmt.Errorf("%w: loan %s has no bound copy", circulation.ErrIntegrity, loanID)
		}

		if loan.pickupDeadline != nil && today.After(*loan.pickupDeadline) {
			return fmt.Errorf("%w: pickup deadline %s passed", circulation.ErrConflict,
				loan.pickupDeadline.Format(circulation.DateISOFormat))
		}

		updateStmt := builder.
			Update(e.tables.Loans).
			Set(goqu.Record{
				colState:          string(circulation.LoanActive),
				colActive:         circulation.LoanActive.ActiveFlag(),
				colPickupDeadline: nil,
			}).
			Where(goqu.Ex{colID: loanID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		bound, _, copyLockErr := e.lockCopyRow(ctx, tx, *loan.copyID, false)
		if copyLockErr != nil {
			return copyLockErr
		}

		if !bound.state.Lendable() {
			// The copy went lost/damaged/into maintenance while reserved.
			// Leave it untouched for manual review; the handover itself
			// already happened at the desk.
			if e.logger != nil {
				e.logger.Error(logMsgCopyStateAnomaly,
					logAttrLoanID, loanID.String(), logAttrCopyID, bound.id.String(), logAttrState, string(bound.state))
			}
		} else {
			copyStmt := builder.
				Update(e.tables.Copies).
				Set(goqu.Record{colState: string(circulation.CopyLent)}).
				Where(goqu.Ex{colID: bound.id.String()})

			if _, copyErr := e.execStatement(ctx, tx, copyStmt); copyErr != nil {
				return copyErr
			}
		}

		if _, recomputeErr := e.recomputeAvailability(ctx, tx, bookID); recomputeErr != nil {
			return recomputeErr
		}

		return nil
	})
	if err != nil {
		return err
	}

	e.logOperation("pickup confirmed", logAttrLoanID, loanID.String())

	return nil
}

// CancelPickup closes a due loan as expired without handover and releases
// the bound copy. This is the one guaranteed point where the next queued
// reservation gets its chance before any maintenance sweep runs, so the
// reassignment happens here, inside the same transaction.
func (e *Engine) CancelPickup(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	return e.closeLoanReleasingCopy(ctx, loanID, circulation.LoanExpired, func(loan loanRow) error {
		if !e.pickupDueStates(loan) {
			return fmt.Errorf("%w: loan %s is %s and not due for pickup", circulation.ErrConflict, loanID, loan.state)
		}

		if loan.copyID == nil {
			if e.logger != nil {
				e.logger.Error(logMsgMissingBoundCopy, logAttrLoanID, loanID.String(), logAttrState, string(loan.state))
			}

			return fmt.Errorf("%w: loan %s has no bound copy", circulation.ErrIntegrity, loanID)
		}

		return nil
	}, nil)
}

// ReturnLoan closes an active or overdue loan, releases the copy, advances
// the queue, and — when the recomputation shows free capacity again —
// queues the audience-wide availability notification.
func (e *Engine) ReturnLoan(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	return e.closeLoanReleasingCopy(ctx, loanID, circulation.LoanReturned, func(loan loanRow) error {
		if loan.state != circulation.LoanActive && loan.state != circulation.LoanOverdue {
			return fmt.Errorf("%w: loan %s is %s, not active or overdue", circulation.ErrConflict, loanID, loan.state)
		}

		if loan.copyID == nil {
			if e.logger != nil {
				e.logger.Error(logMsgMissingBoundCopy, logAttrLoanID, loanID.String(), logAttrState, string(loan.state))
			}

			return fmt.Errorf("%w: loan %s has no bound copy", circulation.ErrIntegrity, loanID)
		}

		return nil
	}, func(book bookRow, available int, outbox *circulation.Outbox) {
		if available >= 1 {
			outbox.Add(circulation.Notification{
				Kind:      circulation.NotificationBookAvailableAgain,
				SubjectID: book.id,
				Context: map[string]string{
					contextKeyBookTitle:   book.title,
					contextKeyBookIDValue: book.id.String(),
				},
			})
		}
	})
}

// CancelLoan is the user-initiated cancellation of a pending or scheduled
// loan. When a copy was already bound, it is released and reassigned with
// the same effects as a pickup cancellation.
func (e *Engine) CancelLoan(ctx context.Context, actor circulation.Actor, loanID uuid.UUID) error {
	return e.closeLoanReleasingCopy(ctx, loanID, circulation.LoanCancelled, func(loan loanRow) error {
		if loan.userID != actor.UserID && !actor.IsStaff() {
			return circulation.ErrForbidden
		}

		if loan.state != circulation.LoanPending && loan.state != circulation.LoanScheduled {
			return fmt.Errorf("%w: loan %s is %s, not pending or scheduled", circulation.ErrConflict, loanID, loan.state)
		}

		return nil
	}, nil)
}

// closeLoanReleasingCopy is the shared close path for cancel-pickup, return
// and user cancellation: lock book then loan, validate, move the loan to its
// terminal state, release the bound copy (unless non-lendable), reassign the
// freed copy to the queue, recompute availability.
func (e *Engine) closeLoanReleasingCopy(
	ctx context.Context,
	loanID uuid.UUID,
	terminalState circulation.LoanState,
	validate func(loan loanRow) error,
	afterRecompute func(book bookRow, available int, outbox *circulation.Outbox),
) error {

	err := e.inTransaction(ctx, func(tx adapters.DBTx, outbox *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfLoan(ctx, tx, loanID)
		if bookErr != nil {
			return bookErr
		}

		book, lockErr := e.lockBookRow(ctx, tx, bookID, true)
		if lockErr != nil {
			return lockErr
		}

		loan, loanErr := e.lockLoanRow(ctx, tx, loanID)
		if loanErr != nil {
			return loanErr
		}

		if validateErr := validate(loan); validateErr != nil {
			return validateErr
		}

		updateStmt := builder.
			Update(e.tables.Loans).
			Set(goqu.Record{
				colState:          string(terminalState),
				colActive:         terminalState.ActiveFlag(),
				colPickupDeadline: nil,
			}).
			Where(goqu.Ex{colID: loanID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		if loan.copyID != nil {
			if releaseErr := e.releaseCopy(ctx, tx, *loan.copyID, outbox); releaseErr != nil {
				return releaseErr
			}
		}

		available, recomputeErr := e.recomputeAvailability(ctx, tx, bookID)
		if recomputeErr != nil {
			return recomputeErr
		}

		if afterRecompute != nil {
			afterRecompute(book, available, outbox)
		}

		return nil
	})
	if err != nil {
		return err
	}

	e.logOperation("loan closed", logAttrLoanID, loanID.String(), logAttrState, string(terminalState))

	return nil
}

// releaseCopy returns a bound copy to available and hands it to the
// reassignment path. A copy in a non-lendable state is left untouched:
// it must not re-enter circulation without manual review.
func (e *Engine) releaseCopy(ctx context.Context, tx adapters.DBTx, copyID uuid.UUID, outbox *circulation.Outbox) error {
	freed, _, lockErr := e.lockCopyRow(ctx, tx, copyID, false)
	if lockErr != nil {
		return lockErr
	}

	if !freed.state.Lendable() {
		if e.logger != nil {
			e.logger.Warn(logMsgCopyStateAnomaly, logAttrCopyID, copyID.String(), logAttrState, string(freed.state))
		}

		return nil
	}

	updateStmt := builder.
		Update(e.tables.Copies).
		Set(goqu.Record{colState: string(circulation.CopyAvailable)}).
		Where(goqu.Ex{colID: copyID.String()})

	if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
		return updateErr
	}

	freed.state = circulation.CopyAvailable

	return e.reassignFreedCopy(ctx, tx, freed, outbox)
}

// hasNonTerminalLoan reports whether the user already holds a pending or
// copy-holding loan for the book.
func (e *Engine) hasNonTerminalLoan(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID, userID uuid.UUID) (bool, error) {
	stmt := builder.
		From(e.tables.Loans).
		Select(goqu.COUNT(colID)).
		Where(
			goqu.Ex{colBookID: bookID.String(), colUserID: userID.String()},
			goqu.C(colState).In(circulation.LoanStatesNonTerminal()),
		)

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

// pickupDueStates reports whether the loan is awaiting pickup, or scheduled
// with its start date reached.
func (e *Engine) pickupDueStates(loan loanRow) bool {
	if loan.state == circulation.LoanAwaitingPickup {
		return true
	}

	return loan.state == circulation.LoanScheduled && !loan.rng.Start.After(e.today())
}
