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

// CreateCopy registers one new physical copy for a book. The bulk-import
// pipeline calls this same primitive instead of writing copy rows directly,
// which is what keeps the lendable-state invariant in one place.
//
// When the new copy is created available, the reservation queue is consulted
// immediately: new capacity is a reassignment trigger just like a return.
func (e *Engine) CreateCopy(ctx context.Context, actor circulation.Actor, bookID uuid.UUID, inventoryCode string, initialState circulation.CopyState, note string) (uuid.UUID, error) {
	if !actor.IsStaff() {
		return uuid.Nil, circulation.ErrForbidden
	}

	if inventoryCode == "" {
		return uuid.Nil, fmt.Errorf("%w: empty inventory code", circulation.ErrInvalidInput)
	}

	if !initialState.IsValid() {
		return uuid.Nil, fmt.Errorf("%w: unknown copy state %q", circulation.ErrInvalidInput, initialState)
	}

	copyID := uuid.New()

	err := e.inTransaction(ctx, func(tx adapters.DBTx, outbox *circulation.Outbox) error {
		book, lockErr := e.lockBookRow(ctx, tx, bookID, false)
		if lockErr != nil {
			return lockErr
		}

		if insertErr := e.insertCopy(ctx, tx, copyID, bookID, inventoryCode, initialState, note); insertErr != nil {
			return insertErr
		}

		updateStmt := builder.
			Update(e.tables.Books).
			Set(goqu.Record{colTotalCopies: book.totalCopies + 1}).
			Where(goqu.Ex{colID: bookID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		if initialState == circulation.CopyAvailable {
			newCopy := copyRow{id: copyID, bookID: bookID, inventoryCode: inventoryCode, state: initialState}
			if reassignErr := e.reassignFreedCopy(ctx, tx, newCopy, outbox); reassignErr != nil {
				return reassignErr
			}
		}

		if _, recomputeErr := e.recomputeAvailability(ctx, tx, bookID); recomputeErr != nil {
			return recomputeErr
		}

		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	e.logOperation("copy created",
		logAttrCopyID, copyID.String(), logAttrBookID, bookID.String(), logAttrState, string(initialState))

	return copyID, nil
}

// insertCopy writes the copy row, mapping a unique-violation on the
// inventory code to ErrDuplicate.
func (e *Engine) insertCopy(ctx context.Context, tx adapters.DBTx, copyID uuid.UUID, bookID uuid.UUID, inventoryCode string, state circulation.CopyState, note string) error {
	stmt := builder.
		Insert(e.tables.Copies).
		Rows(goqu.Record{
			colID:            copyID.String(),
			colBookID:        bookID.String(),
			colInventoryCode: inventoryCode,
			colState:         string(state),
			colNote:          note,
		})

	_, err := e.execStatement(ctx, tx, stmt)
	if err != nil {
		if adapters.IsUniqueViolation(err) {
			return fmt.Errorf("%w: inventory code %q already in use", circulation.ErrDuplicate, inventoryCode)
		}

		return err
	}

	return nil
}

// UpdateCopyState moves a copy to a new lifecycle state and returns a tagged
// outcome instead of a silent boolean: OutcomeNotFound when the copy does not
// exist, OutcomeConflict when the row is locked by a concurrent transaction.
// Callers must check the outcome and abort their workflow on anything other
// than OutcomeOk.
func (e *Engine) UpdateCopyState(ctx context.Context, actor circulation.Actor, copyID uuid.UUID, newState circulation.CopyState) (circulation.Outcome, error) {
	if !actor.IsStaff() {
		return circulation.OutcomeConflict, circulation.ErrForbidden
	}

	if !newState.IsValid() {
		return circulation.OutcomeConflict, fmt.Errorf("%w: unknown copy state %q", circulation.ErrInvalidInput, newState)
	}

	outcome := circulation.OutcomeOk

	err := e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfCopy(ctx, tx, copyID)
		if bookErr != nil {
			if errors.Is(bookErr, circulation.ErrNotFound) {
				outcome = circulation.OutcomeNotFound
				return nil
			}

			return bookErr
		}

		if _, lockErr := e.lockBookRow(ctx, tx, bookID, true); lockErr != nil {
			return lockErr
		}

		current, lockUnavailable, lockErr := e.lockCopyRow(ctx, tx, copyID, true)
		if lockErr != nil {
			if errors.Is(lockErr, circulation.ErrNotFound) {
				outcome = circulation.OutcomeNotFound
				return nil
			}

			return lockErr
		}

		if lockUnavailable {
			outcome = circulation.OutcomeConflict
			return nil
		}

		if current.state == newState {
			return nil
		}

		updateStmt := builder.
			Update(e.tables.Copies).
			Set(goqu.Record{colState: string(newState)}).
			Where(goqu.Ex{colID: copyID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		if _, recomputeErr := e.recomputeAvailability(ctx, tx, bookID); recomputeErr != nil {
			return recomputeErr
		}

		e.logOperation("copy state updated",
			logAttrCopyID, copyID.String(), logAttrState, string(newState))

		return nil
	})
	if err != nil {
		return circulation.OutcomeConflict, err
	}

	return outcome, nil
}

// RemoveCopy deletes a copy from the inventory. Only an available copy with
// no loan attached, past or present, may be removed.
func (e *Engine) RemoveCopy(ctx context.Context, actor circulation.Actor, copyID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	err := e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		bookID, bookErr := e.bookIDOfCopy(ctx, tx, copyID)
		if bookErr != nil {
			return bookErr
		}

		book, lockErr := e.lockBookRow(ctx, tx, bookID, true)
		if lockErr != nil {
			return lockErr
		}

		current, _, copyLockErr := e.lockCopyRow(ctx, tx, copyID, false)
		if copyLockErr != nil {
			return copyLockErr
		}

		if current.state != circulation.CopyAvailable {
			return fmt.Errorf("%w: copy %s is %s, not available", circulation.ErrConflict, copyID, current.state)
		}

		attached, countErr := e.countLoansForCopy(ctx, tx, copyID)
		if countErr != nil {
			return countErr
		}

		if attached > 0 {
			return fmt.Errorf("%w: copy %s is attached to %d loan(s)", circulation.ErrConflict, copyID, attached)
		}

		deleteStmt := builder.
			Delete(e.tables.Copies).
			Where(goqu.Ex{colID: copyID.String()})

		if _, deleteErr := e.execStatement(ctx, tx, deleteStmt); deleteErr != nil {
			return deleteErr
		}

		updateStmt := builder.
			Update(e.tables.Books).
			Set(goqu.Record{colTotalCopies: book.totalCopies - 1}).
			Where(goqu.Ex{colID: bookID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		if _, recomputeErr := e.recomputeAvailability(ctx, tx, bookID); recomputeErr != nil {
			return recomputeErr
		}

		return nil
	})
	if err != nil {
		return err
	}

	e.logOperation("copy removed", logAttrCopyID, copyID.String())

	return nil
}

func (e *Engine) countLoansForCopy(ctx context.Context, tx adapters.DBTx, copyID uuid.UUID) (int, error) {
	stmt := builder.
		From(e.tables.Loans).
		Select(goqu.COUNT(colID)).
		Where(goqu.Ex{colCopyID: copyID.String()})

	rows, err := e.runQuery(ctx, tx, stmt)
	if err != nil {
		return 0, err
	}
	defer e.closeRows(rows)

	count := 0

	if rows.Next() {
		if scanErr := rows.Scan(&count); scanErr != nil {
			return 0, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}
	}

	return count, nil
}

// CountLendableCopies counts the book's copies outside lost/damaged/maintenance.
func (e *Engine) CountLendableCopies(ctx context.Context, bookID uuid.UUID) (int, error) {
	return e.countLendable(ctx, e.db, bookID)
}

// ListCopiesByBook returns every copy of the book, ordered by inventory code.
func (e *Engine) ListCopiesByBook(ctx context.Context, bookID uuid.UUID) ([]circulation.Copy, error) {
	stmt := builder.
		From(e.tables.Copies).
		Select(colID, colBookID, colInventoryCode, colState, colNote).
		Where(goqu.Ex{colBookID: bookID.String()}).
		Order(goqu.I(colInventoryCode).Asc())

	rows, err := e.runQuery(ctx, e.db, stmt)
	if err != nil {
		return nil, err
	}
	defer e.closeRows(rows)

	copies := make([]circulation.Copy, 0)

	for rows.Next() {
		var c circulation.Copy

		if scanErr := rows.Scan(&c.ID, &c.BookID, &c.InventoryCode, &c.State, &c.Note); scanErr != nil {
			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		copies = append(copies, c)
	}

	return copies, nil
}

// NextInventoryCode derives the inventory code for the n-th copy of a book,
// used by CreateBook and by bulk imports that do not bring their own codes.
func NextInventoryCode(bookID uuid.UUID, n int) string {
	return fmt.Sprintf("%s-%03d", bookID.String()[:8], n)
}
