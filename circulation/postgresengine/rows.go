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
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

// bookRow is the locked snapshot of a book row.
type bookRow struct {
	id              uuid.UUID
	title           string
	totalCopies     int
	availableCopies int
	deleted         bool
}

// copyRow is the locked snapshot of a copy row.
type copyRow struct {
	id            uuid.UUID
	bookID        uuid.UUID
	inventoryCode string
	state         circulation.CopyState
	note          string
}

// loanRow is the locked snapshot of a loan row.
type loanRow struct {
	id             uuid.UUID
	bookID         uuid.UUID
	userID         uuid.UUID
	copyID         *uuid.UUID
	rng            circulation.DateRange
	state          circulation.LoanState
	pickupDeadline *time.Time
}

// reservationRow is the locked snapshot of a reservation row.
type reservationRow struct {
	id       uuid.UUID
	bookID   uuid.UUID
	userID   uuid.UUID
	rng      circulation.DateRange
	position int
	state    circulation.ReservationState
}

// lockBookRow locks the book row FOR UPDATE. This is always the first lock
// any capacity-affecting transaction takes. Missing and soft-deleted books
// both surface as ErrBookNotFound unless includeDeleted is set.
func (e *Engine) lockBookRow(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID, includeDeleted bool) (bookRow, error) {
	stmt := builder.
		From(e.tables.Books).
		Select(colID, colTitle, colTotalCopies, colAvailableCopies, colDeletedAt).
		Where(goqu.Ex{colID: bookID.String()}).
		ForUpdate(exp.Wait)

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return bookRow{}, err
	}

	var row bookRow
	var deletedAt sql.NullTime

	scanErr := tx.QueryRow(ctx, sqlQuery).Scan(&row.id, &row.title, &row.totalCopies, &row.availableCopies, &deletedAt)
	if scanErr != nil {
		if adapters.IsNoRows(scanErr) {
			return bookRow{}, circulation.ErrBookNotFound
		}

		return bookRow{}, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	row.deleted = deletedAt.Valid

	if row.deleted && !includeDeleted {
		return bookRow{}, circulation.ErrBookNotFound
	}

	return row, nil
}

// bookIDOfLoan reads the loan's book id without locking, so the book row
// can be locked first, preserving the book-before-copy lock order.
func (e *Engine) bookIDOfLoan(ctx context.Context, tx adapters.DBTx, loanID uuid.UUID) (uuid.UUID, error) {
	return e.bookIDOf(ctx, tx, e.tables.Loans, loanID, circulation.ErrNotFound)
}

// bookIDOfCopy reads the copy's book id without locking.
func (e *Engine) bookIDOfCopy(ctx context.Context, tx adapters.DBTx, copyID uuid.UUID) (uuid.UUID, error) {
	return e.bookIDOf(ctx, tx, e.tables.Copies, copyID, circulation.ErrNotFound)
}

// bookIDOfReservation reads the reservation's book id without locking.
func (e *Engine) bookIDOfReservation(ctx context.Context, tx adapters.DBTx, reservationID uuid.UUID) (uuid.UUID, error) {
	return e.bookIDOf(ctx, tx, e.tables.Reservations, reservationID, circulation.ErrNotFound)
}

func (e *Engine) bookIDOf(ctx context.Context, tx adapters.DBTx, table string, id uuid.UUID, notFound error) (uuid.UUID, error) {
	stmt := builder.
		From(table).
		Select(colBookID).
		Where(goqu.Ex{colID: id.String()})

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return uuid.Nil, err
	}

	var bookID uuid.UUID

	scanErr := tx.QueryRow(ctx, sqlQuery).Scan(&bookID)
	if scanErr != nil {
		if adapters.IsNoRows(scanErr) {
			return uuid.Nil, notFound
		}

		return uuid.Nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	return bookID, nil
}

// lockLoanRow locks the loan row FOR UPDATE. The caller must already hold
// the book row lock.
func (e *Engine) lockLoanRow(ctx context.Context, tx adapters.DBTx, loanID uuid.UUID) (loanRow, error) {
	stmt := builder.
		From(e.tables.Loans).
		Select(colID, colBookID, colUserID, colCopyID, colStartDate, colEndDate, colState, colPickupDeadline).
		Where(goqu.Ex{colID: loanID.String()}).
		ForUpdate(exp.Wait)

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return loanRow{}, err
	}

	var row loanRow
	var copyID uuid.NullUUID
	var start, end time.Time
	var deadline sql.NullTime

	scanErr := tx.QueryRow(ctx, sqlQuery).
		Scan(&row.id, &row.bookID, &row.userID, &copyID, &start, &end, &row.state, &deadline)
	if scanErr != nil {
		if adapters.IsNoRows(scanErr) {
			return loanRow{}, circulation.ErrNotFound
		}

		return loanRow{}, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	row.rng = circulation.DateRange{Start: circulation.DayOf(start), End: circulation.DayOf(end)}

	if copyID.Valid {
		id := copyID.UUID
		row.copyID = &id
	}

	if deadline.Valid {
		d := circulation.DayOf(deadline.Time)
		row.pickupDeadline = &d
	}

	return row, nil
}

// lockCopyRow locks the copy row FOR UPDATE, after the book row. With
// nowait set, a row held by a concurrent transaction is reported as
// lockUnavailable instead of blocking.
func (e *Engine) lockCopyRow(ctx context.Context, tx adapters.DBTx, copyID uuid.UUID, nowait bool) (copyRow, bool, error) {
	waitOption := exp.Wait
	if nowait {
		waitOption = exp.NoWait
	}

	stmt := builder.
		From(e.tables.Copies).
		Select(colID, colBookID, colInventoryCode, colState, colNote).
		Where(goqu.Ex{colID: copyID.String()}).
		ForUpdate(waitOption)

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return copyRow{}, false, err
	}

	var row copyRow

	scanErr := tx.QueryRow(ctx, sqlQuery).
		Scan(&row.id, &row.bookID, &row.inventoryCode, &row.state, &row.note)
	if scanErr != nil {
		switch {
		case adapters.IsNoRows(scanErr):
			return copyRow{}, false, circulation.ErrNotFound
		case adapters.IsLockNotAvailable(scanErr):
			return copyRow{}, true, nil
		default:
			return copyRow{}, false, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}
	}

	return row, false, nil
}

// lockReservationRow locks the reservation row FOR UPDATE, after the book row.
func (e *Engine) lockReservationRow(ctx context.Context, tx adapters.DBTx, reservationID uuid.UUID) (reservationRow, error) {
	stmt := builder.
		From(e.tables.Reservations).
		Select(colID, colBookID, colUserID, colStartDate, colEndDate, colPosition, colState).
		Where(goqu.Ex{colID: reservationID.String()}).
		ForUpdate(exp.Wait)

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return reservationRow{}, err
	}

	var row reservationRow
	var start, end time.Time

	scanErr := tx.QueryRow(ctx, sqlQuery).
		Scan(&row.id, &row.bookID, &row.userID, &start, &end, &row.position, &row.state)
	if scanErr != nil {
		if adapters.IsNoRows(scanErr) {
			return reservationRow{}, circulation.ErrNotFound
		}

		return reservationRow{}, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	row.rng = circulation.DateRange{Start: circulation.DayOf(start), End: circulation.DayOf(end)}

	return row, nil
}

// claimsOverlapping gathers every capacity claim of the book that overlaps
// the window: loans in copy-holding states and active reservations. The
// caller filters out excluded users or claims with circulation.FilterClaims.
func (e *Engine) claimsOverlapping(ctx context.Context, runner queryRunner, bookID uuid.UUID, window circulation.DateRange) ([]circulation.Claim, error) {
	loanStmt := builder.
		From(e.tables.Loans).
		Select(colID, colUserID, colStartDate, colEndDate).
		Where(
			goqu.Ex{colBookID: bookID.String()},
			goqu.C(colState).In(circulation.LoanStatesHoldingCopy()),
			goqu.C(colStartDate).Lte(dateLiteral(window.End)),
			goqu.C(colEndDate).Gte(dateLiteral(window.Start)),
		)

	claims, err := e.scanClaims(ctx, runner, loanStmt, circulation.ClaimLoan)
	if err != nil {
		return nil, err
	}

	reservationStmt := builder.
		From(e.tables.Reservations).
		Select(colID, colUserID, colStartDate, colEndDate).
		Where(
			goqu.Ex{colBookID: bookID.String(), colState: string(circulation.ReservationActive)},
			goqu.C(colStartDate).Lte(dateLiteral(window.End)),
			goqu.C(colEndDate).Gte(dateLiteral(window.Start)),
		)

	reservationClaims, err := e.scanClaims(ctx, runner, reservationStmt, circulation.ClaimReservation)
	if err != nil {
		return nil, err
	}

	return append(claims, reservationClaims...), nil
}

func (e *Engine) scanClaims(ctx context.Context, runner queryRunner, stmt sqler, kind circulation.ClaimKind) ([]circulation.Claim, error) {
	rows, err := e.runQuery(ctx, runner, stmt)
	if err != nil {
		return nil, err
	}
	defer e.closeRows(rows)

	claims := make([]circulation.Claim, 0)

	for rows.Next() {
		var claim circulation.Claim
		var start, end time.Time

		if scanErr := rows.Scan(&claim.ID, &claim.UserID, &start, &end); scanErr != nil {
			if e.logger != nil {
				e.logger.Error(logMsgScanRowFailed, logAttrError, scanErr.Error())
			}

			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		claim.Kind = kind
		claim.Range = circulation.DateRange{Start: circulation.DayOf(start), End: circulation.DayOf(end)}
		claims = append(claims, claim)
	}

	return claims, nil
}

// countLendable counts the book's copies outside lost/damaged/maintenance.
func (e *Engine) countLendable(ctx context.Context, runner queryRunner, bookID uuid.UUID) (int, error) {
	stmt := builder.
		From(e.tables.Copies).
		Select(goqu.COUNT(colID)).
		Where(
			goqu.Ex{colBookID: bookID.String()},
			goqu.C(colState).NotIn([]string{
				string(circulation.CopyLost),
				string(circulation.CopyDamaged),
				string(circulation.CopyMaintenance),
			}),
		)

	rows, err := e.runQuery(ctx, runner, stmt)
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

// copyCandidates lists the book's copies in inventory-code order, each with
// the date ranges of the loans currently holding it. excludeLoan removes the
// loan being processed from its own conflict set.
func (e *Engine) copyCandidates(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID, excludeLoan *uuid.UUID) ([]circulation.CandidateCopy, error) {
	copyStmt := builder.
		From(e.tables.Copies).
		Select(colID, colInventoryCode, colState).
		Where(goqu.Ex{colBookID: bookID.String()}).
		Order(goqu.I(colInventoryCode).Asc())

	rows, err := e.runQuery(ctx, tx, copyStmt)
	if err != nil {
		return nil, err
	}

	candidates := make([]circulation.CandidateCopy, 0)
	byID := make(map[uuid.UUID]int)

	for rows.Next() {
		var candidate circulation.CandidateCopy

		if scanErr := rows.Scan(&candidate.ID, &candidate.InventoryCode, &candidate.State); scanErr != nil {
			e.closeRows(rows)
			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		byID[candidate.ID] = len(candidates)
		candidates = append(candidates, candidate)
	}
	e.closeRows(rows)

	conditions := []exp.Expression{
		goqu.Ex{colBookID: bookID.String()},
		goqu.C(colState).In(circulation.LoanStatesHoldingCopy()),
		goqu.C(colCopyID).IsNotNull(),
	}
	if excludeLoan != nil {
		conditions = append(conditions, goqu.C(colID).Neq(excludeLoan.String()))
	}

	claimStmt := builder.
		From(e.tables.Loans).
		Select(colCopyID, colStartDate, colEndDate).
		Where(conditions...)

	claimRows, err := e.runQuery(ctx, tx, claimStmt)
	if err != nil {
		return nil, err
	}
	defer e.closeRows(claimRows)

	for claimRows.Next() {
		var copyID uuid.UUID
		var start, end time.Time

		if scanErr := claimRows.Scan(&copyID, &start, &end); scanErr != nil {
			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		if idx, ok := byID[copyID]; ok {
			candidates[idx].Claims = append(candidates[idx].Claims, circulation.DateRange{
				Start: circulation.DayOf(start),
				End:   circulation.DayOf(end),
			})
		}
	}

	return candidates, nil
}

// activeQueueEntries returns the active reservation positions of the book,
// ordered by position.
func (e *Engine) activeQueueEntries(ctx context.Context, runner queryRunner, bookID uuid.UUID) ([]circulation.QueueEntry, error) {
	stmt := builder.
		From(e.tables.Reservations).
		Select(colID, colPosition).
		Where(goqu.Ex{colBookID: bookID.String(), colState: string(circulation.ReservationActive)}).
		Order(goqu.I(colPosition).Asc())

	rows, err := e.runQuery(ctx, runner, stmt)
	if err != nil {
		return nil, err
	}
	defer e.closeRows(rows)

	entries := make([]circulation.QueueEntry, 0)

	for rows.Next() {
		var entry circulation.QueueEntry

		if scanErr := rows.Scan(&entry.ReservationID, &entry.Position); scanErr != nil {
			return nil, errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// recomputeAvailability recomputes the book's derived available-copies
// counter from the live rows and persists it. The counter is a read-path
// convenience only; allocation decisions never consult it.
func (e *Engine) recomputeAvailability(ctx context.Context, tx adapters.DBTx, bookID uuid.UUID) (int, error) {
	total, err := e.countLendable(ctx, tx, bookID)
	if err != nil {
		return 0, err
	}

	today := e.today()
	todayRange := circulation.DateRange{Start: today, End: today}

	claims, err := e.claimsOverlapping(ctx, tx, bookID, todayRange)
	if err != nil {
		return 0, err
	}

	available := total - len(claims)
	if available < 0 {
		available = 0
	}

	updateStmt := builder.
		Update(e.tables.Books).
		Set(goqu.Record{colAvailableCopies: available}).
		Where(goqu.Ex{colID: bookID.String()})

	if _, err := e.execStatement(ctx, tx, updateStmt); err != nil {
		return 0, err
	}

	return available, nil
}
