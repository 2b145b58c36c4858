package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

// CreateBook creates a catalog entry together with its initial copies.
//
// Uniqueness spans three identifier columns (two ISBN formats plus EAN), so
// a plain unique constraint cannot express the check. The check-then-write
// runs under one named advisory lock per identifier; a second submission
// with any matching identifier gets ErrDuplicate, and contention past the
// bounded wait gets ErrLockTimeout.
func (e *Engine) CreateBook(ctx context.Context, actor circulation.Actor, newBook circulation.NewBook) (uuid.UUID, error) {
	if !actor.IsStaff() {
		return uuid.Nil, circulation.ErrForbidden
	}

	if newBook.Title == "" {
		return uuid.Nil, fmt.Errorf("%w: empty title", circulation.ErrInvalidInput)
	}

	if newBook.Copies < 0 {
		return uuid.Nil, fmt.Errorf("%w: negative copy count", circulation.ErrInvalidInput)
	}

	bookID := uuid.New()

	err := e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		identifiers := newBook.Identifiers()

		if len(identifiers) > 0 {
			if lockErr := e.acquireIdentifierLocks(ctx, tx, identifiers); lockErr != nil {
				return lockErr
			}

			clash, clashErr := e.identifiersInUse(ctx, tx, identifiers)
			if clashErr != nil {
				return clashErr
			}

			if clash {
				return fmt.Errorf("%w: catalog identifiers already in use", circulation.ErrDuplicate)
			}
		}

		insertStmt := builder.
			Insert(e.tables.Books).
			Rows(goqu.Record{
				colID:              bookID.String(),
				colTitle:           newBook.Title,
				colISBN10:          newBook.ISBN10,
				colISBN13:          newBook.ISBN13,
				colEAN:             newBook.EAN,
				colTotalCopies:     newBook.Copies,
				colAvailableCopies: newBook.Copies,
			})

		if _, insertErr := e.execStatement(ctx, tx, insertStmt); insertErr != nil {
			return insertErr
		}

		for n := 1; n <= newBook.Copies; n++ {
			copyID := uuid.New()
			code := NextInventoryCode(bookID, n)

			if copyErr := e.insertCopy(ctx, tx, copyID, bookID, code, circulation.CopyAvailable, ""); copyErr != nil {
				return copyErr
			}
		}

		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	e.logOperation("book created", logAttrBookID, bookID.String())

	return bookID, nil
}

// SoftDeleteBook sets the deletion marker. The row stays in place, but the
// book disappears from every availability query and accepts no new loans or
// reservations.
func (e *Engine) SoftDeleteBook(ctx context.Context, actor circulation.Actor, bookID uuid.UUID) error {
	if !actor.IsStaff() {
		return circulation.ErrForbidden
	}

	err := e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		book, lockErr := e.lockBookRow(ctx, tx, bookID, true)
		if lockErr != nil {
			return lockErr
		}

		if book.deleted {
			return fmt.Errorf("%w: book %s already deleted", circulation.ErrConflict, bookID)
		}

		updateStmt := builder.
			Update(e.tables.Books).
			Set(goqu.Record{colDeletedAt: e.clock().UTC()}).
			Where(goqu.Ex{colID: bookID.String()})

		if _, updateErr := e.execStatement(ctx, tx, updateStmt); updateErr != nil {
			return updateErr
		}

		return nil
	})
	if err != nil {
		return err
	}

	e.logOperation("book soft-deleted", logAttrBookID, bookID.String())

	return nil
}

// identifiersInUse checks whether any of the given identifiers matches any
// of the three identifier columns of a non-deleted book.
func (e *Engine) identifiersInUse(ctx context.Context, tx adapters.DBTx, identifiers []string) (bool, error) {
	stmt := builder.
		From(e.tables.Books).
		Select(goqu.COUNT(colID)).
		Where(
			goqu.C(colDeletedAt).IsNull(),
			goqu.Or(
				goqu.C(colISBN10).In(identifiers),
				goqu.C(colISBN13).In(identifiers),
				goqu.C(colEAN).In(identifiers),
			),
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

// ensureBookExists verifies, without locking, that the book exists and is
// not soft-deleted. Used by the read-only surfaces.
func (e *Engine) ensureBookExists(ctx context.Context, bookID uuid.UUID) error {
	stmt := builder.
		From(e.tables.Books).
		Select(colID).
		Where(goqu.Ex{colID: bookID.String()}, goqu.C(colDeletedAt).IsNull())

	rows, err := e.runQuery(ctx, e.db, stmt)
	if err != nil {
		return err
	}
	defer e.closeRows(rows)

	if !rows.Next() {
		return circulation.ErrBookNotFound
	}

	return nil
}

// GetBook reads one book record, including soft-deleted ones.
func (e *Engine) GetBook(ctx context.Context, bookID uuid.UUID) (circulation.Book, error) {
	stmt := builder.
		From(e.tables.Books).
		Select(colID, colTitle, colISBN10, colISBN13, colEAN, colTotalCopies, colAvailableCopies, colDeletedAt).
		Where(goqu.Ex{colID: bookID.String()})

	rows, err := e.runQuery(ctx, e.db, stmt)
	if err != nil {
		return circulation.Book{}, err
	}
	defer e.closeRows(rows)

	if !rows.Next() {
		return circulation.Book{}, circulation.ErrBookNotFound
	}

	var book circulation.Book
	var deletedAt sql.NullTime

	if scanErr := rows.Scan(&book.ID, &book.Title, &book.ISBN10, &book.ISBN13, &book.EAN,
		&book.TotalCopies, &book.AvailableCopies, &deletedAt); scanErr != nil {
		return circulation.Book{}, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	if deletedAt.Valid {
		t := deletedAt.Time
		book.DeletedAt = &t
	}

	return book, nil
}
