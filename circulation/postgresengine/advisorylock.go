package postgresengine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

const advisoryLockKeyPrefix = "circulation:"

// acquireAdvisoryLock takes a named transaction-scoped advisory lock, polling
// pg_try_advisory_xact_lock with a bounded deadline. The lock is released
// automatically when the transaction ends. On deadline expiry the caller gets
// circulation.ErrLockTimeout and should surface a retry-later error.
//
// Polling instead of SET lock_timeout keeps the behavior identical across the
// pgx, database/sql and sqlx adapters.
func (e *Engine) acquireAdvisoryLock(ctx context.Context, tx adapters.DBTx, key string) error {
	stmt := builder.Select(goqu.L("pg_try_advisory_xact_lock(hashtextextended(?, 0))", advisoryLockKeyPrefix+key))

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(e.advisoryLockTimeout)

	for {
		var acquired bool

		if scanErr := tx.QueryRow(ctx, sqlQuery).Scan(&acquired); scanErr != nil {
			return errors.Join(circulation.ErrDatabaseOperation, scanErr)
		}

		if acquired {
			return nil
		}

		if time.Now().After(deadline) {
			return circulation.ErrLockTimeout
		}

		select {
		case <-time.After(e.advisoryLockRetryDelay):
		case <-ctx.Done():
			return errors.Join(circulation.ErrLockTimeout, ctx.Err())
		}
	}
}

// acquireIdentifierLocks takes one advisory lock per catalog identifier, in
// sorted order so two creations sharing any identifier always collide on the
// first shared one. The cross-column uniqueness check spans two ISBN formats
// plus EAN, which a plain unique constraint cannot express, so the
// check-then-write runs under these named locks.
func (e *Engine) acquireIdentifierLocks(ctx context.Context, tx adapters.DBTx, identifiers []string) error {
	sorted := make([]string, len(identifiers))
	copy(sorted, identifiers)
	sort.Strings(sorted)

	for _, identifier := range sorted {
		if err := e.acquireAdvisoryLock(ctx, tx, "book_identifier:"+identifier); err != nil {
			return err
		}
	}

	return nil
}
