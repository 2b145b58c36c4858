package adapters

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	sqlStateUniqueViolation  = "23505"
	sqlStateLockNotAvailable = "55P03"
)

// sqlStateOf extracts the SQLSTATE code from a driver error, for either the
// pgx or the lib/pq driver. Empty string when the error carries none.
func sqlStateOf(err error) string {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	return ""
}

// IsUniqueViolation reports whether the error is a unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	return sqlStateOf(err) == sqlStateUniqueViolation
}

// IsLockNotAvailable reports whether the error stems from a NOWAIT row lock
// that could not be obtained (SQLSTATE 55P03).
func IsLockNotAvailable(err error) bool {
	return sqlStateOf(err) == sqlStateLockNotAvailable
}

// IsNoRows reports whether the error is the driver's no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
