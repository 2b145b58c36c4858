package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

const (
	dialectPostgres = "postgres"

	defaultBooksTable        = "books"
	defaultCopiesTable       = "copies"
	defaultLoansTable        = "loans"
	defaultReservationsTable = "reservations"
	defaultSettingsTable     = "settings"

	defaultLoanRequestDays        = 14
	defaultAdvisoryLockTimeout    = 10 * time.Second
	defaultAdvisoryLockRetryDelay = 100 * time.Millisecond

	colID              = "id"
	colBookID          = "book_id"
	colUserID          = "user_id"
	colCopyID          = "copy_id"
	colTitle           = "title"
	colISBN10          = "isbn10"
	colISBN13          = "isbn13"
	colEAN             = "ean"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colDeletedAt       = "deleted_at"
	colInventoryCode   = "inventory_code"
	colState           = "state"
	colNote            = "note"
	colNotes           = "notes"
	colStartDate       = "start_date"
	colEndDate         = "end_date"
	colActive          = "active"
	colPickupDeadline  = "pickup_deadline"
	colPosition        = "queue_position"
	colKey             = "key"
	colValue           = "value"

	logMsgBuildQueryFailed     = "failed to build sql query"
	logMsgDBQueryFailed        = "database query execution failed"
	logMsgDBExecFailed         = "database execution failed"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgScanRowFailed        = "failed to scan database row"
	logMsgBeginTxFailed        = "failed to begin transaction"
	logMsgCommitTxFailed       = "failed to commit transaction"
	logMsgRollbackTxFailed     = "failed to roll back transaction"
	logMsgNotifyFailed         = "post-commit notification delivery failed"
	logMsgNotifyPayloadFailed  = "failed to encode notification payload"
	logMsgOperation            = "circulation operation: "
	logMsgCopyStateAnomaly     = "copy in impossible state during transition, left untouched for manual review"
	logMsgMissingBoundCopy     = "loan in copy-holding transition has no bound copy"
	logAttrError               = "error"
	logAttrQuery               = "query"
	logAttrBookID              = "book_id"
	logAttrCopyID              = "copy_id"
	logAttrLoanID              = "loan_id"
	logAttrReservationID       = "reservation_id"
	logAttrUserID              = "user_id"
	logAttrState               = "state"
	logAttrNotificationKind    = "notification_kind"
	logAttrNotificationPayload = "notification_payload"
)

var builder = goqu.Dialect(dialectPostgres)

// Logger receives SQL-level debug output, operational info, warnings and
// error reports. A nil logger keeps the engine silent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TableNames configures the table names the engine operates on.
type TableNames struct {
	Books        string
	Copies       string
	Loans        string
	Reservations string
	Settings     string
}

func defaultTableNames() TableNames {
	return TableNames{
		Books:        defaultBooksTable,
		Copies:       defaultCopiesTable,
		Loans:        defaultLoansTable,
		Reservations: defaultReservationsTable,
		Settings:     defaultSettingsTable,
	}
}

func (t TableNames) complete() bool {
	return t.Books != "" && t.Copies != "" && t.Loans != "" && t.Reservations != "" && t.Settings != ""
}

// Engine is the Postgres-backed circulation engine. It owns no state beyond
// its configuration; all domain state lives in the database.
type Engine struct {
	db                     adapters.DBAdapter
	tables                 TableNames
	logger                 Logger
	notifier               circulation.Notifier
	clock                  func() time.Time
	loanRequestDays        int
	advisoryLockTimeout    time.Duration
	advisoryLockRetryDelay time.Duration
}

// NewEngineFromPGXPool creates a new Engine using a pgx pool with optional configuration.
func NewEngineFromPGXPool(pool *pgxpool.Pool, options ...Option) (*Engine, error) {
	if pool == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(pool), options...)
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options...)
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options...)
}

func newEngine(db adapters.DBAdapter, options ...Option) (*Engine, error) {
	engine := &Engine{
		db:                     db,
		tables:                 defaultTableNames(),
		clock:                  time.Now,
		loanRequestDays:        defaultLoanRequestDays,
		advisoryLockTimeout:    defaultAdvisoryLockTimeout,
		advisoryLockRetryDelay: defaultAdvisoryLockRetryDelay,
	}

	for _, option := range options {
		if err := option(engine); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

// today returns the current day normalized to midnight UTC.
func (e *Engine) today() time.Time {
	return circulation.DayOf(e.clock())
}

// queryRunner is satisfied by both the adapter (non-transactional reads)
// and an open transaction.
type queryRunner interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
}

// sqler is satisfied by every goqu statement type.
type sqler interface {
	ToSQL() (string, []interface{}, error)
}

// toSQL renders a goqu statement, logging and wrapping build failures.
func (e *Engine) toSQL(stmt sqler) (string, error) {
	sqlQuery, _, err := stmt.ToSQL()
	if err != nil {
		if e.logger != nil {
			e.logger.Error(logMsgBuildQueryFailed, logAttrError, err.Error())
		}

		return "", errors.Join(circulation.ErrDatabaseOperation, err)
	}

	return sqlQuery, nil
}

// inTransaction runs fn inside one transaction and flushes the outbox
// strictly after a successful commit. Any error from fn rolls back
// unconditionally before control returns to the caller.
func (e *Engine) inTransaction(ctx context.Context, fn func(tx adapters.DBTx, outbox *circulation.Outbox) error) error {
	tx, beginErr := e.db.Begin(ctx)
	if beginErr != nil {
		if e.logger != nil {
			e.logger.Error(logMsgBeginTxFailed, logAttrError, beginErr.Error())
		}

		return errors.Join(circulation.ErrDatabaseOperation, beginErr)
	}

	outbox := &circulation.Outbox{}

	if err := fn(tx, outbox); err != nil {
		e.rollback(ctx, tx)
		return err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		if e.logger != nil {
			e.logger.Error(logMsgCommitTxFailed, logAttrError, commitErr.Error())
		}
		e.rollback(ctx, tx)

		return errors.Join(circulation.ErrDatabaseOperation, commitErr)
	}

	e.flushOutbox(ctx, outbox)

	return nil
}

// rollback rolls the transaction back and logs, but never propagates, failures.
func (e *Engine) rollback(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		if e.logger != nil {
			e.logger.Warn(logMsgRollbackTxFailed, logAttrError, rollbackErr.Error())
		}
	}
}

// flushOutbox hands every buffered notification to the notifier.
// Delivery failures are logged and swallowed: the triggering action has
// already committed and must not fail retroactively.
func (e *Engine) flushOutbox(ctx context.Context, outbox *circulation.Outbox) {
	notifications := outbox.Drain()
	if len(notifications) == 0 || e.notifier == nil {
		return
	}

	for _, notification := range notifications {
		payload, payloadErr := notification.PayloadJSON()
		if payloadErr != nil {
			if e.logger != nil {
				e.logger.Warn(logMsgNotifyPayloadFailed,
					logAttrError, payloadErr.Error(),
					logAttrNotificationKind, string(notification.Kind))
			}

			continue
		}

		if e.logger != nil {
			e.logger.Debug(logMsgOperation+"notify",
				logAttrNotificationKind, string(notification.Kind),
				logAttrNotificationPayload, string(payload))
		}

		if notifyErr := e.notifier.Notify(ctx, notification); notifyErr != nil {
			if e.logger != nil {
				e.logger.Warn(logMsgNotifyFailed,
					logAttrError, notifyErr.Error(),
					logAttrNotificationKind, string(notification.Kind))
			}
		}
	}
}

// execStatement renders and executes a goqu statement on the transaction,
// returning the number of affected rows.
func (e *Engine) execStatement(ctx context.Context, tx adapters.DBTx, stmt sqler) (int64, error) {
	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return 0, err
	}

	result, execErr := tx.Exec(ctx, sqlQuery)
	if execErr != nil {
		if e.logger != nil {
			e.logger.Error(logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		}

		return 0, errors.Join(circulation.ErrDatabaseOperation, execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return 0, errors.Join(circulation.ErrDatabaseOperation, rowsErr)
	}

	return rowsAffected, nil
}

// runQuery renders and executes a goqu select on the given runner.
func (e *Engine) runQuery(ctx context.Context, runner queryRunner, stmt sqler) (adapters.DBRows, error) {
	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return nil, err
	}

	rows, queryErr := runner.Query(ctx, sqlQuery)
	if queryErr != nil {
		if e.logger != nil {
			e.logger.Error(logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		}

		return nil, errors.Join(circulation.ErrDatabaseOperation, queryErr)
	}

	return rows, nil
}

// closeRows safely closes database rows and logs any errors.
func (e *Engine) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if e.logger != nil {
			e.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (e *Engine) logOperation(action string, args ...any) {
	if e.logger != nil {
		e.logger.Info(logMsgOperation+action, args...)
	}
}

func dateLiteral(t time.Time) string {
	return t.Format(circulation.DateISOFormat)
}
