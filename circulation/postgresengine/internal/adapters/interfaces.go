package adapters

import "context"

// DBAdapter defines the database operations needed by the engine.
// Query and Exec run outside any transaction and serve the read-only
// surfaces; Begin starts the one-transaction-per-action unit of work.
type DBAdapter interface {
	Query(ctx context.Context, query string) (DBRows, error)
	Exec(ctx context.Context, query string) (DBResult, error)
	Begin(ctx context.Context) (DBTx, error)
}

// DBTx is one database transaction. All row-locking statements run through
// this; the engine commits or rolls back exactly once per action.
type DBTx interface {
	Query(ctx context.Context, query string) (DBRows, error)
	QueryRow(ctx context.Context, query string) DBRow
	Exec(ctx context.Context, query string) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
}

// DBRow defines the interface for a single-row result.
// Scan returns the driver's no-rows error when the row does not exist;
// use IsNoRows to detect that case across drivers.
type DBRow interface {
	Scan(dest ...any) error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}
