// Package adapters abstracts the database client libraries behind small
// interfaces so the engine supports pgxpool.Pool, database/sql and sqlx.DB
// without caring which one is in use. Unlike a plain query interface, the
// adapters expose transactions: every engine action runs as one transaction
// holding row locks, so Begin/Commit/Rollback are part of the contract.
package adapters
