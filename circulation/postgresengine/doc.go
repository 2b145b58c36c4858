// Package postgresengine implements the copy-lifecycle and reservation-
// allocation engine on top of Postgres.
//
// Every user- or staff-triggered action runs as exactly one database
// transaction. Serializability is enforced through row locks (FOR UPDATE)
// and named advisory locks, never through language-level concurrency
// primitives: mutations affecting a book's capacity accounting first lock
// the book row, then the copy row where one is touched, in that order, to
// avoid lock-ordering deadlocks between concurrent actions on the same book.
//
// Notifications produced inside a transaction are buffered in an outbox and
// handed to the Notifier strictly after a successful commit; a user is never
// notified of a state change that is later rolled back.
//
// The engine supports pgxpool.Pool, database/sql and sqlx.DB connections
// through the constructors NewEngineFromPGXPool, NewEngineFromSQLDB and
// NewEngineFromSQLX.
package postgresengine
