// Package circulation contains the core domain model of the copy-lifecycle
// and reservation-allocation engine: identifiers, lifecycle states, date-range
// arithmetic, and the pure decision functions (availability computation, copy
// selection, queue renumbering) that the storage engines execute against
// row-locked data.
//
// Everything in this package is side-effect free. The Postgres-backed engine
// in circulation/postgresengine gathers the relevant rows under lock, calls
// the pure functions here to decide, and applies the resulting mutations
// inside the same transaction.
package circulation
