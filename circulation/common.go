package circulation

import (
	"errors"
)

// Sentinel errors for the engine's error taxonomy.
// Engine operations combine these with their causes via errors.Join,
// so callers branch with errors.Is and map to reason codes with ReasonCode.
var (
	ErrBookNotFound      = errors.New("book not found")
	ErrNotFound          = errors.New("record not found")
	ErrNotAvailable      = errors.New("no copy available for the requested range")
	ErrDuplicate         = errors.New("duplicate request")
	ErrConflict          = errors.New("record is in a conflicting state")
	ErrForbidden         = errors.New("actor is not allowed to perform this action")
	ErrLockTimeout       = errors.New("advisory lock not acquired within timeout")
	ErrIntegrity         = errors.New("data integrity violation, manual review required")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrDatabaseOperation = errors.New("database operation failed")

	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrEmptyTableName        = errors.New("empty table name supplied")
)

// Stable machine-readable reason codes returned to action endpoints.
// The UI branches on these, never on message text.
const (
	ReasonBookNotFound = "book_not_found"
	ReasonNotAvailable = "not_available"
	ReasonDuplicate    = "duplicate"
	ReasonConflict     = "conflict"
	ReasonNotFound     = "not_found"
	ReasonForbidden    = "forbidden"
	ReasonLockTimeout  = "lock_timeout"
	ReasonIntegrity    = "integrity"
	ReasonValidation   = "validation"
	ReasonDB           = "db"
)

// ReasonCode maps an engine error to its stable machine-readable reason code.
// A nil error maps to the empty string. Unrecognized errors map to ReasonDB,
// matching the propagation policy: infrastructure detail goes to the log,
// the caller only learns that the database failed.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBookNotFound):
		return ReasonBookNotFound
	case errors.Is(err, ErrNotAvailable):
		return ReasonNotAvailable
	case errors.Is(err, ErrDuplicate):
		return ReasonDuplicate
	case errors.Is(err, ErrConflict):
		return ReasonConflict
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	case errors.Is(err, ErrLockTimeout):
		return ReasonLockTimeout
	case errors.Is(err, ErrIntegrity):
		return ReasonIntegrity
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidDateRange):
		return ReasonValidation
	default:
		return ReasonDB
	}
}

// Outcome is the tagged result type for mutations that historically failed
// silently. Callers must switch on it and abort their transaction on anything
// other than OutcomeOk.
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeConflict
	OutcomeNotFound
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeConflict:
		return "conflict"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
