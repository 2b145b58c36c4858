package postgresengine

import (
	"time"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithTableNames overrides the default table names. All five names must be
// non-empty.
func WithTableNames(tables TableNames) Option {
	return func(e *Engine) error {
		if !tables.complete() {
			return circulation.ErrEmptyTableName
		}

		e.tables = tables

		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Debug level: SQL queries and notification payloads (development use)
// Info level: operation outcomes (production-safe)
// Warn level: non-critical issues like notification delivery failures
// Error level: integrity anomalies and failures that abort operations.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithNotifier sets the notification collaborator that receives outbox
// entries after commit. Without a notifier, notifications are dropped.
func WithNotifier(notifier circulation.Notifier) Option {
	return func(e *Engine) error {
		e.notifier = notifier
		return nil
	}
}

// WithClock overrides the time source, mainly for tests that pin "today".
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock == nil {
			return circulation.ErrInvalidInput
		}

		e.clock = clock

		return nil
	}
}

// WithLoanRequestDays overrides the implicit window length of a loan request.
func WithLoanRequestDays(days int) Option {
	return func(e *Engine) error {
		if days < 1 {
			return circulation.ErrInvalidInput
		}

		e.loanRequestDays = days

		return nil
	}
}

// WithAdvisoryLockTimeout bounds the wait for named advisory locks.
// On expiry the operation fails with circulation.ErrLockTimeout instead of
// blocking indefinitely.
func WithAdvisoryLockTimeout(timeout time.Duration, retryDelay time.Duration) Option {
	return func(e *Engine) error {
		if timeout <= 0 || retryDelay <= 0 {
			return circulation.ErrInvalidInput
		}

		e.advisoryLockTimeout = timeout
		e.advisoryLockRetryDelay = retryDelay

		return nil
	}
}
