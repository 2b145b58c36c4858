package postgresengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

// IsAvailableForRange reports whether at least one lendable copy of the book
// is free for every day of the range. With excludeUser set, that user's own
// loans and reservations do not count against them, so a user checking a
// slot they already hold is not blocked by themselves.
//
// This read-only surface runs without locks; allocation decisions inside
// mutations use the same computation on locked rows.
func (e *Engine) IsAvailableForRange(ctx context.Context, bookID uuid.UUID, rng circulation.DateRange, excludeUser *uuid.UUID) (bool, error) {
	if err := e.ensureBookExists(ctx, bookID); err != nil {
		return false, err
	}

	return e.rangeIsFree(ctx, e.db, bookID, rng, excludeUser, nil)
}

// AvailabilityByDate returns the per-day availability breakdown for the
// given window. The per-day view matters because a multi-week range can be
// free at the start and saturated near the end.
func (e *Engine) AvailabilityByDate(ctx context.Context, bookID uuid.UUID, from time.Time, days int, excludeUser *uuid.UUID) (map[time.Time]circulation.DayAvailability, error) {
	window, err := circulation.RangeFrom(from, days)
	if err != nil {
		return nil, err
	}

	if err := e.ensureBookExists(ctx, bookID); err != nil {
		return nil, err
	}

	total, err := e.countLendable(ctx, e.db, bookID)
	if err != nil {
		return nil, err
	}

	claims, err := e.claimsOverlapping(ctx, e.db, bookID, window)
	if err != nil {
		return nil, err
	}

	claims = circulation.FilterClaims(claims, excludeUser, nil)

	return circulation.ComputeDailyAvailability(total, claims, window), nil
}

// rangeIsFree computes occupied < total for every day of the range on the
// given runner (either the pool for reads or a transaction for decisions).
func (e *Engine) rangeIsFree(ctx context.Context, runner queryRunner, bookID uuid.UUID, rng circulation.DateRange, excludeUser *uuid.UUID, excludeClaim *uuid.UUID) (bool, error) {
	total, err := e.countLendable(ctx, runner, bookID)
	if err != nil {
		return false, err
	}

	claims, err := e.claimsOverlapping(ctx, runner, bookID, rng)
	if err != nil {
		return false, err
	}

	claims = circulation.FilterClaims(claims, excludeUser, excludeClaim)

	return circulation.RangeIsFree(total, claims, rng), nil
}

// RecomputeBookAvailability recomputes and persists the derived counter in
// its own transaction and returns the fresh value. Calling it twice with no
// intervening mutation yields identical results.
func (e *Engine) RecomputeBookAvailability(ctx context.Context, bookID uuid.UUID) (int, error) {
	available := 0

	err := e.inTransaction(ctx, func(tx adapters.DBTx, _ *circulation.Outbox) error {
		if _, lockErr := e.lockBookRow(ctx, tx, bookID, true); lockErr != nil {
			return lockErr
		}

		recomputed, recomputeErr := e.recomputeAvailability(ctx, tx, bookID)
		if recomputeErr != nil {
			return recomputeErr
		}

		available = recomputed

		return nil
	})
	if err != nil {
		return 0, err
	}

	return available, nil
}
