package postgresengine

import (
	"context"
	"errors"
	"strconv"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine/internal/adapters"
)

// Settings keys consumed by the engine. The settings collaborator stores
// plain key/value rows; missing or malformed values fall back to defaults.
const (
	settingPickupExpiryDays  = "pickup_expiry_days"
	settingExpiryWarningDays = "expiry_warning_days"

	defaultPickupExpiryDays  = 3
	defaultExpiryWarningDays = 1
)

// settingInt reads one integer setting inside the current transaction,
// falling back to the default when the key is missing or not a number.
func (e *Engine) settingInt(ctx context.Context, tx adapters.DBTx, key string, fallback int) (int, error) {
	stmt := builder.
		From(e.tables.Settings).
		Select(colValue).
		Where(goqu.Ex{colKey: key})

	sqlQuery, err := e.toSQL(stmt)
	if err != nil {
		return 0, err
	}

	var raw string

	scanErr := tx.QueryRow(ctx, sqlQuery).Scan(&raw)
	if scanErr != nil {
		if adapters.IsNoRows(scanErr) {
			return fallback, nil
		}

		return 0, errors.Join(circulation.ErrDatabaseOperation, scanErr)
	}

	value, parseErr := strconv.Atoi(raw)
	if parseErr != nil {
		return fallback, nil
	}

	return value, nil
}

// pickupExpiryDays returns how many days a user has to pick up a copy once
// the loan is awaiting pickup.
func (e *Engine) pickupExpiryDays(ctx context.Context, tx adapters.DBTx) (int, error) {
	return e.settingInt(ctx, tx, settingPickupExpiryDays, defaultPickupExpiryDays)
}

// expiryWarningDays returns how many days before the pickup deadline the
// notification collaborator should warn the user.
func (e *Engine) expiryWarningDays(ctx context.Context, tx adapters.DBTx) (int, error) {
	return e.settingInt(ctx, tx, settingExpiryWarningDays, defaultExpiryWarningDays)
}
