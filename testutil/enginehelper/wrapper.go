package enginehelper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-engine-go/example/config"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// Wrapper interface to abstract over different engine types
type Wrapper interface {
	GetEngine() *postgresengine.Engine
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	pool   *pgxpool.Pool
	engine *postgresengine.Engine
}

func (w *PGXPoolWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *PGXPoolWrapper) Close() {
	w.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	db     *sql.DB
	engine *postgresengine.Engine
}

func (w *SQLDBWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLDBWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	db     *sqlx.DB
	engine *postgresengine.Engine
}

func (w *SQLXWrapper) GetEngine() *postgresengine.Engine {
	return w.engine
}

func (w *SQLXWrapper) Close() {
	_ = w.db.Close() // ignore error
}

// CreateWrapperWithTestConfig creates the appropriate wrapper based on the environment variable
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch engineTypeFromEnv {
	case typePGXPool, "":
		connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolTestConfig())
		assert.NoError(t, err, "error connecting to DB pool in test setup")

		engine, err := postgresengine.NewEngineFromPGXPool(connPool, options...)
		assert.NoError(t, err, "error creating circulation engine")

		wrapper := &PGXPoolWrapper{pool: connPool, engine: engine}
		applySchema(t, wrapper)

		return wrapper

	case typeSQLDB:
		db := config.PostgresSQLDBTestConfig()

		engine, err := postgresengine.NewEngineFromSQLDB(db, options...)
		assert.NoError(t, err, "error creating circulation engine")

		wrapper := &SQLDBWrapper{db: db, engine: engine}
		applySchema(t, wrapper)

		return wrapper

	case typeSQLXDB:
		db := config.PostgresSQLXTestConfig()

		engine, err := postgresengine.NewEngineFromSQLX(db, options...)
		assert.NoError(t, err, "error creating circulation engine")

		wrapper := &SQLXWrapper{db: db, engine: engine}
		applySchema(t, wrapper)

		return wrapper

	default: // neither one of the known types nor empty
		panic(fmt.Sprintf("unsupported wrapper type from env: %s", engineTypeFromEnv))
	}
}

// applySchema creates the tables if they do not exist yet.
func applySchema(t testing.TB, wrapper Wrapper) {
	execOnWrapper(t, wrapper, postgresengine.Schema(), "error applying schema in test setup")
}

// CleanUp empties all circulation tables for the given wrapper.
func CleanUp(t testing.TB, wrapper Wrapper) {
	execOnWrapper(t, wrapper,
		"TRUNCATE TABLE loans, reservations, copies, books, settings",
		"error cleaning up the circulation tables")
}

// SetSetting writes one settings row, replacing any previous value.
func SetSetting(t testing.TB, wrapper Wrapper, key string, value string) {
	execOnWrapper(t, wrapper,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		"error writing settings row", key, value)
}

func execOnWrapper(t testing.TB, wrapper Wrapper, query string, failMsg string, args ...any) {
	switch w := wrapper.(type) {
	case *PGXPoolWrapper:
		_, err := w.pool.Exec(context.Background(), query, args...)
		assert.NoError(t, err, failMsg)

	case *SQLDBWrapper:
		_, err := w.db.Exec(query, args...)
		assert.NoError(t, err, failMsg)

	case *SQLXWrapper:
		_, err := w.db.Exec(query, args...)
		assert.NoError(t, err, failMsg)

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", w))
	}
}
