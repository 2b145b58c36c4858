package postgresengine_test

import (
	"testing"

	_ "github.com/lib/pq" // postgres driver
	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-engine-go/circulation"
	"github.com/AntonStoeckl/library-circulation-engine-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-engine-go/example/config"
)

func Test_FactoryFunctions_NewEngine_ShouldFail_WithNilDatabaseConnection(t *testing.T) {
	testCases := []struct {
		name        string
		factoryFunc func() (*postgresengine.Engine, error)
	}{
		{
			name: "NewEngineFromPGXPool with nil",
			factoryFunc: func() (*postgresengine.Engine, error) {
				return postgresengine.NewEngineFromPGXPool(nil)
			},
		},
		{
			name: "NewEngineFromSQLDB with nil",
			factoryFunc: func() (*postgresengine.Engine, error) {
				return postgresengine.NewEngineFromSQLDB(nil)
			},
		},
		{
			name: "NewEngineFromSQLX with nil",
			factoryFunc: func() (*postgresengine.Engine, error) {
				return postgresengine.NewEngineFromSQLX(nil)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := tc.factoryFunc()

			// assert
			assert.ErrorContains(t, err, circulation.ErrNilDatabaseConnection.Error())
		})
	}
}

func Test_FactoryFunctions_NewEngine_ShouldFail_WithEmptyTableName(t *testing.T) {
	db := config.PostgresSQLDBTestConfig()
	defer func() { _ = db.Close() }()

	_, err := postgresengine.NewEngineFromSQLDB(db, postgresengine.WithTableNames(postgresengine.TableNames{
		Books: "",
	}))

	assert.ErrorContains(t, err, circulation.ErrEmptyTableName.Error())
}

func Test_FactoryFunctions_NewEngine_ShouldFail_WithInvalidOptions(t *testing.T) {
	db := config.PostgresSQLDBTestConfig()
	defer func() { _ = db.Close() }()

	_, err := postgresengine.NewEngineFromSQLDB(db, postgresengine.WithLoanRequestDays(0))
	assert.ErrorIs(t, err, circulation.ErrInvalidInput)

	_, err = postgresengine.NewEngineFromSQLDB(db, postgresengine.WithClock(nil))
	assert.ErrorIs(t, err, circulation.ErrInvalidInput)

	_, err = postgresengine.NewEngineFromSQLDB(db, postgresengine.WithAdvisoryLockTimeout(0, 0))
	assert.ErrorIs(t, err, circulation.ErrInvalidInput)
}
