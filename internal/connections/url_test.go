package connections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputFromURLPostgres(t *testing.T) {
	in, err := InputFromURL("default", "postgresql://reader:pw@db.example.com:6543/sales?sslmode=require", "")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, in.Driver)
	assert.Equal(t, "db.example.com", in.Host)
	assert.Equal(t, 6543, in.Port)
	assert.Equal(t, "sales", in.Database)
	assert.Equal(t, "reader", in.User)
	assert.Equal(t, "pw", in.Password)
	assert.Equal(t, "require", in.SSLMode)
	assert.NotEmpty(t, in.DSN)
	require.NoError(t, Validate(normalizeInput(in)))
}

func TestInputFromURLFileDrivers(t *testing.T) {
	in, err := InputFromURL("default", "duckdb:///data/warehouse.duckdb", "")
	require.NoError(t, err)
	assert.Equal(t, DriverDuckDB, in.Driver)
	assert.Equal(t, "/data/warehouse.duckdb", in.Database)

	in, err = InputFromURL("default", "sqlite://app.db", "")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, in.Driver)
	assert.Equal(t, "app.db", in.Database)

	in, err = InputFromURL("default", "/srv/app.sqlite", "sqlite")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, in.Driver)
	assert.Equal(t, "/srv/app.sqlite", in.Database)
}

func TestInputFromURLErrors(t *testing.T) {
	for _, raw := range []string{"", "/no/scheme.db", "mysql://u@h/db", "postgres://h:notaport/db"} {
		_, err := InputFromURL("default", raw, "")
		assert.ErrorIs(t, err, ErrInvalid, raw)
	}
}
