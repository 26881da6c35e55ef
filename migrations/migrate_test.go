package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db", DriverURL("postgres://u:p@localhost:5432/db"))
	assert.Equal(t, "pgx5://localhost/db", DriverURL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://localhost/db", DriverURL("pgx5://localhost/db"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(postgresFS, "postgres/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(postgresFS, "postgres/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
