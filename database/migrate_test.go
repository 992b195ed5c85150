package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "postgres://u:p@h:5432/d?sslmode=disable", want: "pgx5://u:p@h:5432/d?sslmode=disable"},
		{in: "postgresql://u@h/d", want: "pgx5://u@h/d"},
		{in: "pgx5://u@h/d", want: "pgx5://u@h/d"},
		{in: "mysql://u@h/d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := driverURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	t.Parallel()

	ctx := context.Background()
	connString, cleanupFunc := SetupTestDBContainer(t, ctx)
	t.Cleanup(cleanupFunc)

	m, err := NewFromConnectionString(connString)
	require.NoError(t, err)
	defer closeMigrator(m)

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)

	for i := 1; i <= len(fnames); i++ {
		assert.NoError(t, m.Steps(i))
		assert.NoError(t, m.Steps(-i))
		assert.NoError(t, m.Steps(i))

		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.False(t, dirty)
		assert.Equal(t, uint(i), version)

		if i < len(fnames) {
			assert.NoError(t, m.Steps(-i))
		}
	}
}
