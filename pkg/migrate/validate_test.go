package migrate

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
)

const wellFormed = "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n-- +goose Down\nSELECT 1;\n"

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded()))
	require.NoError(t, ValidateFS(Source("migrations")))
}

func TestValidateFSRejectsBrokenFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"1_init.sql": {Data: []byte(wellFormed)},
		},
		"duplicate version": {
			"20260301090000_a.sql": {Data: []byte(wellFormed)},
			"20260301090000_b.sql": {Data: []byte(wellFormed)},
		},
		"down before up": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"unbalanced block": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, ValidateFS(fsys))
		})
	}

	ignored := fstest.MapFS{
		"README.md":            {Data: []byte("notes")},
		"20260301090000_a.sql": {Data: []byte(wellFormed)},
	}
	require.NoError(t, ValidateFS(ignored))
}

func TestCreateMigrationRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	path, err := createMigration(dir, "Split escrow holds", now)
	require.NoError(t, err)
	require.Contains(t, path, "20260302083000_split_escrow_holds.sql")

	_, err = createMigration(dir, "split escrow holds", now)
	require.Error(t, err)

	_, err = createMigration(dir, "!!!", now)
	require.Error(t, err)
}
