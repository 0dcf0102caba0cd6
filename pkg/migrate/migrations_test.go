package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castmaster/castmaster-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.Validate(os.DirFS("migrations")))

	embedded, err := migrate.Source("")
	require.NoError(t, err)
	require.NoError(t, migrate.Validate(embedded))
}

func TestJobNotificationMigrationEnforcesOneRowPerJob(t *testing.T) {
	content := readMigration(t, "*_create_job_notifications.sql")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS job_notifications",
		"job_id text NOT NULL UNIQUE",
		"CHECK (status IN ('pending', 'sent', 'failed'))",
		"DROP TABLE IF EXISTS job_notifications",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestUsageLogMigrationRequiresSubject(t *testing.T) {
	content := readMigration(t, "*_create_usage_logs.sql")
	assert.Contains(t, content, "CHECK (user_id IS NOT NULL OR ip_hash IS NOT NULL)")
	assert.Contains(t, content, "DROP TABLE IF EXISTS usage_logs")
}

func TestCreateSanitizesNameAndRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	path, err := migrate.Create(dir, "Add Render Jobs!", now)
	require.NoError(t, err)
	assert.Equal(t, "20260302090500_add_render_jobs.sql", filepath.Base(path))
	require.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.Create(dir, "add render jobs", now)
	assert.Error(t, err)

	_, err = migrate.Create(dir, "!!!", now)
	assert.Error(t, err)
}

func TestValidateRejectsBrokenFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101000000_ok.sql":  {Data: []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")},
		"20260101000000_dup.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
	}
	assert.ErrorContains(t, migrate.Validate(fsys), "version 20260101000000")

	unbalanced := fstest.MapFS{
		"20260101000000_x.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
	}
	assert.ErrorContains(t, migrate.Validate(unbalanced), "StatementBegin")

	badName := fstest.MapFS{"1_init.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}}
	assert.ErrorContains(t, migrate.Validate(badName), "invalid migration filename")
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matches %s", pattern)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	source, err := migrate.Source("")
	require.NoError(t, err)
	embedded, err := fs.Glob(source, "*.sql")
	require.NoError(t, err)

	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	assert.Len(t, embedded, len(onDisk))
}
