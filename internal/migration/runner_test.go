package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ayash-Bera/metricslab/backend/internal/database"
	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/Ayash-Bera/metricslab/backend/internal/repository/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(database.NewManagerWithDB(testutil.DB(t), nil, testutil.Logger(t)), testutil.Logger(t))
}

func TestStatementsOf(t *testing.T) {
	script := `
-- header
CREATE TABLE a (id int);

CREATE INDEX i ON a (id);
`
	assert.Equal(t, []string{"CREATE TABLE a (id int)", "CREATE INDEX i ON a (id)"}, statementsOf(script))

	fn := "-- fn\nCREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql;\n"
	assert.Equal(t, []string{"CREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql;"}, statementsOf(fn))

	assert.Empty(t, statementsOf("-- only a comment\n"))
	assert.Equal(t, "\nx\n", stripComments("-- c\n\nx\n"))
}

func TestRunMigrations_AppliesFilesInOrder(t *testing.T) {
	db := testutil.DB(t)
	runner := NewRunner(database.NewManagerWithDB(db, nil, testutil.Logger(t)), testutil.Logger(t))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_insert.sql"), []byte(`INSERT INTO notes (body) VALUES ('second'); INSERT INTO notes (body) VALUES ('third');`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_create.sql"), []byte("-- notes\nCREATE TABLE notes (body text);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	report, err := runner.RunMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create.sql", "002_insert.sql"}, report.Files)
	assert.Equal(t, 3, report.Statements)
	assert.Equal(t, len(models.AllModels()), report.Models)

	var count int64
	require.NoError(t, db.Table("notes").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRunMigrations_ShippedFiles(t *testing.T) {
	db := testutil.DB(t)
	runner := NewRunner(database.NewManagerWithDB(db, nil, testutil.Logger(t)), testutil.Logger(t))

	report, err := runner.RunMigrations(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	assert.Contains(t, report.Files, "001_experiment_indexes.sql")
	assert.True(t, db.Migrator().HasIndex("experiment_documents", "idx_documents_updated_at"))
}

func TestRunMigrations_FailingFileStopsTheRun(t *testing.T) {
	runner := newRunner(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("INSERT INTO missing_table VALUES (1);"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_never.sql"), []byte("CREATE TABLE never (id int);"), 0o600))

	report, err := runner.RunMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_bad.sql")
	assert.Empty(t, report.Files)
}

func TestRunMigrations_MissingDirectory(t *testing.T) {
	runner := newRunner(t)

	_, err := runner.RunMigrations(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)

	report, err := runner.RunMigrations("")
	require.NoError(t, err)
	assert.Empty(t, report.Files)
}
