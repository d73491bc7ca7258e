package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Ayash-Bera/metricslab/backend/internal/database"
	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Report describes one migration run.
type Report struct {
	Models     int      `json:"models" yaml:"models"`
	Files      []string `json:"files" yaml:"files"`
	Statements int      `json:"statements" yaml:"statements"`
}

// Runner brings the experiment document and feedback tables up to date.
type Runner struct {
	dbManager *database.Manager
	logger    *logrus.Logger
}

func NewRunner(dbManager *database.Manager, logger *logrus.Logger) *Runner {
	return &Runner{
		dbManager: dbManager,
		logger:    logger,
	}
}

// RunMigrations auto-migrates the models, then applies the .sql files of
// sqlDir in name order. An empty sqlDir skips the SQL step.
func (r *Runner) RunMigrations(sqlDir string) (Report, error) {
	report := Report{Models: len(models.AllModels())}

	if err := r.dbManager.Migrate(); err != nil {
		return report, fmt.Errorf("auto-migration of %d models failed: %w", report.Models, err)
	}

	if sqlDir != "" {
		files, err := migrationFiles(sqlDir)
		if err != nil {
			return report, err
		}
		for _, name := range files {
			n, err := r.applyFile(filepath.Join(sqlDir, name))
			if err != nil {
				return report, fmt.Errorf("migration %s: %w", name, err)
			}
			report.Files = append(report.Files, name)
			report.Statements += n
		}
	}

	r.logger.WithFields(logrus.Fields{
		"models":          report.Models,
		"migration_files": report.Files,
		"statements":      report.Statements,
	}).Info("Schema is up to date")
	return report, nil
}

// migrationFiles lists the .sql files of dir sorted by name.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Runner) applyFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	statements := statementsOf(string(content))
	for i, stmt := range statements {
		r.logger.WithFields(logrus.Fields{
			"migration_file": filepath.Base(path),
			"statement":      i + 1,
		}).Debug("Applying statement")

		if err := r.dbManager.DB.Exec(stmt).Error; err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return len(statements), nil
}

// statementsOf splits a script on semicolons. Scripts with dollar-quoted
// bodies contain inner semicolons and run as a single statement.
func statementsOf(script string) []string {
	if strings.Contains(script, "$") {
		if body := strings.TrimSpace(stripComments(script)); body != "" {
			return []string{body}
		}
		return nil
	}

	var lines []string
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			lines = append(lines, line)
		}
	}

	var statements []string
	for _, stmt := range strings.Split(strings.Join(lines, " "), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

func stripComments(script string) string {
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
