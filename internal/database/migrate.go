package database

import (
	"context"
	"embed"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

//go:embed migrations/*.surql
var migrations embed.FS

// Migrate applies every embedded schema file that has not been recorded in
// schema_migration yet. Files run in name order; the version is the numeric
// prefix before the first underscore. A nil logger runs silently.
func Migrate(ctx context.Context, db Database, logger *slog.Logger) error {
	files, err := migrationFiles()
	if err != nil {
		return err
	}

	applied := appliedVersions(ctx, db)

	for _, filename := range files {
		version := strings.SplitN(filename, "_", 2)[0]
		if applied[version] {
			if logger != nil {
				logger.Debug("skipping migration", "migration", filename, "version", version)
			}
			continue
		}

		body, err := migrations.ReadFile(path.Join("migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if logger != nil {
			logger.Info("applying migration", "migration", filename, "version", version)
		}

		batch := NewAtomicBatch().
			Add(string(body), nil).
			Add(`CREATE schema_migration CONTENT { version: $version, applied_on: time::now() }`,
				map[string]interface{}{"version": version})
		if err := batch.Execute(ctx, db); err != nil {
			return errors.Wrapf(err, "apply %s", filename)
		}
	}

	if logger != nil {
		logger.Info("migrations complete", "total_migrations", len(files))
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".surql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// appliedVersions returns the recorded versions. Before the first migration
// the table does not exist and the lookup yields nothing.
func appliedVersions(ctx context.Context, db Database) map[string]bool {
	applied := make(map[string]bool)

	results, err := db.Query(ctx, `SELECT version FROM schema_migration`, nil)
	if err != nil || len(results) == 0 {
		return applied
	}

	resp, ok := results[0].(map[string]interface{})
	if !ok {
		return applied
	}
	rows, _ := resp["result"].([]interface{})
	for _, row := range rows {
		if m, ok := row.(map[string]interface{}); ok {
			if v, ok := m["version"].(string); ok {
				applied[v] = true
			}
		}
	}
	return applied
}
