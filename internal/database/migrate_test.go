package database

import (
	"context"
	"strings"
	"testing"
)

type migrationDB struct {
	Database
	applied []string
	batches []string
}

func (m *migrationDB) Query(_ context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	if strings.HasPrefix(query, "SELECT version FROM schema_migration") {
		rows := make([]interface{}, 0, len(m.applied))
		for _, v := range m.applied {
			rows = append(rows, map[string]interface{}{"version": v})
		}
		return []interface{}{map[string]interface{}{"status": "OK", "result": rows}}, nil
	}
	m.batches = append(m.batches, query)
	for _, v := range vars {
		if s, ok := v.(string); ok {
			m.applied = append(m.applied, s)
		}
	}
	return nil, nil
}

func TestMigrate_AppliesEveryFileOnce(t *testing.T) {
	t.Parallel()

	files, err := migrationFiles()
	if err != nil {
		t.Fatalf("listing migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected embedded migrations")
	}

	db := &migrationDB{}
	if err := Migrate(context.Background(), db, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(db.batches) != len(files) {
		t.Fatalf("expected %d batches, got %d", len(files), len(db.batches))
	}

	if err := Migrate(context.Background(), db, nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(db.batches) != len(files) {
		t.Errorf("second run re-applied migrations: %d batches", len(db.batches))
	}
}

func TestMigrationFiles_SchemaDefinesUniqueApplicationIndex(t *testing.T) {
	t.Parallel()

	body, err := migrations.ReadFile("migrations/001_schema.surql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if !strings.Contains(string(body), "FIELDS candidate_id, job_id UNIQUE") {
		t.Error("schema must enforce one application per candidate and job")
	}
}
