package db

import (
	"testing"
	"testing/fstest"
	"time"
)

func mapFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestLoadMigrations(t *testing.T) {
	migrator := NewMigrator(nil, mapFS(map[string]string{
		"001_lab_requests.sql": "CREATE TABLE lab_request (id UUID PRIMARY KEY);",
		"002_indexes.sql":      "CREATE INDEX idx ON lab_request(id);",
		"003_notes.sql":        "ALTER TABLE lab_request ADD COLUMN notes TEXT;",
	}))
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 {
		t.Errorf("expected version 1, got %d", migrations[0].Version)
	}
	if migrations[0].Name != "001_lab_requests.sql" {
		t.Errorf("expected name 001_lab_requests.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE lab_request (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	migrator := NewMigrator(nil, mapFS(map[string]string{
		"010_tables.sql": "SELECT 10;",
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"005_middle.sql": "SELECT 5;",
	}))
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	expectedVersions := []int{1, 2, 5, 10}
	if len(migrations) != len(expectedVersions) {
		t.Fatalf("expected %d migrations, got %d", len(expectedVersions), len(migrations))
	}
	for i, expected := range expectedVersions {
		if migrations[i].Version != expected {
			t.Errorf("migration[%d]: expected version %d, got %d", i, expected, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	fsys := mapFS(map[string]string{
		"001_valid.sql":      "SELECT 1;",
		"readme.sql":         "-- this has no version prefix",
		"notes.txt":          "not a sql file",
		"abc_invalid.sql":    "-- non-numeric prefix",
		"002_also_valid.sql": "SELECT 2;",
	})
	fsys["old/003_nested.sql"] = &fstest.MapFile{Data: []byte("SELECT 3;")}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("expected versions 1 and 2, got %d and %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	migrator := NewMigrator(nil, mapFS(map[string]string{
		"001_a.sql": "SELECT 1;",
		"01_b.sql":  "SELECT 1;",
	}))
	if _, err := migrator.LoadMigrations(); err == nil {
		t.Error("expected error for duplicate version")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 1}, {Version: 2}, {Version: 3}, {Version: 4}}
	applied := map[int]time.Time{1: time.Now(), 3: time.Now()}

	all := Pending(migrations, applied, 0)
	if len(all) != 2 || all[0].Version != 2 || all[1].Version != 4 {
		t.Errorf("expected pending 2 and 4, got %+v", all)
	}

	upTo := Pending(migrations, applied, 3)
	if len(upTo) != 1 || upTo[0].Version != 2 {
		t.Errorf("expected only 2 up to version 3, got %+v", upTo)
	}
}

func TestStatusOf(t *testing.T) {
	migrations, err := NewMigrator(nil, mapFS(map[string]string{
		"001_lab_requests.sql": "SELECT 1;",
		"002_indexes.sql":      "SELECT 2;",
	})).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	at := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	statuses := StatusOf(migrations, map[int]time.Time{1: at})

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 001 applied at %s, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected migration 002 pending, got %+v", statuses[1])
	}
	if statuses[1].Name != "002_indexes.sql" {
		t.Errorf("expected name 002_indexes.sql, got %s", statuses[1].Name)
	}
}
