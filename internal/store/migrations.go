package store

import (
	"database/sql"
	"fmt"

	"vaultgraph/internal/logging"
)

// CurrentSchemaVersion is bumped whenever pendingMigrations grows.
//
// v1: notes_fts, entities, mentions (initial schema).
const CurrentSchemaVersion = 1

// columnMigration adds one column to an existing table if missing.
type columnMigration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists additive schema changes applied to databases
// opened from an older schema version. Empty for now; this is where a
// future schema bump adds entries, following the teacher's
// additive-column migration pattern.
var pendingMigrations []columnMigration

// RunMigrations applies any pending additive-column migrations and
// bumps the stored schema_version. Safe to call on a freshly
// initialized database, where every migration is a no-op.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			logging.Get(logging.CategoryStore).Warn("migration failed: %s.%s: %v", m.Table, m.Column, err)
		}
	}

	_, err := db.Exec(`UPDATE meta SET value = ? WHERE key = 'schema_version'`, fmt.Sprint(CurrentSchemaVersion))
	return err
}

// GetSchemaVersion reads the stored schema_version meta row.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
