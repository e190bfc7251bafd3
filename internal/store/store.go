// Package store implements vaultgraph's persistent full-text and entity
// store: one row per note for search, an entity catalogue shared with
// the auto-linker, and a cached mentions aggregation used by sweep.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vaultgraph/internal/logging"
)

// NoteRow is the full-text row for one note.
type NoteRow struct {
	Path        string
	Title       string
	Body        string
	FrontMatter string // flattened, for tokenisation only; not a source of truth
	ContentHash string
}

// EntityRow is one entity-catalogue entry.
type EntityRow struct {
	FoldedName string
	Display    string
	Path       string
	Category   string
	Aliases    []string // joined with "\x1f" in storage
	Relevance  float64
	Embedding  []float32 // nil unless the caller of UpsertEntity supplied one
}

// MentionRow is sweep's cached per-entity mention aggregation.
type MentionRow struct {
	FoldedName string
	MentionCount  int
	BacklinkCount int
}

// SearchFilters narrows a full-text search.
type SearchFilters struct {
	PathPrefix string
	Limit      int
}

// Store is the persistent full-text + entity store.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	path      string
	vectorExt bool
}

// Open initializes the SQLite database at path, creating it and its
// schema if necessary, and running any pending migrations.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrations: %w", err)
	}

	s.vectorExt = detectVecExtension(db)
	if s.vectorExt {
		logging.Store("vector extension available (embedding similarity enabled)")
	} else {
		logging.Get(logging.CategoryStore).Warn("no vector extension available; embedding columns are inert")
	}

	return s, nil
}

func (s *Store) initialize() error {
	timer := logging.StartTimer(logging.CategoryStore, "initialize")
	defer timer.Stop()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			path UNINDEXED, title, body, front_matter, content_hash UNINDEXED
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			folded_name TEXT PRIMARY KEY,
			display TEXT NOT NULL,
			path TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			aliases TEXT NOT NULL DEFAULT '',
			relevance REAL NOT NULL DEFAULT 0,
			embedding BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_path ON entities(path)`,
		`CREATE TABLE IF NOT EXISTS mentions (
			folded_name TEXT PRIMARY KEY,
			mention_count INTEGER NOT NULL DEFAULT 0,
			backlink_count INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: schema init: %w", err)
		}
	}

	var version string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec("INSERT INTO meta(key, value) VALUES ('schema_version', ?)", fmt.Sprint(CurrentSchemaVersion))
	}
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// HasVectorSupport reports whether cosine-distance search over
// EntityRow.Embedding, via SearchSimilar, is available (either the real
// sqlite-vec extension, or the pure-Go vec0 compatibility layer).
func (s *Store) HasVectorSupport() bool {
	return s.vectorExt
}

// Insert adds or replaces a note's full-text row.
func (s *Store) Insert(n NoteRow) error {
	return s.Update(n)
}

// Update replaces a note's full-text row, keyed by path.
func (s *Store) Update(n NoteRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM notes_fts WHERE path = ?`, n.Path); err != nil {
		return fmt.Errorf("store: update note %s: %w", n.Path, err)
	}
	_, err := s.db.Exec(
		`INSERT INTO notes_fts(path, title, body, front_matter, content_hash) VALUES (?, ?, ?, ?, ?)`,
		n.Path, n.Title, n.Body, n.FrontMatter, n.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("store: insert note %s: %w", n.Path, err)
	}
	return nil
}

// Delete removes a note's full-text row, any entities it owns, and the
// cached mention rows of those entities, in one transaction (spec §4.E).
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete note %s: %w", path, err)
	}
	if _, err := tx.Exec(`DELETE FROM mentions WHERE folded_name IN (SELECT folded_name FROM entities WHERE path = ?)`, path); err != nil {
		return fmt.Errorf("store: delete mentions for %s: %w", path, err)
	}
	if _, err := tx.Exec(`DELETE FROM entities WHERE path = ?`, path); err != nil {
		return fmt.Errorf("store: delete entities for %s: %w", path, err)
	}
	return tx.Commit()
}

// Search performs a full-text query over notes_fts, returning matching
// paths ranked by FTS5's built-in bm25 relevance.
func (s *Store) Search(query string, filters SearchFilters) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `SELECT path FROM notes_fts WHERE notes_fts MATCH ?`
	args := []any{query}
	if filters.PathPrefix != "" {
		sqlQuery += ` AND path LIKE ? || '%'`
		args = append(args, filters.PathPrefix)
	}
	sqlQuery += ` ORDER BY bm25(notes_fts) LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search %q: %w", query, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// CountMentions returns the cached mention count for a folded entity
// name, as last computed by internal/sweep.
func (s *Store) CountMentions(foldedName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT mention_count FROM mentions WHERE folded_name = ?`, foldedName).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

// UpsertMentions replaces sweep's cached mentions table wholesale.
func (s *Store) UpsertMentions(rows []MentionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mentions`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO mentions(folded_name, mention_count, backlink_count) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.FoldedName, r.MentionCount, r.BacklinkCount); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EntityFilter narrows ListEntities.
type EntityFilter struct {
	Category string
	PathGlob string
}

// ListEntities returns the entity catalogue, optionally filtered by
// category.
func (s *Store) ListEntities(filter EntityFilter) ([]EntityRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT folded_name, display, path, category, aliases, relevance, embedding FROM entities`
	var args []any
	if filter.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, filter.Category)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list entities: %w", err)
	}
	defer rows.Close()

	var out []EntityRow
	for rows.Next() {
		var r EntityRow
		var aliases string
		var embedding []byte
		if err := rows.Scan(&r.FoldedName, &r.Display, &r.Path, &r.Category, &aliases, &r.Relevance, &embedding); err != nil {
			return nil, err
		}
		r.Aliases = splitAliases(aliases)
		r.Embedding = decodeEmbedding(embedding)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertEntity adds or replaces one entity-catalogue row.
func (s *Store) UpsertEntity(e EntityRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO entities(folded_name, display, path, category, aliases, relevance, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(folded_name) DO UPDATE SET
		   display=excluded.display, path=excluded.path, category=excluded.category,
		   aliases=excluded.aliases, relevance=excluded.relevance, embedding=excluded.embedding`,
		e.FoldedName, e.Display, e.Path, e.Category, joinAliases(e.Aliases), e.Relevance, encodeEmbedding(e.Embedding),
	)
	return err
}

// SearchSimilar returns up to k entities (excluding refKey itself)
// whose stored embedding is closest to refKey's by cosine distance,
// nearest first, using vector_distance_cos over the vec0 extension (or
// its pure-Go compat layer). ok is false if vector support is
// unavailable or refKey has no stored embedding — there is nothing to
// compare against, which is the case for every row the engine writes,
// since it stores entities without an embedding.
func (s *Store) SearchSimilar(refKey string, k int) (rows []EntityRow, ok bool, err error) {
	if !s.vectorExt {
		return nil, false, nil
	}
	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ref []byte
	err = s.db.QueryRow(`SELECT embedding FROM entities WHERE folded_name = ?`, refKey).Scan(&ref)
	if err == sql.ErrNoRows || len(ref) == 0 {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: search similar %s: %w", refKey, err)
	}

	dbRows, err := s.db.Query(
		`SELECT folded_name, display, path, category, aliases, relevance, embedding
		 FROM entities
		 WHERE folded_name != ? AND embedding IS NOT NULL
		 ORDER BY vector_distance_cos(embedding, ?) ASC
		 LIMIT ?`,
		refKey, ref, k,
	)
	if err != nil {
		return nil, false, fmt.Errorf("store: search similar %s: %w", refKey, err)
	}
	defer dbRows.Close()

	for dbRows.Next() {
		var r EntityRow
		var aliases string
		var embedding []byte
		if err := dbRows.Scan(&r.FoldedName, &r.Display, &r.Path, &r.Category, &aliases, &r.Relevance, &embedding); err != nil {
			return nil, false, err
		}
		r.Aliases = splitAliases(aliases)
		r.Embedding = decodeEmbedding(embedding)
		rows = append(rows, r)
	}
	return rows, true, dbRows.Err()
}

// GetStats returns row counts per table, for diagnostics.
func (s *Store) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"notes_fts", "entities", "mentions"} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			continue
		}
		stats[table] = count
	}
	return stats, nil
}

func splitAliases(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1f' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinAliases(aliases []string) string {
	out := ""
	for i, a := range aliases {
		if i > 0 {
			out += "\x1f"
		}
		out += a
	}
	return out
}
