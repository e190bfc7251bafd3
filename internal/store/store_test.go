package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenInitializesSchema(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	for _, table := range []string{"notes_fts", "entities", "mentions"} {
		if _, ok := stats[table]; !ok {
			t.Errorf("stats missing table: %s", table)
		}
	}
}

func TestInsertSearchDelete(t *testing.T) {
	s := newTestStore(t)

	if err := s.Insert(NoteRow{Path: "Alice.md", Title: "Alice", Body: "Alice works on the graph engine."}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(NoteRow{Path: "Bob.md", Title: "Bob", Body: "Bob reviews pull requests."}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	paths, err := s.Search("graph", SearchFilters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(paths) != 1 || paths[0] != "Alice.md" {
		t.Fatalf("Search(graph) = %v, want [Alice.md]", paths)
	}

	if err := s.Delete("Alice.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	paths, err = s.Search("graph", SearchFilters{})
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("Search(graph) after delete = %v, want none", paths)
	}
}

func TestUpdateReplacesRow(t *testing.T) {
	s := newTestStore(t)

	if err := s.Insert(NoteRow{Path: "A.md", Title: "A", Body: "original body"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Update(NoteRow{Path: "A.md", Title: "A", Body: "revised body"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	paths, err := s.Search("original", SearchFilters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("stale content still indexed: %v", paths)
	}
	paths, err = s.Search("revised", SearchFilters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("Search(revised) = %v, want [A.md]", paths)
	}
}

func TestEntitiesAndMentionsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	e := EntityRow{
		FoldedName: "alice",
		Display:    "Alice",
		Path:       "Alice.md",
		Category:   "person",
		Aliases:    []string{"A", "Ally"},
		Relevance:  0.9,
	}
	if err := s.UpsertEntity(e); err != nil {
		t.Fatalf("UpsertEntity: %v", err)
	}

	rows, err := s.ListEntities(EntityFilter{})
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(rows) != 1 || rows[0].Display != "Alice" || len(rows[0].Aliases) != 2 {
		t.Fatalf("ListEntities = %+v", rows)
	}

	if err := s.UpsertMentions([]MentionRow{{FoldedName: "alice", MentionCount: 3, BacklinkCount: 1}}); err != nil {
		t.Fatalf("UpsertMentions: %v", err)
	}
	count, err := s.CountMentions("alice")
	if err != nil {
		t.Fatalf("CountMentions: %v", err)
	}
	if count != 3 {
		t.Fatalf("CountMentions(alice) = %d, want 3", count)
	}

	// Deleting the owning note cascades to the entity row and to that
	// entity's cached mentions row.
	if err := s.Delete("Alice.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rows, err = s.ListEntities(EntityFilter{})
	if err != nil {
		t.Fatalf("ListEntities after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no entities after owning note delete, got %+v", rows)
	}
}

func TestAliasCodecRoundTrip(t *testing.T) {
	in := []string{"A", "Ally", "Alyssa"}
	out := splitAliases(joinAliases(in))
	if len(out) != len(in) {
		t.Fatalf("alias round trip = %v, want %v", out, in)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("alias round trip = %v, want %v", out, in)
		}
	}
}

func TestSearchSimilar(t *testing.T) {
	s := newTestStore(t)
	if !s.HasVectorSupport() {
		t.Skip("no vec0 support in this build")
	}

	entities := []EntityRow{
		{FoldedName: "alice", Display: "Alice", Path: "Alice.md", Category: "person", Embedding: []float32{1, 0, 0, 0}},
		{FoldedName: "bob", Display: "Bob", Path: "Bob.md", Category: "person", Embedding: []float32{0.9, 0.1, 0, 0}},
		{FoldedName: "carol", Display: "Carol", Path: "Carol.md", Category: "person", Embedding: []float32{0, 0, 1, 0}},
		{FoldedName: "dave", Display: "Dave", Path: "Dave.md", Category: "person"},
	}
	for _, e := range entities {
		if err := s.UpsertEntity(e); err != nil {
			t.Fatalf("UpsertEntity(%s): %v", e.FoldedName, err)
		}
	}

	rows, ok, err := s.SearchSimilar("alice", 2)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if !ok {
		t.Fatalf("SearchSimilar(alice) ok = false, want true")
	}
	if len(rows) != 2 {
		t.Fatalf("SearchSimilar(alice) = %+v, want 2 rows", rows)
	}
	if rows[0].FoldedName != "bob" {
		t.Fatalf("SearchSimilar(alice)[0] = %s, want bob (nearest by cosine distance)", rows[0].FoldedName)
	}
	for _, r := range rows {
		if r.FoldedName == "alice" {
			t.Fatalf("SearchSimilar(alice) returned alice itself: %+v", rows)
		}
	}

	_, ok, err = s.SearchSimilar("dave", 5)
	if err != nil {
		t.Fatalf("SearchSimilar(dave): %v", err)
	}
	if ok {
		t.Fatalf("SearchSimilar(dave) ok = true, want false (no embedding)")
	}

	_, ok, err = s.SearchSimilar("nobody", 5)
	if err != nil {
		t.Fatalf("SearchSimilar(nobody): %v", err)
	}
	if ok {
		t.Fatalf("SearchSimilar(nobody) ok = true, want false (unknown entity)")
	}
}

func TestEmbeddingCodecRoundTrip(t *testing.T) {
	in := []float32{0.1, -0.2, 0.3, 1.5}
	out := decodeEmbedding(encodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("embedding round trip length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("embedding round trip = %v, want %v", out, in)
		}
	}
}
