package graph

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"vaultgraph/internal/pathfilter"
)

func writeNote(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// TestBacklinkSymmetry is scenario S1.
func TestBacklinkSymmetry(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "A.md", "See [[B]] for details.\n")
	writeNote(t, root, "B.md", "# B\nNothing links out.\n")

	idx := NewIndex(pathfilter.New())
	ctx := context.Background()
	if err := idx.Rebuild(ctx, root); err != nil {
		t.Fatal(err)
	}

	back := idx.GetBacklinks("B.md")
	if len(back) != 1 || back[0].SourcePath != "A.md" {
		t.Fatalf("backlinks(B.md) = %+v", back)
	}
	fwd := idx.GetForwardLinks("A.md")
	if len(fwd) != 1 || fwd[0] != "B.md" {
		t.Fatalf("forward(A.md) = %+v", fwd)
	}

	if err := os.Remove(filepath.Join(root, "A.md")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete("A.md"); err != nil {
		t.Fatal(err)
	}
	back = idx.GetBacklinks("B.md")
	if len(back) != 0 {
		t.Fatalf("expected no backlinks after delete, got %+v", back)
	}
}

// TestIncrementalEquivalence exercises a sequence of upserts and
// deletes and checks the result against a clean Rebuild (§8 property 1).
func TestIncrementalEquivalence(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "Alice.md", "---\naliases: [A]\ntags: [person]\n---\nWorks with [[Bob]] on #project.\n")
	writeNote(t, root, "Bob.md", "---\ntags: [person]\n---\nKnows [[Alice]].\n")
	writeNote(t, root, "Carol.md", "No links here, #idea only.\n")

	incremental := NewIndex(pathfilter.New())
	ctx := context.Background()
	for _, p := range []string{"Alice.md", "Bob.md", "Carol.md"} {
		if err := incremental.Upsert(ctx, root, p); err != nil {
			t.Fatal(err)
		}
	}

	// Mutate Bob, delete Carol, add Dave.
	writeNote(t, root, "Bob.md", "---\ntags: [person, active]\n---\nKnows [[Alice]] and [[Dave]].\n")
	if err := incremental.Upsert(ctx, root, "Bob.md"); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "Carol.md")); err != nil {
		t.Fatal(err)
	}
	if err := incremental.Delete("Carol.md"); err != nil {
		t.Fatal(err)
	}
	writeNote(t, root, "Dave.md", "# Dave\nSays hi to [[Alice|A]].\n")
	if err := incremental.Upsert(ctx, root, "Dave.md"); err != nil {
		t.Fatal(err)
	}

	rebuilt := NewIndex(pathfilter.New())
	if err := rebuilt.Rebuild(ctx, root); err != nil {
		t.Fatal(err)
	}

	assertIndexesEqual(t, incremental, rebuilt)
}

func assertIndexesEqual(t *testing.T, a, b *Index) {
	t.Helper()

	pa, pb := a.Paths(), b.Paths()
	if !reflect.DeepEqual(pa, pb) {
		t.Fatalf("paths differ: %v vs %v", pa, pb)
	}

	for _, p := range pa {
		na, _ := a.GetNote(p)
		nb, _ := b.GetNote(p)
		if na.Title != nb.Title || na.ContentHash != nb.ContentHash {
			t.Fatalf("note %s differs: %+v vs %+v", p, na, nb)
		}
		if !reflect.DeepEqual(sortedAliases(na.Aliases), sortedAliases(nb.Aliases)) {
			t.Fatalf("note %s aliases differ: %v vs %v", p, na.Aliases, nb.Aliases)
		}
		if !reflect.DeepEqual(tagSet(na.Tags), tagSet(nb.Tags)) {
			t.Fatalf("note %s tags differ: %v vs %v", p, na.Tags, nb.Tags)
		}
		if len(na.Outlinks) != len(nb.Outlinks) {
			t.Fatalf("note %s outlink count differs: %d vs %d", p, len(na.Outlinks), len(nb.Outlinks))
		}

		if !reflect.DeepEqual(a.GetBacklinks(p), b.GetBacklinks(p)) {
			t.Fatalf("backlinks(%s) differ: %v vs %v", p, a.GetBacklinks(p), b.GetBacklinks(p))
		}
		if !reflect.DeepEqual(a.GetForwardLinks(p), b.GetForwardLinks(p)) {
			t.Fatalf("forward(%s) differ: %v vs %v", p, a.GetForwardLinks(p), b.GetForwardLinks(p))
		}
	}

	da, db := a.DeadTargets(), b.DeadTargets()
	if !reflect.DeepEqual(da, db) {
		t.Fatalf("dead targets differ: %v vs %v", da, db)
	}
}

func sortedAliases(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func tagSet(in map[string]struct{}) []string {
	out := make([]string, 0, len(in))
	for k := range in {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
