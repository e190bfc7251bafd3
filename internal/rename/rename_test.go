package rename

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeNote(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// TestRenameTagWithChildren is scenario S2: front-matter tags
// [project, project/active] and a body mention rename to work/work-active,
// while a fenced block containing "# project" is left untouched.
func TestRenameTagWithChildren(t *testing.T) {
	root := t.TempDir()
	content := "---\ntags:\n    - project\n    - project/active\n---\nWorking on #project today.\n\n```\n# project\n```\n"
	writeNote(t, root, "note.md", content)

	r := New(root, nil)
	res, err := r.RenameTag([]string{"note.md"}, "project", "work", TagOptions{RenameChildren: true})
	if err != nil {
		t.Fatalf("RenameTag: %v", err)
	}
	if res.AffectedNotes != 1 {
		t.Fatalf("AffectedNotes = %d, want 1", res.AffectedNotes)
	}

	raw, err := os.ReadFile(filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(raw)
	if !strings.Contains(got, "work") || !strings.Contains(got, "work/active") {
		t.Fatalf("tags not renamed: %q", got)
	}
	if !strings.Contains(got, "Working on #work today.") {
		t.Fatalf("inline tag not renamed: %q", got)
	}
	if !strings.Contains(got, "# project") {
		t.Fatalf("fenced heading should be untouched: %q", got)
	}
}

func TestRenameTagDryRunDoesNotWrite(t *testing.T) {
	root := t.TempDir()
	content := "---\ntags:\n    - project\n---\nSee #project.\n"
	writeNote(t, root, "note.md", content)

	r := New(root, nil)
	res, err := r.RenameTag([]string{"note.md"}, "project", "work", TagOptions{Options: Options{DryRun: true}})
	if err != nil {
		t.Fatalf("RenameTag: %v", err)
	}
	if res.AffectedNotes != 1 || len(res.Previews) != 1 {
		t.Fatalf("res = %+v", res)
	}
	if !res.Previews[0].Changed {
		t.Fatal("expected preview to report a change")
	}
	if res.Previews[0].Diff == "" {
		t.Fatal("expected a non-empty diff preview")
	}

	raw, err := os.ReadFile(filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != content {
		t.Fatalf("dry run must not write: got %q", string(raw))
	}
}

func TestRenameTagDeduplicatesCollision(t *testing.T) {
	root := t.TempDir()
	content := "---\ntags:\n    - work\n    - project\n---\nbody\n"
	writeNote(t, root, "note.md", content)

	r := New(root, nil)
	if _, err := r.RenameTag([]string{"note.md"}, "project", "work", TagOptions{}); err != nil {
		t.Fatalf("RenameTag: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(raw), "- work") != 1 {
		t.Fatalf("expected deduplicated tags, got %q", string(raw))
	}
}

func TestRenameFieldPreservesPosition(t *testing.T) {
	root := t.TempDir()
	content := "---\na: 1\nstatus: draft\nb: 2\n---\nbody\n"
	writeNote(t, root, "note.md", content)

	r := New(root, nil)
	res, err := r.RenameField([]string{"note.md"}, "status", "state", Options{})
	if err != nil {
		t.Fatalf("RenameField: %v", err)
	}
	if res.AffectedNotes != 1 {
		t.Fatalf("AffectedNotes = %d", res.AffectedNotes)
	}

	raw, err := os.ReadFile(filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(raw)
	aIdx := strings.Index(got, "a:")
	stateIdx := strings.Index(got, "state:")
	bIdx := strings.Index(got, "b:")
	if aIdx < 0 || stateIdx < 0 || bIdx < 0 || !(aIdx < stateIdx && stateIdx < bIdx) {
		t.Fatalf("key order not preserved: %q", got)
	}
	if !strings.Contains(got, "draft") {
		t.Fatalf("value lost: %q", got)
	}
}

func TestMigrateFieldValues(t *testing.T) {
	root := t.TempDir()
	content := "---\nstatus: wip\n---\nbody\n"
	writeNote(t, root, "note.md", content)

	r := New(root, nil)
	res, err := r.MigrateFieldValues([]string{"note.md"}, "status", map[string]string{"wip": "in-progress"}, Options{})
	if err != nil {
		t.Fatalf("MigrateFieldValues: %v", err)
	}
	if res.AffectedNotes != 1 {
		t.Fatalf("AffectedNotes = %d", res.AffectedNotes)
	}

	raw, err := os.ReadFile(filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "in-progress") {
		t.Fatalf("value not migrated: %q", string(raw))
	}
}

func TestRenameTagScopedToFolder(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a/note.md", "---\ntags:\n    - project\n---\nx\n")
	writeNote(t, root, "b/note.md", "---\ntags:\n    - project\n---\nx\n")

	r := New(root, nil)
	res, err := r.RenameTag([]string{"a/note.md", "b/note.md"}, "project", "work", TagOptions{Options: Options{Folder: "a"}})
	if err != nil {
		t.Fatalf("RenameTag: %v", err)
	}
	if res.AffectedNotes != 1 || res.Previews[0].Path != "a/note.md" {
		t.Fatalf("res = %+v", res)
	}
}
