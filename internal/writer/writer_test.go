package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vaultgraph/internal/markdown"
)

func TestValidatePathRejectsTraversal(t *testing.T) {
	cases := map[string]bool{
		"notes/a.md":       true,
		"a.md":             true,
		"../escape.md":      false,
		"notes/../../x.md": false,
		"":                 false,
		"/abs/path.md":     false,
	}
	for p, want := range cases {
		if got := ValidatePath("/vault", p); got != want {
			t.Errorf("ValidatePath(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	root := t.TempDir()
	content := "---\ntitle: Hello\ntags:\n    - a\n    - b\n---\nBody text.\n"
	if err := os.WriteFile(filepath.Join(root, "note.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	w := New(root)
	doc, err := w.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.Contains(doc.Content, "Body text.") {
		t.Fatalf("Content = %q", doc.Content)
	}
	title, ok := doc.FrontMatter.Get("title")
	if !ok || title.Str != "Hello" {
		t.Fatalf("title = %+v, ok=%v", title, ok)
	}

	if err := w.Write("note.md", doc.Content, doc.FrontMatter, doc.LineEnding); err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, "note.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "title: Hello") || !strings.Contains(string(raw), "Body text.") {
		t.Fatalf("round-tripped content = %q", string(raw))
	}
}

func TestFindSectionAndInsertAppend(t *testing.T) {
	content := "# Title\n\n## Tasks\n- [ ] existing\n\n## Notes\nsomething\n"
	section, ok := FindSection(content, "Tasks")
	if !ok {
		t.Fatal("expected to find Tasks section")
	}

	updated := InsertInSection(content, *section, []string{"- [ ] new task"}, Append, InsertOptions{})
	if !strings.Contains(updated, "- [ ] existing\n\n- [ ] new task\n## Notes") {
		t.Fatalf("updated = %q", updated)
	}
}

func TestInsertPrependPreservesNesting(t *testing.T) {
	content := "## Log\n    - item one\n    - item two\n"
	section, ok := FindSection(content, "Log")
	if !ok {
		t.Fatal("expected Log section")
	}
	updated := InsertInSection(content, *section, []string{"- new item"}, Prepend, InsertOptions{PreserveListNesting: true})
	lines := strings.Split(updated, "\n")
	if lines[1] != "    - new item" {
		t.Fatalf("first inserted line = %q", lines[1])
	}
}

func TestFormatStyles(t *testing.T) {
	payload := []string{"one", "two"}

	plain := Format(payload, Plain, markdown.BulletDash)
	if plain[0] != "one" {
		t.Fatalf("plain = %v", plain)
	}

	bullet := Format(payload, Bullet, markdown.BulletAsterisk)
	if bullet[0] != "* one" {
		t.Fatalf("bullet = %v", bullet)
	}

	task := Format(payload, Task, markdown.BulletDash)
	if task[0] != "- [ ] one" {
		t.Fatalf("task = %v", task)
	}

	stamped := Format(payload, TimestampBullet, markdown.BulletDash)
	if !strings.HasPrefix(stamped[0], "- **") {
		t.Fatalf("timestamp bullet = %v", stamped)
	}
}

func TestExtractHeadingsCodeFenceAware(t *testing.T) {
	content := "# Real\n```\n# Not a heading\n```\n## Also Real\n"
	headings := ExtractHeadings(content)
	if len(headings) != 2 {
		t.Fatalf("headings = %+v", headings)
	}
	if headings[0].Text != "Real" || headings[1].Text != "Also Real" {
		t.Fatalf("headings = %+v", headings)
	}
}
