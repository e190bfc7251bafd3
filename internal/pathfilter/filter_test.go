package pathfilter

import "testing"

func TestWatchedAcceptsMarkdown(t *testing.T) {
	f := New()
	cases := map[string]bool{
		"notes/Alice.md":              true,
		"notes/Alice.MD":              true,
		"notes/.git/config.md":        false,
		"notes/.obsidian/plugin.md":   false,
		".hidden/note.md":             false,
		"notes/.DS_Store":             false,
		"notes/Thumbs.db":             false,
		"notes/readme.txt":            false,
		"notes/scratch.md.swp":        false,
		"notes/backup~":               false,
		"node_modules/pkg/readme.md":  false,
		"notes/sub/deep/entry.md":     true,
	}
	for p, want := range cases {
		if got := f.Watched(p); got != want {
			t.Errorf("Watched(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestNormalizeConvertsSeparators(t *testing.T) {
	if got := Normalize(`notes\Alice.md`); got != "notes/Alice.md" {
		t.Errorf("Normalize = %q", got)
	}
}
