// Package pathfilter decides which filesystem paths inside a vault the
// engine cares about: Markdown files outside ignored directories,
// dotfiles, and known editor/system junk.
package pathfilter

import (
	"path"
	"strings"
)

// Filter holds the ignore sets used to decide whether a path is watched.
// Constructed with defaults via New, but reusable/injectable so tests and
// the rename/sweep tools can scope to a sub-folder without re-deriving
// the ignore rules.
type Filter struct {
	IgnoreDirs  map[string]struct{}
	IgnoreFiles map[string]struct{}
}

// defaultIgnoreDirs are directory segments never descended into.
var defaultIgnoreDirs = []string{
	".git", ".obsidian", ".trash", "node_modules", ".vscode", ".claude", ".flywheel",
}

// defaultIgnoreFiles are exact basenames treated as system junk.
var defaultIgnoreFiles = []string{
	".DS_Store", "Thumbs.db", "desktop.ini",
}

// editorSwapSuffixes catches common editor lock/swap file patterns.
var editorSwapSuffixes = []string{".swp", ".swo", ".swx", "~"}

// New returns a Filter seeded with the spec's default ignore sets.
func New() *Filter {
	dirs := make(map[string]struct{}, len(defaultIgnoreDirs))
	for _, d := range defaultIgnoreDirs {
		dirs[d] = struct{}{}
	}
	files := make(map[string]struct{}, len(defaultIgnoreFiles))
	for _, f := range defaultIgnoreFiles {
		files[f] = struct{}{}
	}
	return &Filter{IgnoreDirs: dirs, IgnoreFiles: files}
}

// Normalize converts a path to forward-slash separators.
func Normalize(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Watched reports whether p should be watched/indexed. p may be an
// absolute or vault-relative path; only its segments are inspected.
func (f *Filter) Watched(p string) bool {
	norm := Normalize(p)
	base := path.Base(norm)

	if !strings.HasSuffix(strings.ToLower(base), ".md") {
		return false
	}

	if isSystemFile(base, f.IgnoreFiles) {
		return false
	}

	segments := strings.Split(norm, "/")
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		if _, ignored := f.IgnoreDirs[seg]; ignored {
			return false
		}
		// dotfile/dotdir check: any segment with a leading dot, the
		// filename included, excludes the path.
		if strings.HasPrefix(seg, ".") {
			return false
		}
	}

	return true
}

func isSystemFile(base string, ignoreFiles map[string]struct{}) bool {
	if _, ok := ignoreFiles[base]; ok {
		return true
	}
	for _, suffix := range editorSwapSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
