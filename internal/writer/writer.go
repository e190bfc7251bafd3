// Package writer implements vaultgraph's structural note writer
// (spec §4.H): section-scoped reads and inserts that preserve a note's
// existing formatting (bullet style, checkbox casing, indentation,
// line ending) across an edit. Grounded on the teacher's atomic
// temp-file-plus-rename write discipline (used throughout
// internal/store for WAL-safe persistence, generalized here to plain
// files) and on internal/markdown for heading/section location and
// indent/bullet detection.
package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vaultgraph/internal/logging"
	"vaultgraph/internal/markdown"
	"vaultgraph/internal/vaulterr"
)

// Document is one note's parsed, editable state.
type Document struct {
	Content     string // body text, front matter already split off
	FrontMatter *markdown.OrderedMap
	LineEnding  markdown.LineEnding
}

// Section is a located heading, with the line ranges InsertInSection
// needs to decide what counts as "inside" it.
type Section = markdown.Heading

// Position selects where payload lines land within a section.
type Position int

const (
	Append Position = iota
	Prepend
)

// Style selects how Format renders payload lines.
type Style int

const (
	Plain Style = iota
	Bullet
	Task
	TimestampBullet
)

// InsertOptions controls InsertInSection's formatting-preservation
// behavior.
type InsertOptions struct {
	// PreserveListNesting: when prepending into an indented list, match
	// the indentation of the section's first existing list item.
	PreserveListNesting bool
}

// Writer performs path-validated reads and atomic writes rooted at a
// single vault directory.
type Writer struct {
	VaultRoot string
}

// New returns a Writer scoped to vaultRoot.
func New(vaultRoot string) *Writer {
	return &Writer{VaultRoot: vaultRoot}
}

// ValidatePath is a pure predicate: it reports whether p, interpreted
// relative to root, stays inside root (traversal guard), independent
// of any Writer instance.
func ValidatePath(root, p string) bool {
	if p == "" {
		return false
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) {
		return false
	}
	segments := strings.Split(clean, string(filepath.Separator))
	if len(segments) > 0 && segments[0] == ".." {
		return false
	}
	full := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Read loads relPath, parsing front matter and detecting line ending.
func (w *Writer) Read(relPath string) (*Document, error) {
	if !ValidatePath(w.VaultRoot, relPath) {
		return nil, vaulterr.New(vaulterr.Invalid, "writer.Read", relPath, errors.New("path escapes vault root"))
	}
	full := filepath.Join(w.VaultRoot, filepath.FromSlash(relPath))
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, vaulterr.New(vaulterr.NotFound, "writer.Read", relPath, err)
	}
	doc, err := markdown.Parse(raw)
	if err != nil {
		return nil, vaulterr.New(vaulterr.ParseError, "writer.Read", relPath, err)
	}
	return &Document{Content: doc.Body, FrontMatter: doc.FrontMatter, LineEnding: doc.LineEnding}, nil
}

// FindSection returns the first heading in content whose text matches
// headingName exactly (case-sensitive). Multiple occurrences: first
// wins, matching §4.B's own heading-extraction contract.
func FindSection(content, headingName string) (*Section, bool) {
	for _, h := range ExtractHeadings(content) {
		if h.Text == headingName {
			sec := h
			return &sec, true
		}
	}
	return nil, false
}

// ExtractHeadings is code-fence aware, delegating to the same scan
// internal/markdown uses for full note parsing.
func ExtractHeadings(content string) []Section {
	doc, err := markdown.Parse([]byte(content))
	if err != nil {
		return nil
	}
	return doc.Headings
}

// InsertInSection splices formatted payload lines into section's body,
// at the top (Prepend, right after the heading line) or the bottom
// (Append, right before the next heading or EOF).
func InsertInSection(content string, section Section, payload []string, position Position, opts InsertOptions) string {
	lines := strings.Split(content, "\n")

	insertAt := section.ContentStartLine
	if position == Append {
		insertAt = section.EndLine + 1
	}
	if insertAt < 0 {
		insertAt = 0
	}
	if insertAt > len(lines) {
		insertAt = len(lines)
	}

	toInsert := payload
	if position == Prepend && opts.PreserveListNesting {
		if indent := firstListItemIndent(lines, section.ContentStartLine, section.EndLine); indent != "" {
			toInsert = make([]string, len(payload))
			for i, l := range payload {
				if l == "" {
					toInsert[i] = l
					continue
				}
				toInsert[i] = indent + l
			}
		}
	}

	out := make([]string, 0, len(lines)+len(toInsert))
	out = append(out, lines[:insertAt]...)
	out = append(out, toInsert...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n")
}

// firstListItemIndent returns the leading whitespace of the first
// unordered-list item found within [start, end], or "" if none.
func firstListItemIndent(lines []string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	for i := start; i <= end && i < len(lines); i++ {
		trimmed := strings.TrimLeft(lines[i], " \t")
		for _, marker := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(trimmed, marker) {
				return lines[i][:len(lines[i])-len(trimmed)]
			}
		}
	}
	return ""
}

// Format renders payload lines per style. bullet selects the marker
// used by Bullet and TimestampBullet; callers normally pass the
// style detected from the target note via markdown.DetectBulletStyle.
func Format(payload []string, style Style, bullet markdown.BulletStyle) []string {
	if bullet == "" {
		bullet = markdown.BulletDash
	}
	out := make([]string, len(payload))
	switch style {
	case Plain:
		copy(out, payload)
	case Bullet:
		for i, l := range payload {
			out[i] = string(bullet) + " " + l
		}
	case Task:
		for i, l := range payload {
			out[i] = string(bullet) + " [ ] " + l
		}
	case TimestampBullet:
		stamp := time.Now().Format("15:04")
		for i, l := range payload {
			out[i] = string(bullet) + " **" + stamp + "** " + l
		}
	default:
		copy(out, payload)
	}
	return out
}

// Write serialises front matter and body, converts to lineEnding,
// normalises to exactly one trailing newline, and writes atomically:
// a sibling temp file in the same directory, fsynced, then renamed
// over the target. Parent directories are created as needed.
func (w *Writer) Write(relPath, content string, frontMatter *markdown.OrderedMap, lineEnding markdown.LineEnding) error {
	if !ValidatePath(w.VaultRoot, relPath) {
		return vaulterr.New(vaulterr.Invalid, "writer.Write", relPath, errors.New("path escapes vault root"))
	}

	fm, err := markdown.RenderFrontMatter(frontMatter)
	if err != nil {
		return vaulterr.New(vaulterr.ParseError, "writer.Write", relPath, err)
	}

	body := strings.TrimRight(content, "\n") + "\n"
	finalText := fm + body
	if lineEnding == markdown.CRLF {
		finalText = strings.ReplaceAll(finalText, "\n", "\r\n")
	}

	destPath := filepath.Join(w.VaultRoot, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return vaulterr.New(vaulterr.Io, "writer.Write", relPath, err)
	}

	if err := atomicWrite(destPath, []byte(finalText)); err != nil {
		return vaulterr.New(vaulterr.Io, "writer.Write", relPath, err)
	}

	logging.Writer("wrote %s (%d bytes)", relPath, len(finalText))
	return nil
}

func atomicWrite(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(dir, ".vaultgraph-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, destPath, err)
	}
	return nil
}
