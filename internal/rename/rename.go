// Package rename implements vaultgraph's vault-wide tag and
// front-matter field rewriters (spec §4.J): rename_tag, rename_field,
// and migrate_field_values, each with a mandatory dry-run mode that
// renders a diff preview via internal/diff instead of touching disk.
// Every actual write goes through internal/writer so renames get the
// same atomic-write and line-ending fidelity as any other mutation.
package rename

import (
	"regexp"
	"sort"
	"strings"

	"vaultgraph/internal/diff"
	"vaultgraph/internal/markdown"
	"vaultgraph/internal/pathfilter"
	"vaultgraph/internal/writer"
)

// Preview is one note's before/after state for a dry-run or applied
// rename.
type Preview struct {
	Path    string
	Before  string
	After   string
	Diff    string // unified-style hunk rendering, via internal/diff
	Changed bool
}

// Options controls scope and dry-run behaviour shared by all three
// rename operations.
type Options struct {
	Folder string // vault-relative prefix; empty matches the whole vault
	DryRun bool
}

// TagOptions extends Options with rename_tag's rename_children flag.
type TagOptions struct {
	Options
	RenameChildren bool
}

// Result is the outcome of any of the three rename operations.
type Result struct {
	AffectedNotes int
	TotalChanges  int
	Previews      []Preview
}

// Renamer applies tag/field rewrites across a vault, reading and
// writing notes through a single writer.Writer and filtering candidate
// paths with pathfilter.
type Renamer struct {
	w        *writer.Writer
	filter   *pathfilter.Filter
	diffEng  *diff.Engine
	walkFunc func(vaultRoot string) ([]string, error)
}

// New returns a Renamer rooted at vaultRoot.
func New(vaultRoot string, filter *pathfilter.Filter) *Renamer {
	if filter == nil {
		filter = pathfilter.New()
	}
	return &Renamer{
		w:       writer.New(vaultRoot),
		filter:  filter,
		diffEng: diff.NewEngine(),
	}
}

var inlineTagCharRe = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_/-]*`)

// RenameTag updates front-matter tag sequences and inline #tag
// occurrences (outside fenced/inline code), per §4.J / S2. When
// renameChildren is set, "old/child" becomes "new/child" as well as a
// bare "old" match. Colliding results within one note are deduplicated.
func (r *Renamer) RenameTag(paths []string, oldTag, newTag string, opts TagOptions) (*Result, error) {
	res := &Result{}
	for _, p := range matchFolder(paths, opts.Folder) {
		doc, err := r.w.Read(p)
		if err != nil {
			continue
		}
		before := renderForDiff(doc)

		fm, fmCount := renameTagInFrontMatter(doc.FrontMatter, oldTag, newTag, opts.RenameChildren)
		body, bodyCount := renameInlineTag(doc.Content, oldTag, newTag, opts.RenameChildren)

		if fmCount == 0 && bodyCount == 0 {
			continue
		}

		res.AffectedNotes++
		res.TotalChanges += fmCount + bodyCount

		afterDoc := &writer.Document{Content: body, FrontMatter: fm, LineEnding: doc.LineEnding}
		after := renderForDiff(afterDoc)

		preview := r.buildPreview(p, before, after)
		res.Previews = append(res.Previews, preview)

		if !opts.DryRun {
			if err := r.w.Write(p, body, fm, doc.LineEnding); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// RenameField renames a front-matter key across matching notes,
// preserving the value and the key's position in insertion order.
func (r *Renamer) RenameField(paths []string, oldKey, newKey string, opts Options) (*Result, error) {
	res := &Result{}
	for _, p := range matchFolder(paths, opts.Folder) {
		doc, err := r.w.Read(p)
		if err != nil {
			continue
		}
		if doc.FrontMatter == nil {
			continue
		}
		if _, ok := doc.FrontMatter.Get(oldKey); !ok {
			continue
		}
		before := renderForDiff(doc)

		if !doc.FrontMatter.Rename(oldKey, newKey) {
			continue
		}

		res.AffectedNotes++
		res.TotalChanges++

		after := renderForDiff(doc)
		res.Previews = append(res.Previews, r.buildPreview(p, before, after))

		if !opts.DryRun {
			if err := r.w.Write(p, doc.Content, doc.FrontMatter, doc.LineEnding); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// MigrateFieldValues rewrites a front-matter key's scalar value through
// an enumerated mapping (old value string -> new value string), leaving
// the value untouched for notes whose current value has no mapping
// entry.
func (r *Renamer) MigrateFieldValues(paths []string, key string, mapping map[string]string, opts Options) (*Result, error) {
	res := &Result{}
	for _, p := range matchFolder(paths, opts.Folder) {
		doc, err := r.w.Read(p)
		if err != nil {
			continue
		}
		if doc.FrontMatter == nil {
			continue
		}
		v, ok := doc.FrontMatter.Get(key)
		if !ok || v.Kind != markdown.KindString {
			continue
		}
		newVal, ok := mapping[v.Str]
		if !ok || newVal == v.Str {
			continue
		}
		before := renderForDiff(doc)
		doc.FrontMatter.Set(key, markdown.StringValue(newVal))

		res.AffectedNotes++
		res.TotalChanges++

		after := renderForDiff(doc)
		res.Previews = append(res.Previews, r.buildPreview(p, before, after))

		if !opts.DryRun {
			if err := r.w.Write(p, doc.Content, doc.FrontMatter, doc.LineEnding); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (r *Renamer) buildPreview(path, before, after string) Preview {
	fd := r.diffEng.ComputeDiff(path, path, before, after)
	return Preview{
		Path:    path,
		Before:  before,
		After:   after,
		Diff:    diff.Render(fd),
		Changed: before != after,
	}
}

func matchFolder(paths []string, folder string) []string {
	if folder == "" {
		sorted := append([]string(nil), paths...)
		sort.Strings(sorted)
		return sorted
	}
	prefix := strings.TrimSuffix(folder, "/") + "/"
	var out []string
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// renderForDiff renders a writer.Document's front matter followed by
// its body for the preview diff. Unlike Write, it does not normalise
// the trailing newline or convert line endings to CRLF.
func renderForDiff(doc *writer.Document) string {
	fm, err := markdown.RenderFrontMatter(doc.FrontMatter)
	if err != nil {
		fm = ""
	}
	return fm + doc.Content
}

// renameTagInFrontMatter rewrites a front-matter "tags" sequence,
// returning a new OrderedMap and the number of tags changed only when
// something changed (the input is never mutated in place, so the
// caller can still diff before/after).
func renameTagInFrontMatter(fm *markdown.OrderedMap, oldTag, newTag string, renameChildren bool) (*markdown.OrderedMap, int) {
	if fm == nil {
		return fm, 0
	}
	v, ok := fm.Get("tags")
	if !ok {
		return fm, 0
	}

	count := 0
	seen := make(map[string]struct{})
	var out []markdown.Value

	apply := func(s string) string {
		mapped, did := mapTag(s, oldTag, newTag, renameChildren)
		if did {
			count++
		}
		return mapped
	}

	switch v.Kind {
	case markdown.KindSequence:
		for _, item := range v.Seq {
			if item.Kind != markdown.KindString {
				out = append(out, item)
				continue
			}
			mapped := apply(item.Str)
			if _, dup := seen[mapped]; dup {
				continue
			}
			seen[mapped] = struct{}{}
			out = append(out, markdown.StringValue(mapped))
		}
	case markdown.KindString:
		mapped := apply(v.Str)
		out = append(out, markdown.StringValue(mapped))
	default:
		return fm, 0
	}

	if count == 0 {
		return fm, 0
	}

	clone := cloneOrderedMap(fm)
	clone.Set("tags", markdown.SequenceValue(out))
	return clone, count
}

// mapTag applies the rename to one tag string, handling the
// rename_children "old/child" -> "new/child" case.
func mapTag(tag, oldTag, newTag string, renameChildren bool) (string, bool) {
	if tag == oldTag {
		return newTag, true
	}
	if renameChildren && strings.HasPrefix(tag, oldTag+"/") {
		return newTag + strings.TrimPrefix(tag, oldTag), true
	}
	return tag, false
}

// renameInlineTag rewrites #tag occurrences in body text outside fences
// and inline code, per §4.B's tag-matching contract, returning the
// number of occurrences changed.
func renameInlineTag(body, oldTag, newTag string, renameChildren bool) (string, int) {
	lines := strings.Split(body, "\n")
	regions := markdown.ScanCodeRegions(body)
	codeSpanRe := regexp.MustCompile("`[^`]*`")
	total := 0

	for i, line := range lines {
		if i >= len(regions) || regions[i].InFence {
			continue
		}
		// Rewrite only the text between inline code spans; the spans
		// themselves are copied through unchanged.
		var b strings.Builder
		n, last := 0, 0
		for _, span := range codeSpanRe.FindAllStringIndex(line, -1) {
			seg, c := rewriteLineTags(line[last:span[0]], oldTag, newTag, renameChildren)
			b.WriteString(seg)
			b.WriteString(line[span[0]:span[1]])
			n += c
			last = span[1]
		}
		seg, c := rewriteLineTags(line[last:], oldTag, newTag, renameChildren)
		b.WriteString(seg)
		n += c
		if n > 0 {
			lines[i] = b.String()
			total += n
		}
	}
	return strings.Join(lines, "\n"), total
}

func rewriteLineTags(line, oldTag, newTag string, renameChildren bool) (string, int) {
	runes := []rune(line)
	var b strings.Builder
	count := 0

	i := 0
	for i < len(runes) {
		r := runes[i]
		if r != '#' || (i > 0 && !isTagBoundary(runes[i-1])) {
			b.WriteRune(r)
			i++
			continue
		}
		rest := string(runes[i+1:])
		m := inlineTagCharRe.FindString(rest)
		if m == "" {
			b.WriteRune(r)
			i++
			continue
		}
		mapped, did := mapTag(m, oldTag, newTag, renameChildren)
		b.WriteRune('#')
		b.WriteString(mapped)
		if did {
			count++
		}
		i += 1 + len([]rune(m))
	}
	return b.String(), count
}

func isTagBoundary(r rune) bool {
	switch r {
	case ' ', '\t', '(', '[', ',':
		return true
	}
	return false
}

// cloneOrderedMap performs a shallow copy so RenameTag's rewritten
// "tags" value does not mutate the document the caller is still
// diffing against.
func cloneOrderedMap(fm *markdown.OrderedMap) *markdown.OrderedMap {
	out := markdown.NewOrderedMap()
	for _, k := range fm.Keys() {
		v, _ := fm.Get(k)
		out.Set(k, v)
	}
	return out
}
