// Package markdown implements vaultgraph's single-pass note parser: front
// matter, headings, wikilinks, inline tags, and a content hash used to
// detect no-op writes. It does not render Markdown to HTML; it extracts
// the structural facts the graph index and structural writer need.
package markdown

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// LineEnding records which line terminator a note used, so the writer
// can reproduce it exactly.
type LineEnding int

const (
	LF LineEnding = iota
	CRLF
)

func (l LineEnding) String() string {
	if l == CRLF {
		return "\r\n"
	}
	return "\n"
}

// Heading is one ATX heading (# .. ######), with the line ranges the
// structural writer needs to know what content belongs "in" a section.
type Heading struct {
	Level             int
	Text              string
	StartLine         int // 0-based line the "#" token starts on
	ContentStartLine  int // first line of the section's body (StartLine+1)
	EndLine           int // line before the next heading of level <= this one, or EOF
}

// Outlink is a wikilink reference found in the note body.
type Outlink struct {
	Target  string // target text with any |alias removed; #heading/^block anchors retained
	Display string // alias if `[[target|display]]`, else equal to Target
	Line    int
}

// Document is the result of parsing one note's raw bytes.
type Document struct {
	FrontMatter *OrderedMap
	Body        string // content after front matter, original text
	LineEnding  LineEnding
	Headings    []Heading
	Outlinks    []Outlink
	InlineTags  []string // de-duplicated, insertion order
	ContentHash string   // sha256 of NFC-normalized body, hex
}

var (
	atxHeadingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	wikilinkRe    = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	fenceRe       = regexp.MustCompile("^(```+|~~~+)")
	inlineCodeRe  = regexp.MustCompile("`[^`]*`")
	tagCharRe     = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_/-]*`)
)

// Parse scans raw note bytes into a Document.
func Parse(raw []byte) (*Document, error) {
	ending := DetectLineEnding(raw)

	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	text := string(normalized)

	fm, body, err := splitFrontMatter(text)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		FrontMatter: fm,
		Body:        body,
		LineEnding:  ending,
	}

	scan(doc, body)
	doc.ContentHash = HashContent(body)

	return doc, nil
}

// DetectLineEnding reports CRLF when CRLF pairs outnumber bare LFs,
// defaulting to LF for empty or LF-only content.
func DetectLineEnding(raw []byte) LineEnding {
	crlf := bytes.Count(raw, []byte("\r\n"))
	lf := bytes.Count(raw, []byte("\n")) - crlf
	if crlf > lf {
		return CRLF
	}
	return LF
}

// splitFrontMatter extracts a leading `---\n...\n---\n` YAML block.
// A missing or malformed block yields an empty mapping, never an error:
// front matter is optional and a body that merely starts with "---" as
// a horizontal rule must still parse.
func splitFrontMatter(text string) (*OrderedMap, string, error) {
	if !strings.HasPrefix(text, "---\n") && text != "---" {
		return NewOrderedMap(), text, nil
	}

	rest := strings.TrimPrefix(text, "---\n")
	end := findFrontMatterEnd(rest)
	if end < 0 {
		return NewOrderedMap(), text, nil
	}

	raw := rest[:end]
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		return NewOrderedMap(), text, nil
	}

	om := NewOrderedMap()
	if len(node.Content) > 0 {
		if m := nodeToValue(node.Content[0]).Map; m != nil {
			om = m
		}
	}

	body := rest[end:]
	body = strings.TrimPrefix(body, "---\n")
	body = strings.TrimPrefix(body, "---")
	body = strings.TrimPrefix(body, "\n")
	return om, body, nil
}

// findFrontMatterEnd returns the index in s right after the YAML block,
// i.e. the start of the line containing the closing "---", or -1 if no
// closing delimiter line exists.
func findFrontMatterEnd(s string) int {
	lines := strings.SplitAfter(s, "\n")
	offset := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\n")
		if trimmed == "---" {
			return offset
		}
		offset += len(line)
	}
	return -1
}

func nodeToValue(n *yaml.Node) Value {
	switch n.Kind {
	case yaml.MappingNode:
		om := NewOrderedMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			om.Set(key, nodeToValue(n.Content[i+1]))
		}
		return MappingValue(om)
	case yaml.SequenceNode:
		vals := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			vals = append(vals, nodeToValue(c))
		}
		return SequenceValue(vals)
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!bool":
			var b bool
			_ = n.Decode(&b)
			return BoolValue(b)
		case "!!int", "!!float":
			var f float64
			if err := n.Decode(&f); err == nil {
				return NumberValue(f)
			}
		case "!!timestamp":
			var t time.Time
			if err := n.Decode(&t); err == nil {
				return DateValue(t)
			}
		}
		return StringValue(n.Value)
	default:
		return StringValue(n.Value)
	}
}

// scan walks the body once, tracking fence state, to collect headings,
// wikilinks, and inline tags in a single pass.
func scan(doc *Document, body string) {
	lines := strings.Split(body, "\n")

	inFence := false
	var fenceMarker string

	var openHeadings []int // indices into doc.Headings still awaiting EndLine
	seenTags := make(map[string]struct{})

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := fenceRe.FindString(trimmed); m != "" {
			if !inFence {
				inFence = true
				fenceMarker = string(m[0])
			} else if strings.HasPrefix(trimmed, fenceMarker) {
				inFence = false
			}
			continue
		}
		if inFence {
			continue
		}

		if hm := atxHeadingRe.FindStringSubmatch(line); hm != nil {
			level := len(hm[1])
			closeHeadingsAtOrBelow(doc, &openHeadings, level, i-1)
			doc.Headings = append(doc.Headings, Heading{
				Level:            level,
				Text:             hm[2],
				StartLine:        i,
				ContentStartLine: i + 1,
				EndLine:          -1,
			})
			openHeadings = append(openHeadings, len(doc.Headings)-1)
			continue
		}

		stripped := stripInlineCode(line)
		collectWikilinks(doc, stripped, i)
		if !isIndentedCodeLine(line) {
			collectTags(stripped, seenTags, &doc.InlineTags)
		}
	}

	closeHeadingsAtOrBelow(doc, &openHeadings, 0, len(lines)-1)
}

func closeHeadingsAtOrBelow(doc *Document, open *[]int, level int, endLine int) {
	remaining := (*open)[:0]
	for _, idx := range *open {
		if doc.Headings[idx].Level >= level && level != 0 {
			doc.Headings[idx].EndLine = endLine
			continue
		}
		if level == 0 {
			doc.Headings[idx].EndLine = endLine
			continue
		}
		remaining = append(remaining, idx)
	}
	*open = remaining
}

// CodeLine is one body line annotated with whether it falls inside a
// fenced code block, for callers (autolink, writer) that need to skip
// code regions without re-implementing fence tracking.
type CodeLine struct {
	LineNo   int
	Text     string // original text; on non-fenced lines inline code spans are blanked to spaces
	InFence  bool
}

// ScanCodeRegions walks body once, using the same fence-tracking state
// machine as Parse, and reports which lines fall inside a fenced code
// block. Non-fenced lines are returned with inline `code` spans
// replaced by spaces of equal length, matching the parser's own
// wikilink/tag scan so autolink never rewrites inside a code span.
func ScanCodeRegions(body string) []CodeLine {
	lines := strings.Split(body, "\n")
	out := make([]CodeLine, 0, len(lines))

	inFence := false
	var fenceMarker string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := fenceRe.FindString(trimmed); m != "" {
			wasFenced := inFence
			if !inFence {
				inFence = true
				fenceMarker = string(m[0])
			} else if strings.HasPrefix(trimmed, fenceMarker) {
				inFence = false
			}
			out = append(out, CodeLine{LineNo: i, Text: line, InFence: wasFenced || inFence})
			continue
		}
		if inFence {
			out = append(out, CodeLine{LineNo: i, Text: line, InFence: true})
			continue
		}
		out = append(out, CodeLine{LineNo: i, Text: stripInlineCode(line), InFence: false})
	}
	return out
}

func stripInlineCode(line string) string {
	return inlineCodeRe.ReplaceAllStringFunc(line, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}

func collectWikilinks(doc *Document, line string, lineNo int) {
	for _, m := range wikilinkRe.FindAllStringSubmatch(line, -1) {
		inner := strings.TrimSpace(m[1])
		target := inner
		display := inner
		if idx := strings.Index(inner, "|"); idx >= 0 {
			target = strings.TrimSpace(inner[:idx])
			display = strings.TrimSpace(inner[idx+1:])
		}
		// target keeps any trailing #heading or ^block-id anchor in raw
		// form per §4.B; resolution (graph.ResolveTargetKey) strips it.
		if target == "" {
			continue
		}
		doc.Outlinks = append(doc.Outlinks, Outlink{
			Target:  target,
			Display: display,
			Line:    lineNo,
		})
	}
}

func collectTags(line string, seen map[string]struct{}, out *[]string) {
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '#' {
			continue
		}
		if i > 0 && !isTagBoundary(runes[i-1]) {
			continue
		}
		rest := string(runes[i+1:])
		m := tagCharRe.FindString(rest)
		if m == "" {
			continue
		}
		tag := m
		if _, ok := seen[tag]; !ok {
			seen[tag] = struct{}{}
			*out = append(*out, tag)
		}
		i += len([]rune(m))
	}
}

// isIndentedCodeLine reports whether line is a 4-space or tab indented
// code block line per §4.B, so it can be excluded from inline-tag
// matching the same way fenced code already is. Only tags need this:
// headings are anchored at column 0 by atxHeadingRe and never match
// here regardless.
func isIndentedCodeLine(line string) bool {
	return strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")
}

func isTagBoundary(r rune) bool {
	return unicode.IsSpace(r) || r == '(' || r == '[' || r == ','
}

// HashContent returns a stable content hash over NFC-normalized body
// text, used to detect no-op re-writes and skip unnecessary graph
// upserts.
func HashContent(body string) string {
	sum := sha256.Sum256([]byte(NormalizeForHash(body)))
	return hex.EncodeToString(sum[:])
}

// NormalizeForHash applies NFC Unicode normalization and trims
// trailing whitespace per line, so formatting-only differences
// (trailing spaces, composed vs decomposed accents) do not register
// as content changes.
func NormalizeForHash(body string) string {
	normalized := norm.NFC.String(body)
	lines := strings.Split(normalized, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}
