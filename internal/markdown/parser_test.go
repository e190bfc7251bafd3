package markdown

import (
	"strings"
	"testing"
)

func TestParseFrontMatterAndBody(t *testing.T) {
	raw := []byte("---\ntitle: Alice\ntags:\n  - person\n  - friend\nage: 34\n---\nHello [[Bob|Bobby]] see #project/x\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	title, ok := doc.FrontMatter.Get("title")
	if !ok || title.Str != "Alice" {
		t.Errorf("title = %+v, ok=%v", title, ok)
	}
	age, ok := doc.FrontMatter.Get("age")
	if !ok || age.Num != 34 {
		t.Errorf("age = %+v", age)
	}
	tags, ok := doc.FrontMatter.Get("tags")
	if !ok || tags.Kind != KindSequence || len(tags.Seq) != 2 {
		t.Errorf("tags = %+v", tags)
	}
	if !strings.Contains(doc.Body, "Bobby") {
		t.Errorf("body missing alias text: %q", doc.Body)
	}
}

func TestParseNoFrontMatter(t *testing.T) {
	raw := []byte("# Title\n\nsome body text\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.FrontMatter.Len() != 0 {
		t.Errorf("expected empty front matter, got %d keys", doc.FrontMatter.Len())
	}
	if len(doc.Headings) != 1 || doc.Headings[0].Text != "Title" {
		t.Errorf("headings = %+v", doc.Headings)
	}
}

func TestParseHorizontalRuleNotMistakenForFrontMatter(t *testing.T) {
	raw := []byte("intro line\n\n---\n\nmore text\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.FrontMatter.Len() != 0 {
		t.Error("expected empty front matter for body-only hr")
	}
	if !strings.Contains(doc.Body, "intro line") {
		t.Errorf("body lost leading text: %q", doc.Body)
	}
}

func TestParseWikilinksAndTags(t *testing.T) {
	raw := []byte("See [[Project Alpha]] and [[people/Bob|Bobby]].\nTagged #urgent and #project/alpha here.\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Outlinks) != 2 {
		t.Fatalf("expected 2 outlinks, got %d: %+v", len(doc.Outlinks), doc.Outlinks)
	}
	if doc.Outlinks[0].Target != "Project Alpha" {
		t.Errorf("outlink 0 target = %q", doc.Outlinks[0].Target)
	}
	if doc.Outlinks[1].Target != "people/Bob" || doc.Outlinks[1].Display != "Bobby" {
		t.Errorf("outlink 1 = %+v", doc.Outlinks[1])
	}
	if len(doc.InlineTags) != 2 || doc.InlineTags[0] != "urgent" || doc.InlineTags[1] != "project/alpha" {
		t.Errorf("tags = %+v", doc.InlineTags)
	}
}

func TestParseIgnoresFencedAndInlineCode(t *testing.T) {
	raw := []byte("Real [[Link]] here.\n\n```\nNot [[Fake]] and #nottag\n```\n\nInline `#nottag [[Fake2]]` code.\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Outlinks) != 1 || doc.Outlinks[0].Target != "Link" {
		t.Errorf("outlinks = %+v", doc.Outlinks)
	}
	if len(doc.InlineTags) != 0 {
		t.Errorf("expected no tags, got %+v", doc.InlineTags)
	}
}

func TestParseIgnoresIndentedCodeBlockTags(t *testing.T) {
	raw := []byte("Real #tag here.\n\n    #nottag in an indented block\n\tand tab-indented #alsonottag\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.InlineTags) != 1 || doc.InlineTags[0] != "tag" {
		t.Errorf("tags = %+v, want [tag]", doc.InlineTags)
	}
}

func TestParseHeadingRanges(t *testing.T) {
	raw := []byte("# A\nbody a\n## B\nbody b\n# C\nbody c\n")
	doc, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Headings) != 3 {
		t.Fatalf("expected 3 headings, got %d: %+v", len(doc.Headings), doc.Headings)
	}
	a, b, c := doc.Headings[0], doc.Headings[1], doc.Headings[2]
	// A section's scope runs through its nested subsections: both the H1
	// (A) and the H2 nested inside it (B) end where the next heading at
	// or above B's level appears, i.e. right before C.
	if a.EndLine != c.StartLine-1 {
		t.Errorf("heading A end = %d, want %d", a.EndLine, c.StartLine-1)
	}
	if b.EndLine != c.StartLine-1 {
		t.Errorf("heading B end = %d, want %d", b.EndLine, c.StartLine-1)
	}
	lines := strings.Split(doc.Body, "\n")
	if c.EndLine != len(lines)-1 {
		t.Errorf("heading C end = %d, want %d", c.EndLine, len(lines)-1)
	}
}

func TestDetectLineEnding(t *testing.T) {
	if DetectLineEnding([]byte("a\r\nb\r\nc\r\n")) != CRLF {
		t.Error("expected CRLF")
	}
	if DetectLineEnding([]byte("a\nb\nc\n")) != LF {
		t.Error("expected LF")
	}
	if DetectLineEnding(nil) != LF {
		t.Error("expected LF default for empty content")
	}
}

func TestHashContentStableAcrossTrailingWhitespace(t *testing.T) {
	a := HashContent("hello world  \n")
	b := HashContent("hello world\n")
	if a != b {
		t.Error("expected hash to ignore trailing whitespace")
	}
}

func TestDetectBulletStyle(t *testing.T) {
	if DetectBulletStyle([]string{"text", "* item one", "* item two"}) != BulletAsterisk {
		t.Error("expected asterisk bullet style")
	}
	if DetectBulletStyle([]string{"no lists here"}) != BulletDash {
		t.Error("expected default dash bullet style")
	}
}

func TestDetectIndentStyle(t *testing.T) {
	lines := []string{"- top", "  - nested two spaces", "  - sibling"}
	style := DetectIndentStyle(lines, 0)
	if style.Tabs || style.Width != 2 {
		t.Errorf("style = %+v", style)
	}
}
