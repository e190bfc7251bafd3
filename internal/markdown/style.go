package markdown

import "strings"

// IndentStyle is the whitespace unit a note's list items use, so the
// structural writer can insert new lines that match.
type IndentStyle struct {
	Tabs bool
	Width int // spaces per level, ignored when Tabs is true
}

// DefaultIndentStyle is used when a section has no existing list items
// to infer a style from.
var DefaultIndentStyle = IndentStyle{Tabs: false, Width: 2}

// DetectIndentStyle scans forward from index at (up to 50 lines) for
// the first indented line and returns its indentation: Tabs for a
// leading tab, otherwise its leading-space count when that count is
// even. Lines with an odd number of leading spaces are skipped; when
// no line qualifies it returns DefaultIndentStyle.
func DetectIndentStyle(lines []string, at int) IndentStyle {
	for i := at; i >= 0 && i < len(lines) && i < at+50; i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "\t") {
			return IndentStyle{Tabs: true}
		}
		leading := len(line) - len(strings.TrimLeft(line, " "))
		if leading > 0 && leading%2 == 0 {
			return IndentStyle{Width: leading}
		}
		if leading == 4 {
			return IndentStyle{Width: 4}
		}
	}
	return DefaultIndentStyle
}

// BulletStyle is the marker a note's unordered list items use.
type BulletStyle string

const (
	BulletDash      BulletStyle = "-"
	BulletAsterisk  BulletStyle = "*"
	BulletPlus      BulletStyle = "+"
)

var bulletMarkers = []string{"- ", "* ", "+ "}

// DetectBulletStyle scans lines for the first unordered-list marker in
// use, defaulting to "-" when none is found.
func DetectBulletStyle(lines []string) BulletStyle {
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		for _, marker := range bulletMarkers {
			if strings.HasPrefix(trimmed, marker) {
				return BulletStyle(marker[:1])
			}
		}
	}
	return BulletDash
}
