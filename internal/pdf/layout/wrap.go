// Package layout breaks text into lines that fit a width on the page.
// Breaking is per character because Japanese text has no spaces between
// words.
package layout

import (
	"math"
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// NarrowAdvance is the advance of a half-width glyph in em units. It
// sits above the Helvetica average so measured lines never come out
// narrower than drawn ones.
const NarrowAdvance = 0.6

// Measurer reports glyph advances in points
type Measurer interface {
	RuneWidth(r rune, fontSize float64) float64
}

// Font is a Measurer that also knows which characters it can draw
type Font interface {
	Measurer
	HasGlyph(r rune) bool
}

// Points is the integral font size pdfcpu draws a run of fontSize with
func Points(fontSize float64) int {
	return max(int(math.Round(fontSize)), 1)
}

// FontMeasurer measures text with the metrics pdfcpu uses to draw it: the
// AFM widths of the standard 14 fonts or the tables of an installed
// TrueType font.
type FontMeasurer struct {
	FontName string
}

// NewFontMeasurer creates a measurer for a font known to pdfcpu
func NewFontMeasurer(fontName string) FontMeasurer {
	return FontMeasurer{FontName: fontName}
}

// RuneWidth implements Measurer. Sizes are rounded the way the stamper
// rounds them. An unknown font measures as zero.
func (m FontMeasurer) RuneWidth(r rune, fontSize float64) float64 {
	if !font.SupportedFont(m.FontName) {
		return 0
	}
	s := string(r)
	if font.IsCoreFont(m.FontName) {
		s = model.DecodeUTF8ToByte(s)
	}
	return font.TextWidth(s, m.FontName, Points(fontSize))
}

// HasGlyph reports whether the font draws r. The standard 14 fonts only
// cover WinAnsi; anything else is written as a space.
func (m FontMeasurer) HasGlyph(r rune) bool {
	switch {
	case font.IsCoreFont(m.FontName):
		return r == ' ' || model.DecodeUTF8ToByte(string(r)) != " "
	case font.IsUserFont(m.FontName):
		font.UserFontMetricsLock.RLock()
		defer font.UserFontMetricsLock.RUnlock()
		_, ok := font.UserFontMetrics[m.FontName].Chars[uint32(r)]
		return ok
	}
	return false
}

// MissingGlyphs returns the distinct characters of s that f cannot draw,
// in order of first appearance. Whitespace is never reported.
func MissingGlyphs(f Font, s string) []rune {
	var (
		missing []rune
		seen    = make(map[rune]bool)
	)
	for _, r := range s {
		if unicode.IsSpace(r) || seen[r] {
			continue
		}
		seen[r] = true
		if !f.HasGlyph(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// EastAsianMeasurer estimates advances for text whose font metrics are
// unknown, such as labels extracted from a template. Full-width
// characters count as one em and every other printable character as
// NarrowAdvance em.
type EastAsianMeasurer struct {
	cond *runewidth.Condition
}

// NewEastAsianMeasurer creates a measurer with East Asian ambiguous-width
// characters (○, ※, ①, Greek) counted as full width, which is how Japanese
// fonts draw them.
func NewEastAsianMeasurer() *EastAsianMeasurer {
	cond := runewidth.NewCondition()
	cond.EastAsianWidth = true
	return &EastAsianMeasurer{cond: cond}
}

// RuneWidth implements Measurer
func (m *EastAsianMeasurer) RuneWidth(r rune, fontSize float64) float64 {
	switch m.cond.RuneWidth(r) {
	case 0:
		return 0
	case 2:
		return fontSize
	default:
		return fontSize * NarrowAdvance
	}
}

// TextWidth sums the advances of every rune in s
func TextWidth(m Measurer, s string, fontSize float64) float64 {
	var w float64
	for _, r := range s {
		w += m.RuneWidth(r, fontSize)
	}
	return w
}

// noLineStart holds characters that must not begin a line (kinsoku).
var noLineStart = map[rune]bool{
	'、': true, '。': true, '，': true, '．': true, '・': true, '：': true, '；': true,
	'）': true, '」': true, '』': true, '】': true, '〕': true, '〉': true, '》': true, '］': true, '｝': true,
	'！': true, '？': true, 'ー': true, '…': true, '‥': true,
	'ぁ': true, 'ぃ': true, 'ぅ': true, 'ぇ': true, 'ぉ': true, 'っ': true, 'ゃ': true, 'ゅ': true, 'ょ': true,
	'ァ': true, 'ィ': true, 'ゥ': true, 'ェ': true, 'ォ': true, 'ッ': true, 'ャ': true, 'ュ': true, 'ョ': true,
	',': true, '.': true, ')': true, ']': true, '}': true, '!': true, '?': true, ':': true, ';': true,
}

// Wrap splits text into lines no wider than maxWidth. Existing newlines
// are hard breaks; each resulting paragraph is broken again character by
// character. A line-start-prohibited character that would open a new line
// pulls the previous character down with it. A single glyph wider than
// maxWidth is emitted on its own line.
func Wrap(m Measurer, text string, maxWidth, fontSize float64) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(m, paragraph, maxWidth, fontSize)...)
	}
	return lines
}

func wrapParagraph(m Measurer, paragraph string, maxWidth, fontSize float64) []string {
	if paragraph == "" {
		return []string{""}
	}
	if maxWidth <= 0 {
		return []string{paragraph}
	}

	var (
		lines   []string
		current []rune
		width   float64
	)
	for _, r := range paragraph {
		w := m.RuneWidth(r, fontSize)
		if len(current) > 0 && width+w > maxWidth {
			var carry []rune
			if noLineStart[r] && len(current) > 1 {
				carry = []rune{current[len(current)-1]}
				current = current[:len(current)-1]
			}
			lines = append(lines, string(current))
			current = append([]rune(nil), carry...)
			width = 0
			for _, c := range current {
				width += m.RuneWidth(c, fontSize)
			}
			// The carried glyph plus r may still overflow a very narrow
			// column; keep the bound by flushing again.
			if len(current) > 0 && width+w > maxWidth {
				lines = append(lines, string(current))
				current = current[:0]
				width = 0
			}
		}
		current = append(current, r)
		width += w
	}
	return append(lines, string(current))
}

// Truncate cuts s so that it fits maxWidth, returning the kept prefix and
// whether anything was dropped.
func Truncate(m Measurer, s string, maxWidth, fontSize float64) (string, bool) {
	if maxWidth <= 0 {
		return s, false
	}
	var width float64
	for i, r := range s {
		width += m.RuneWidth(r, fontSize)
		if width > maxWidth {
			return s[:i], true
		}
	}
	return s, false
}
