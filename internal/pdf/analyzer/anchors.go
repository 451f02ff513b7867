package analyzer

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/layout"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// AnchorGap is the horizontal distance between a label and the suggested
// drawing position.
const AnchorGap = 10.0

// Anchor is the position of printed label text on a page
type Anchor struct {
	Label    string  `json:"label"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	EndX     float64 `json:"endX"`
	FontSize float64 `json:"fontSize"`
}

// Suggest returns coordinates just right of the label on its baseline
func (a Anchor) Suggest() template.Coordinates {
	return template.Coordinates{
		Page: a.Page,
		X:    math.Round(a.EndX + AnchorGap),
		Y:    math.Round(a.Y),
	}
}

type glyph struct {
	x, w, size float64
	s          string
}

type textLine struct {
	y      float64
	glyphs []glyph
}

func (l textLine) text() string {
	var b strings.Builder
	for _, g := range l.glyphs {
		b.WriteString(g.s)
	}
	return b.String()
}

// Anchors finds the first occurrence of each label in the page text.
// Labels that are not printed anywhere are absent from the result.
func Anchors(doc *document.Document, labels []string) (found map[string]Anchor, err error) {
	found = make(map[string]Anchor)
	if len(labels) == 0 {
		return found, nil
	}

	// ledongthuc/pdf panics on content streams it cannot interpret.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read page text: %v", r)
		}
	}()

	data := doc.Bytes()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return found, fmt.Errorf("failed to open PDF text reader: %w", err)
	}

	measurer := layout.NewEastAsianMeasurer()
	for pageNum := 1; pageNum <= reader.NumPage() && len(found) < len(labels); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		for _, line := range groupLines(page.Content().Text) {
			text := line.text()
			for _, label := range labels {
				if _, done := found[label]; done || label == "" {
					continue
				}
				idx := strings.Index(text, label)
				if idx < 0 {
					continue
				}
				found[label] = anchorAt(line, label, pageNum, runeIndex(text, idx), measurer)
			}
		}
	}
	return found, nil
}

// groupLines collects glyphs sharing a baseline, top to bottom and left to
// right. Glyphs at the same x keep their drawing order.
func groupLines(texts []pdf.Text) []textLine {
	byY := make(map[int64]*textLine)
	var keys []int64
	for _, t := range texts {
		key := int64(math.Round(t.Y))
		line, ok := byY[key]
		if !ok {
			line = &textLine{y: t.Y}
			byY[key] = line
			keys = append(keys, key)
		}
		line.glyphs = append(line.glyphs, glyph{x: t.X, w: t.W, size: t.FontSize, s: t.S})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })

	lines := make([]textLine, 0, len(keys))
	for _, k := range keys {
		line := byY[k]
		sort.SliceStable(line.glyphs, func(i, j int) bool { return line.glyphs[i].x < line.glyphs[j].x })
		lines = append(lines, *line)
	}
	return lines
}

func runeIndex(s string, byteIdx int) int {
	return len([]rune(s[:byteIdx]))
}

// anchorAt builds the anchor for label starting at glyph index start.
// Fonts without a /Widths array report zero advances, in which case the
// label width is estimated from the font size.
func anchorAt(line textLine, label string, page, start int, m layout.Measurer) Anchor {
	first := line.glyphs[start]
	last := line.glyphs[min(start+len([]rune(label))-1, len(line.glyphs)-1)]

	a := Anchor{Label: label, Page: page, X: first.x, Y: line.y, FontSize: first.size}
	if end := last.x + last.w; end > first.x {
		a.EndX = end
	} else {
		a.EndX = first.x + layout.TextWidth(m, label, first.size)
	}
	return a
}
