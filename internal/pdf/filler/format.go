package filler

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/width"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// DefaultDateLayout renders dates the way Japanese forms print them
const DefaultDateLayout = "2006年1月2日"

// DefaultTrueValue is drawn for a checked checkbox without a trueValue.
// The standard PDF fonts carry no check mark glyph.
const DefaultTrueValue = "X"

var numberPrinter = message.NewPrinter(language.Japanese)

// formatNumber groups thousands and keeps up to two decimals
func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return numberPrinter.Sprintf("%d", int64(n))
	}
	s := numberPrinter.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// formatText renders v as the text written for a field of type ft
func formatText(fc template.FieldConfig, v appdata.Value) string {
	switch fc.Type {
	case template.FieldTypeNumber:
		if s, ok := v.AsString(); ok {
			// Full-width digits are common in hand-entered Japanese data.
			v = appdata.String(width.Narrow.String(s))
		}
		if i, ok := v.AsInt(); ok {
			return numberPrinter.Sprintf("%d", i)
		}
		if n, ok := v.AsNumber(); ok {
			return formatNumber(n)
		}
	case template.FieldTypeDate:
		if t, ok := v.AsTime(); ok {
			layout := fc.Format.DateLayout
			if layout == "" {
				layout = DefaultDateLayout
			}
			return t.Format(layout)
		}
	case template.FieldTypeCheckbox:
		if b, ok := v.AsBool(); ok {
			if !b {
				return ""
			}
			if fc.Format.TrueValue != "" {
				return fc.Format.TrueValue
			}
			return DefaultTrueValue
		}
	}
	return v.Text()
}

// singleLine joins the lines of s with a space for one-line fields
func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	var parts []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
