package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// Severity grades a mapping finding
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one observation about a mapping entry against a template
type Finding struct {
	Key        string                `json:"key"`
	Severity   Severity              `json:"severity"`
	Message    string                `json:"message"`
	Suggestion *template.Coordinates `json:"suggestion,omitempty"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Key, f.Message)
}

// Compatible reports whether a mapped field type can be written into an
// interactive field of the given kind.
func Compatible(ft template.FieldType, kind FieldKind) bool {
	switch kind {
	case FieldKindUnknown:
		return true
	case FieldKindButton, FieldKindSignature:
		return false
	}
	switch ft {
	case template.FieldTypeText, template.FieldTypeNumber, template.FieldTypeDate:
		return kind == FieldKindText || kind == FieldKindComboBox
	case template.FieldTypeMultiline:
		return kind == FieldKindText
	case template.FieldTypeCheckbox:
		return kind == FieldKindCheckbox || kind == FieldKindRadio
	case template.FieldTypeSelect:
		return kind == FieldKindComboBox || kind == FieldKindListBox || kind == FieldKindRadio || kind == FieldKindText
	}
	return false
}

// HasErrors reports whether any finding is an error
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CheckMapping compares a mapping against an analysis. anchors holds the
// label positions found by Anchors and may be nil.
func CheckMapping(analysis *Analysis, mapping template.FieldMapping, anchors map[string]Anchor) []Finding {
	var findings []Finding
	add := func(key string, sev Severity, suggestion *template.Coordinates, format string, args ...any) {
		findings = append(findings, Finding{Key: key, Severity: sev, Message: fmt.Sprintf(format, args...), Suggestion: suggestion})
	}

	for _, key := range mapping.Keys() {
		fc := mapping[key]
		if fc.Target == nil {
			add(key, SeverityError, nil, "neither fieldName nor coordinates are set")
			continue
		}

		_, hasFallback := fc.Coordinates()
		if name, ok := fc.FieldName(); ok {
			sev := SeverityError
			if hasFallback {
				sev = SeverityWarning
			}
			info, exists := analysis.Field(name)
			switch {
			case !analysis.HasInteractiveFields:
				add(key, sev, nil, "template has no interactive form, field %q cannot be filled", name)
			case !exists:
				add(key, sev, nil, "template has no field named %q", name)
			case !Compatible(fc.Type, info.Kind):
				add(key, sev, nil, "%s value cannot be written to %s field %q", fc.Type, info.Kind, name)
			case info.ReadOnly:
				add(key, SeverityWarning, nil, "field %q is read-only", name)
			}
			if exists && !hasFallback && info.Rect != nil && info.Page > 0 {
				s := suggestFromRect(*info.Rect, info.Page, fc.FontSize(info.FontSize))
				add(key, SeverityInfo, &s, "no fallback coordinates; widget of %q is at page %d", name, info.Page)
			}
		}

		if c, ok := fc.Coordinates(); ok {
			checkCoordinates(analysis, key, c, add)
		}

		if fc.Anchor != "" {
			a, ok := anchors[fc.Anchor]
			switch {
			case !ok:
				add(key, SeverityWarning, nil, "anchor label %q not found in template text", fc.Anchor)
			case !hasFallback:
				s := a.Suggest()
				add(key, SeverityInfo, &s, "label %q found on page %d", fc.Anchor, a.Page)
			}
		}
	}

	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Key < findings[j].Key })
	return findings
}

func checkCoordinates(analysis *Analysis, key string, c template.Coordinates,
	add func(string, Severity, *template.Coordinates, string, ...any)) {
	page, ok := analysis.Page(c.Page)
	if !ok {
		add(key, SeverityError, nil, "page %d is out of range (template has %d pages)", c.Page, analysis.PageCount)
		return
	}
	if c.X < 0 || c.X > page.Width || c.Y < 0 || c.Y > page.Height {
		add(key, SeverityWarning, nil, "coordinates (%.1f, %.1f) fall outside page %d (%.0fx%.0f)",
			c.X, c.Y, c.Page, page.Width, page.Height)
	} else if c.Width > 0 && c.X+c.Width > page.Width {
		add(key, SeverityWarning, nil, "width %.1f runs past the right edge of page %d", c.Width, c.Page)
	}
}

// suggestFromRect places a baseline inside a widget rectangle with a small
// inset, vertically centred for single-line boxes.
func suggestFromRect(r Rect, page int, fontSize float64) template.Coordinates {
	if fontSize <= 0 {
		fontSize = 10
	}
	const inset = 2.0
	y := r.LLY + (r.Height()-fontSize)/2 + fontSize*0.2
	if r.Height() > fontSize*3 {
		// Multiline boxes start at the top.
		y = r.URY - inset - fontSize
	}
	return template.Coordinates{
		Page:  page,
		X:     math.Round(r.LLX + inset),
		Y:     math.Round(y),
		Width: math.Round(r.Width() - 2*inset),
	}
}
