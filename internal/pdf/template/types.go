package template

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FieldType is the logical kind of a mapped field
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeMultiline FieldType = "multiline"
	FieldTypeNumber    FieldType = "number"
	FieldTypeDate      FieldType = "date"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeSelect    FieldType = "select"
)

// ParseFieldType validates a wire value
func ParseFieldType(s string) (FieldType, error) {
	switch ft := FieldType(strings.ToLower(strings.TrimSpace(s))); ft {
	case FieldTypeText, FieldTypeMultiline, FieldTypeNumber, FieldTypeDate, FieldTypeCheckbox, FieldTypeSelect:
		return ft, nil
	case "":
		return FieldTypeText, nil
	default:
		return "", fmt.Errorf("unknown field type %q", s)
	}
}

// IsTextual reports whether the value is rendered as a string
func (ft FieldType) IsTextual() bool {
	switch ft {
	case FieldTypeText, FieldTypeMultiline, FieldTypeNumber, FieldTypeDate:
		return true
	}
	return false
}

// Coordinates locates a field on a page in PDF user space (origin bottom
// left). Page is 1-based.
type Coordinates struct {
	Page       int     `json:"page" yaml:"page"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Width      float64 `json:"width,omitempty" yaml:"width,omitempty"`
	LineHeight float64 `json:"lineHeight,omitempty" yaml:"lineHeight,omitempty"`
}

// Format carries rendering hints for coordinate drawing
type Format struct {
	FontSize   float64 `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	FontColor  string  `json:"fontColor,omitempty" yaml:"fontColor,omitempty"`
	LineHeight float64 `json:"lineHeight,omitempty" yaml:"lineHeight,omitempty"`
	DateLayout string  `json:"dateLayout,omitempty" yaml:"dateLayout,omitempty"`
	TrueValue  string  `json:"trueValue,omitempty" yaml:"trueValue,omitempty"`
}

// Strategy names the filling strategies a target allows
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyInteractive
	StrategyCoordinates
	StrategyInteractiveWithFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyInteractive:
		return "interactive"
	case StrategyCoordinates:
		return "coordinates"
	case StrategyInteractiveWithFallback:
		return "interactive+coordinates"
	default:
		return "none"
	}
}

// Target is where a field value goes. It is one of InteractiveTarget,
// CoordinateTarget or FallbackTarget; a nil Target cannot be filled.
type Target interface {
	Strategy() Strategy
}

// InteractiveTarget fills a named AcroForm field only
type InteractiveTarget struct {
	FieldName string
}

// CoordinateTarget draws text at fixed coordinates only
type CoordinateTarget struct {
	Coordinates Coordinates
}

// FallbackTarget tries the AcroForm field first and draws at the
// coordinates when that fails
type FallbackTarget struct {
	FieldName   string
	Coordinates Coordinates
}

func (InteractiveTarget) Strategy() Strategy { return StrategyInteractive }
func (CoordinateTarget) Strategy() Strategy  { return StrategyCoordinates }
func (FallbackTarget) Strategy() Strategy    { return StrategyInteractiveWithFallback }

// NewTarget builds the target for the given optional parts
func NewTarget(fieldName string, coords *Coordinates) Target {
	fieldName = strings.TrimSpace(fieldName)
	switch {
	case fieldName != "" && coords != nil:
		return FallbackTarget{FieldName: fieldName, Coordinates: *coords}
	case fieldName != "":
		return InteractiveTarget{FieldName: fieldName}
	case coords != nil:
		return CoordinateTarget{Coordinates: *coords}
	default:
		return nil
	}
}

// FieldConfig describes how to fill one logical field
type FieldConfig struct {
	Type FieldType
	// DataPath overrides the dot path used to look the value up.
	DataPath string
	Target   Target
	Format   Format
	// Anchor is label text printed next to the field on the template,
	// used to suggest coordinates.
	Anchor string
}

// StrategyOf returns the strategy of the config's target
func (fc FieldConfig) StrategyOf() Strategy {
	if fc.Target == nil {
		return StrategyNone
	}
	return fc.Target.Strategy()
}

// FieldName returns the interactive field name, if any
func (fc FieldConfig) FieldName() (string, bool) {
	switch t := fc.Target.(type) {
	case InteractiveTarget:
		return t.FieldName, true
	case FallbackTarget:
		return t.FieldName, true
	}
	return "", false
}

// Coordinates returns the drawing coordinates, if any
func (fc FieldConfig) Coordinates() (Coordinates, bool) {
	switch t := fc.Target.(type) {
	case CoordinateTarget:
		return t.Coordinates, true
	case FallbackTarget:
		return t.Coordinates, true
	}
	return Coordinates{}, false
}

// LineHeight resolves the line advance for multiline drawing
func (fc FieldConfig) LineHeight(defaultFontSize float64) float64 {
	if c, ok := fc.Coordinates(); ok && c.LineHeight > 0 {
		return c.LineHeight
	}
	if fc.Format.LineHeight > 0 {
		return fc.Format.LineHeight
	}
	return fc.FontSize(defaultFontSize) * 1.5
}

// FontSize resolves the font size for coordinate drawing
func (fc FieldConfig) FontSize(defaultFontSize float64) float64 {
	if fc.Format.FontSize > 0 {
		return fc.Format.FontSize
	}
	return defaultFontSize
}

// FieldMapping associates logical data keys with their configs
type FieldMapping map[string]FieldConfig

// Keys returns the mapping keys in sorted order
func (m FieldMapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InteractiveFieldNames returns the distinct AcroForm names referenced
func (m FieldMapping) InteractiveFieldNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, k := range m.Keys() {
		if name, ok := m[k].FieldName(); ok && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// TemplateInfo describes one registered government form template
type TemplateInfo struct {
	ID            string       `json:"id" yaml:"id"`
	SubsidyType   string       `json:"subsidyType" yaml:"subsidyType"`
	Name          string       `json:"name" yaml:"name"`
	FileName      string       `json:"fileName" yaml:"fileName"`
	UploadedAt    time.Time    `json:"uploadedAt" yaml:"uploadedAt"`
	Active        bool         `json:"active" yaml:"active"`
	PageCount     int          `json:"pageCount" yaml:"pageCount"`
	HasFormFields bool         `json:"hasFormFields" yaml:"hasFormFields"`
	IsOfficial    bool         `json:"isOfficial" yaml:"isOfficial"`
	Mapping       FieldMapping `json:"fieldMapping" yaml:"fieldMapping"`
}

// String returns a short identification of the template
func (t *TemplateInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", t.Name, t.ID, t.SubsidyType)
}
