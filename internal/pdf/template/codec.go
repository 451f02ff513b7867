package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
)

// fieldConfigWire is the declarative form of a FieldConfig as written in
// mapping files and stored in the registry.
type fieldConfigWire struct {
	Type        string       `json:"type" yaml:"type"`
	FieldName   string       `json:"fieldName,omitempty" yaml:"fieldName,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty" yaml:"coordinates,omitempty"`
	Format      *Format      `json:"format,omitempty" yaml:"format,omitempty"`
	DataPath    string       `json:"dataPath,omitempty" yaml:"dataPath,omitempty"`
	Anchor      string       `json:"anchor,omitempty" yaml:"anchor,omitempty"`
}

func (w fieldConfigWire) toConfig() (FieldConfig, error) {
	ft, err := ParseFieldType(w.Type)
	if err != nil {
		return FieldConfig{}, err
	}
	fc := FieldConfig{
		Type:     ft,
		DataPath: w.DataPath,
		Target:   NewTarget(w.FieldName, w.Coordinates),
		Anchor:   w.Anchor,
	}
	if w.Format != nil {
		fc.Format = *w.Format
	}
	return fc, nil
}

func (fc FieldConfig) toWire() fieldConfigWire {
	w := fieldConfigWire{
		Type:     string(fc.Type),
		DataPath: fc.DataPath,
		Anchor:   fc.Anchor,
	}
	if name, ok := fc.FieldName(); ok {
		w.FieldName = name
	}
	if c, ok := fc.Coordinates(); ok {
		w.Coordinates = &c
	}
	if fc.Format != (Format{}) {
		f := fc.Format
		w.Format = &f
	}
	return w
}

// MarshalJSON implements json.Marshaler
func (fc FieldConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(fc.toWire())
}

// UnmarshalJSON implements json.Unmarshaler
func (fc *FieldConfig) UnmarshalJSON(data []byte) error {
	var w fieldConfigWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := w.toConfig()
	if err != nil {
		return err
	}
	*fc = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (fc FieldConfig) MarshalYAML() (interface{}, error) {
	return fc.toWire(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (fc *FieldConfig) UnmarshalYAML(node *yaml.Node) error {
	var w fieldConfigWire
	if err := node.Decode(&w); err != nil {
		return err
	}
	parsed, err := w.toConfig()
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*fc = parsed
	return nil
}

// Validate checks every entry and returns one error per unusable key, in
// key order. An empty result means every field has at least one strategy.
func (m FieldMapping) Validate() []error {
	var errs []error
	for _, key := range m.Keys() {
		if err := m[key].validate(); err != nil {
			errs = append(errs, pdferrors.NewInvalidMappingError(key, err))
		}
	}
	return errs
}

func (fc FieldConfig) validate() error {
	if fc.Target == nil {
		return pdferrors.ErrNoStrategy
	}
	if c, ok := fc.Coordinates(); ok {
		if c.Page < 1 {
			return fmt.Errorf("%w: page %d (pages start at 1)", pdferrors.ErrPageOutOfRange, c.Page)
		}
		if fc.Type == FieldTypeMultiline && c.Width <= 0 {
			return fmt.Errorf("multiline field needs a positive width, got %v", c.Width)
		}
		if c.Width < 0 || c.LineHeight < 0 {
			return fmt.Errorf("negative width or line height")
		}
	}
	if fc.Format.FontSize < 0 {
		return fmt.Errorf("negative font size %v", fc.Format.FontSize)
	}
	return nil
}

// ParseMapping decodes a YAML or JSON mapping document
func ParseMapping(data []byte) (FieldMapping, error) {
	var m FieldMapping
	if looksLikeJSON(data) {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse field mapping: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse field mapping: %w", err)
	}
	if m == nil {
		m = FieldMapping{}
	}
	return m, nil
}

// LoadMappingFile reads a YAML or JSON mapping document from disk
func LoadMappingFile(path string) (FieldMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return ParseMapping(data)
}

// ParseTemplates decodes a YAML or JSON document holding a "templates" list
func ParseTemplates(data []byte) ([]TemplateInfo, error) {
	var doc struct {
		Templates []TemplateInfo `json:"templates" yaml:"templates"`
	}
	var err error
	if looksLikeJSON(data) {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return doc.Templates, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}
