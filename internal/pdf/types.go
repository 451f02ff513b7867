package pdf

import (
	"github.com/a3tai/subsidy-form-filler/internal/pdf/analyzer"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/filler"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// Request Types

// FillRequest asks for a template to be filled with application data.
// Either TemplateID names a registered template, or Template carries the
// bytes of an unregistered one together with Info (for its mapping).
type FillRequest struct {
	TemplateID string
	Template   []byte
	Info       *template.TemplateInfo
	Data       *appdata.Data
}

// AnalyzeRequest asks for the structure of a registered or ad hoc template.
// Labels are looked up in the page text in addition to the anchors of the
// template's mapping.
type AnalyzeRequest struct {
	TemplateID string
	Template   []byte
	Mapping    template.FieldMapping
	Labels     []string
}

// RegisterRequest adds a template to the registry
type RegisterRequest struct {
	Info     template.TemplateInfo
	FileName string
	Data     []byte
}

// Response Types

// FillResponse carries the filled document. PDF is set whenever the
// template could be loaded and written, including when Result reports
// field errors.
type FillResponse struct {
	Template *template.TemplateInfo `json:"template"`
	Result   *filler.FillResult     `json:"result"`
	PDF      []byte                 `json:"-"`
}

// AnalyzeResponse describes a template and how a mapping fits it
type AnalyzeResponse struct {
	Analysis *analyzer.Analysis         `json:"analysis"`
	Anchors  map[string]analyzer.Anchor `json:"anchors,omitempty"`
	Findings []analyzer.Finding         `json:"findings"`
}

// RegisterResponse returns the stored entry and what analysis found
type RegisterResponse struct {
	Template *template.TemplateInfo `json:"template"`
	Findings []analyzer.Finding     `json:"findings"`
}
