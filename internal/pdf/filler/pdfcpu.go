package filler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/analyzer"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/layout"
)

// FormValue is one value destined for an interactive field
type FormValue struct {
	Key       string
	FieldName string
	Kind      analyzer.FieldKind
	Text      string
	Checked   bool
	Values    []string
}

// FormWriter writes values into the AcroForm of a document
type FormWriter interface {
	WriteFields(doc *document.Document, values []FormValue) error
}

// TextRun is one line of text drawn at absolute coordinates
type TextRun struct {
	Key      string  `json:"key"`
	Page     int     `json:"page"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Text     string  `json:"text"`
	FontSize float64 `json:"fontSize"`
	Color    string  `json:"color,omitempty"`
}

// Stamper draws text runs onto the pages of a document
type Stamper interface {
	Stamp(doc *document.Document, runs []TextRun) error
}

// The JSON layout pdfcpu reads in api.FillForm.
type (
	formFile struct {
		Forms []formData `json:"forms"`
	}
	formData struct {
		TextFields  []textValue  `json:"textfield,omitempty"`
		CheckBoxes  []checkValue `json:"checkbox,omitempty"`
		ComboBoxes  []textValue  `json:"combobox,omitempty"`
		ListBoxes   []listValue  `json:"listbox,omitempty"`
		RadioGroups []textValue  `json:"radiobuttongroup,omitempty"`
	}
	textValue struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	checkValue struct {
		Name  string `json:"name"`
		Value bool   `json:"value"`
	}
	listValue struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	}
)

// PDFCPUFormWriter fills AcroForm fields with pdfcpu
type PDFCPUFormWriter struct{}

// WriteFields implements FormWriter
func (PDFCPUFormWriter) WriteFields(doc *document.Document, values []FormValue) error {
	if len(values) == 0 {
		return nil
	}
	payload, err := json.Marshal(buildFormFile(values))
	if err != nil {
		return fmt.Errorf("failed to encode form values: %w", err)
	}
	return doc.Transform(func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pdfcpu form fill panicked: %v", r)
			}
		}()
		return api.FillForm(rs, bytes.NewReader(payload), w, conf)
	})
}

func buildFormFile(values []FormValue) formFile {
	var form formData
	for _, v := range values {
		switch v.Kind {
		case analyzer.FieldKindCheckbox:
			form.CheckBoxes = append(form.CheckBoxes, checkValue{Name: v.FieldName, Value: v.Checked})
		case analyzer.FieldKindComboBox:
			form.ComboBoxes = append(form.ComboBoxes, textValue{Name: v.FieldName, Value: v.Text})
		case analyzer.FieldKindListBox:
			vals := v.Values
			if len(vals) == 0 {
				vals = []string{v.Text}
			}
			form.ListBoxes = append(form.ListBoxes, listValue{Name: v.FieldName, Values: vals})
		case analyzer.FieldKindRadio:
			form.RadioGroups = append(form.RadioGroups, textValue{Name: v.FieldName, Value: v.Text})
		default:
			form.TextFields = append(form.TextFields, textValue{Name: v.FieldName, Value: v.Text})
		}
	}
	return formFile{Forms: []formData{form}}
}

// PDFCPUStamper draws text runs as pdfcpu text stamps in a single write
type PDFCPUStamper struct {
	FontName string
}

// Stamp implements Stamper
func (s PDFCPUStamper) Stamp(doc *document.Document, runs []TextRun) error {
	if len(runs) == 0 {
		return nil
	}
	byPage := make(map[int][]*model.Watermark)
	for _, run := range runs {
		wm, err := api.TextWatermark(run.Text, s.description(run), true, false, types.POINTS)
		if err != nil {
			return fmt.Errorf("failed to prepare text for %q on page %d: %w", run.Key, run.Page, err)
		}
		byPage[run.Page] = append(byPage[run.Page], wm)
	}
	return doc.Transform(func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pdfcpu stamping panicked: %v", r)
			}
		}()
		conf.Cmd = model.ADDWATERMARKS
		ctx, err := api.ReadValidateAndOptimize(rs, conf)
		if err != nil {
			return err
		}
		// one page at a time, in page order, so object numbers do not
		// depend on map iteration
		pages := make([]int, 0, len(byPage))
		for p := range byPage {
			pages = append(pages, p)
		}
		sort.Ints(pages)
		for _, p := range pages {
			if err := pdfcpu.AddWatermarksSliceMap(ctx, map[int][]*model.Watermark{p: byPage[p]}); err != nil {
				return err
			}
		}
		return api.Write(ctx, w, conf)
	})
}

func (s PDFCPUStamper) description(run TextRun) string {
	color := run.Color
	if color == "" {
		color = "#000000"
	}
	return fmt.Sprintf("fontname:%s, points:%d, position:bl, offset:%.2f %.2f, scalefactor:1 abs, rotation:0, fillcolor:%s, opacity:1",
		s.FontName, layout.Points(run.FontSize), run.X, run.Y, color)
}
