// Package filler writes application data into a loaded template, either
// through its interactive fields or by drawing text at fixed coordinates.
package filler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/analyzer"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/layout"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

const (
	DefaultFontName = "Helvetica"
	DefaultFontSize = 10.0
)

// Options configures coordinate drawing
type Options struct {
	FontName   string
	FontSize   float64
	FontColor  string
	// LineHeight is the line advance for multiline fields whose mapping
	// gives none; 0 means 1.5 × the font size.
	LineHeight float64
	// Measurer defaults to the pdfcpu metrics of FontName.
	Measurer layout.Font
}

func (o Options) withDefaults() Options {
	if o.FontName == "" {
		o.FontName = DefaultFontName
	}
	if o.FontSize <= 0 {
		o.FontSize = DefaultFontSize
	}
	if o.Measurer == nil {
		o.Measurer = layout.NewFontMeasurer(o.FontName)
	}
	return o
}

// FillResult reports the outcome of one fill operation
type FillResult struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Errors   []string  `json:"errors"`
	Warnings []string  `json:"warnings"`
	Filled   []string  `json:"filled"`
	Skipped  []string  `json:"skipped"`
	Runs     []TextRun `json:"runs,omitempty"`

	// Failures holds the classified errors behind Errors.
	Failures []*pdferrors.FillError `json:"-"`
}

// Filler dispatches mapped fields to the interactive or coordinate
// strategy.
type Filler struct {
	logger  *zap.Logger
	opts    Options
	writer  FormWriter
	stamper Stamper
}

// Option customises a Filler
type Option func(*Filler)

// WithFormWriter replaces the pdfcpu form writer
func WithFormWriter(w FormWriter) Option {
	return func(f *Filler) { f.writer = w }
}

// WithStamper replaces the pdfcpu text stamper
func WithStamper(s Stamper) Option {
	return func(f *Filler) { f.stamper = s }
}

// New creates a Filler
func New(logger *zap.Logger, opts Options, options ...Option) *Filler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	f := &Filler{
		logger:  logger,
		opts:    opts,
		writer:  PDFCPUFormWriter{},
		stamper: PDFCPUStamper{FontName: opts.FontName},
	}
	for _, o := range options {
		o(f)
	}
	return f
}

type pendingForm struct {
	key string
	fc  template.FieldConfig
	v   appdata.Value
	fv  FormValue
}

type pendingDraw struct {
	key string
	fc  template.FieldConfig
	v   appdata.Value
}

// run holds the state of one Fill call
type run struct {
	*Filler
	doc      *document.Document
	analysis *analyzer.Analysis
	errs     *pdferrors.Collection
	filled   []string
	skipped  []string
	pending  []pendingForm
	draws    []pendingDraw
}

// Fill writes data into doc according to mapping. Per-field failures are
// collected and never abort the remaining fields.
func (f *Filler) Fill(ctx context.Context, doc *document.Document, mapping template.FieldMapping, data *appdata.Data) *FillResult {
	r := &run{Filler: f, doc: doc, errs: pdferrors.NewCollection()}

	if doc.HasForm() {
		analysis, err := analyzer.Analyze(doc)
		if err != nil {
			r.errs.Warn("failed to read interactive fields: %v", err)
		} else {
			r.analysis = analysis
		}
	}

	for _, key := range mapping.Keys() {
		if err := ctx.Err(); err != nil {
			r.errs.Add(pdferrors.NewFieldFillError(key, err))
			return r.result(nil)
		}
		r.plan(key, mapping[key], data)
	}

	r.writeForms()
	runs := r.drawAll()
	return r.result(runs)
}

func (r *run) plan(key string, fc template.FieldConfig, data *appdata.Data) {
	v, ok := data.Resolve(key, fc.DataPath)
	if !ok || v.IsEmpty() {
		r.skipped = append(r.skipped, key)
		return
	}

	if holdsObject(v) {
		r.errs.Add(pdferrors.NewFieldFillError(key,
			fmt.Errorf("%w: %s value cannot be written as text", pdferrors.ErrTypeMismatch, v.Kind())))
		return
	}

	// A fallback on a template without a form is a plain coordinate field.
	if _, ok := fc.Target.(template.FallbackTarget); ok && !r.doc.HasForm() {
		r.draws = append(r.draws, pendingDraw{key: key, fc: fc, v: v})
		return
	}

	switch fc.Target.(type) {
	case template.InteractiveTarget, template.FallbackTarget:
		name, _ := fc.FieldName()
		fv, err := r.prepareForm(key, name, fc, v)
		if err != nil {
			r.interactiveFailed(key, fc, v, err)
			return
		}
		r.pending = append(r.pending, pendingForm{key: key, fc: fc, v: v, fv: fv})
	case template.CoordinateTarget:
		r.draws = append(r.draws, pendingDraw{key: key, fc: fc, v: v})
	default:
		r.errs.Add(pdferrors.NewFieldFillError(key, pdferrors.ErrNoStrategy))
	}
}

// prepareForm checks the target field and converts the value to its kind
func (r *run) prepareForm(key, name string, fc template.FieldConfig, v appdata.Value) (FormValue, error) {
	if r.analysis == nil || !r.analysis.HasInteractiveFields {
		return FormValue{}, pdferrors.ErrNoForm
	}
	info, ok := r.analysis.Field(name)
	if !ok {
		return FormValue{}, fmt.Errorf("%w: %q", pdferrors.ErrFieldNotFound, name)
	}
	if !analyzer.Compatible(fc.Type, info.Kind) {
		return FormValue{}, fmt.Errorf("%w: %s value for %s field %q", pdferrors.ErrTypeMismatch, fc.Type, info.Kind, name)
	}
	if info.ReadOnly {
		return FormValue{}, fmt.Errorf("field %q is read-only", name)
	}

	fv := FormValue{Key: key, FieldName: name, Kind: info.Kind}
	switch info.Kind {
	case analyzer.FieldKindCheckbox:
		b, ok := v.AsBool()
		if !ok {
			return FormValue{}, fmt.Errorf("%w: %q is not a checkbox state", pdferrors.ErrTypeMismatch, v.Text())
		}
		fv.Checked = b
	case analyzer.FieldKindComboBox, analyzer.FieldKindListBox, analyzer.FieldKindRadio:
		fv.Text = singleLine(formatText(fc, v))
		if !info.AcceptsOption(fv.Text) {
			return FormValue{}, fmt.Errorf("%w: %q for field %q", pdferrors.ErrUnknownOption, fv.Text, name)
		}
		fv.Values = []string{fv.Text}
	default:
		text := formatText(fc, v)
		if !info.Multiline {
			text = singleLine(text)
		}
		if info.MaxLength > 0 && len([]rune(text)) > info.MaxLength {
			text = string([]rune(text)[:info.MaxLength])
			r.errs.Warn("%s: value truncated to %d characters for field %q", key, info.MaxLength, name)
		}
		fv.Text = text
	}
	return fv, nil
}

// interactiveFailed falls back to coordinates when the target allows it
func (r *run) interactiveFailed(key string, fc template.FieldConfig, v appdata.Value, cause error) {
	if _, ok := fc.Coordinates(); ok {
		r.logger.Warn("interactive fill failed, drawing at coordinates",
			zap.String("key", key), zap.Error(cause))
		r.errs.Warn("%s: interactive fill failed (%v), drawn at coordinates", key, cause)
		r.draws = append(r.draws, pendingDraw{key: key, fc: fc, v: v})
		return
	}
	r.errs.Add(pdferrors.NewFieldFillError(key, cause))
}

// writeForms fills all accepted interactive values in one call. When the
// batch fails each value is retried alone so one bad field cannot sink
// the others.
func (r *run) writeForms() {
	if len(r.pending) == 0 {
		return
	}
	values := make([]FormValue, len(r.pending))
	for i, p := range r.pending {
		values[i] = p.fv
	}

	err := r.writer.WriteFields(r.doc, values)
	if err == nil {
		for _, p := range r.pending {
			r.filled = append(r.filled, p.key)
		}
		return
	}

	r.logger.Warn("batch form fill failed, retrying fields one by one",
		zap.Int("fields", len(values)), zap.Error(err))
	for _, p := range r.pending {
		if err := r.writer.WriteFields(r.doc, []FormValue{p.fv}); err != nil {
			r.interactiveFailed(p.key, p.fc, p.v, err)
			continue
		}
		r.filled = append(r.filled, p.key)
	}
}

// drawAll lays out every coordinate field and stamps them in one pass
func (r *run) drawAll() []TextRun {
	if len(r.draws) == 0 {
		return nil
	}

	var (
		runs  []TextRun
		drawn []string
	)
	for _, d := range r.draws {
		fieldRuns, err := r.layoutField(d)
		if err != nil {
			r.errs.Add(err)
			continue
		}
		if len(fieldRuns) == 0 {
			r.skipped = append(r.skipped, d.key)
			continue
		}
		for _, tr := range fieldRuns {
			r.logger.Debug("drawing line", zap.String("key", tr.Key), zap.Int("page", tr.Page),
				zap.Float64("x", tr.X), zap.Float64("y", tr.Y))
		}
		runs = append(runs, fieldRuns...)
		drawn = append(drawn, d.key)
	}
	if len(runs) == 0 {
		return nil
	}

	if err := r.stamper.Stamp(r.doc, runs); err != nil {
		r.logger.Error("failed to draw text", zap.Int("runs", len(runs)), zap.Error(err))
		for _, key := range drawn {
			r.errs.Add(pdferrors.NewFieldFillError(key, err))
		}
		return nil
	}
	r.filled = append(r.filled, drawn...)
	return runs
}

// layoutField turns one value into text runs at its coordinates
func (r *run) layoutField(d pendingDraw) ([]TextRun, *pdferrors.FillError) {
	c, _ := d.fc.Coordinates()
	if c.Page < 1 || c.Page > r.doc.PageCount() {
		return nil, pdferrors.NewFieldFillError(d.key,
			fmt.Errorf("%w: page %d of %d", pdferrors.ErrPageOutOfRange, c.Page, r.doc.PageCount())).WithPage(c.Page)
	}

	if d.fc.Type == template.FieldTypeCheckbox {
		if _, ok := d.v.AsBool(); !ok {
			return nil, pdferrors.NewFieldFillError(d.key,
				fmt.Errorf("%w: %q is not a checkbox state", pdferrors.ErrTypeMismatch, d.v.Text()))
		}
	}

	text := formatText(d.fc, d.v)
	if text == "" {
		return nil, nil
	}
	if missing := layout.MissingGlyphs(r.opts.Measurer, text); len(missing) > 0 {
		return nil, pdferrors.NewFieldFillError(d.key,
			fmt.Errorf("%w: font %s cannot draw %q", pdferrors.ErrGlyphMissing, r.opts.FontName, string(missing))).WithPage(c.Page)
	}

	size := d.fc.FontSize(r.opts.FontSize)
	color := d.fc.Format.FontColor
	if color == "" {
		color = r.opts.FontColor
	}
	newRun := func(line string, y float64) TextRun {
		return TextRun{
			Key: d.key, Page: c.Page, X: c.X, Y: y, Width: c.Width,
			Text: line, FontSize: size, Color: color,
		}
	}

	if d.fc.Type != template.FieldTypeMultiline {
		line, cut := layout.Truncate(r.opts.Measurer, singleLine(text), c.Width, size)
		if cut {
			r.errs.Warn("%s: value truncated to fit %gpt on page %d", d.key, c.Width, c.Page)
		}
		return []TextRun{newRun(line, c.Y)}, nil
	}

	lines := layout.Wrap(r.opts.Measurer, text, c.Width, size)
	lineHeight := d.fc.LineHeight(r.opts.FontSize)
	if c.LineHeight <= 0 && d.fc.Format.LineHeight <= 0 && r.opts.LineHeight > 0 {
		lineHeight = r.opts.LineHeight
	}
	var runs []TextRun
	for i, line := range lines {
		y := c.Y - float64(i)*lineHeight
		if y < 0 {
			r.errs.Warn("%s: text overflows page %d, %d of %d lines dropped", d.key, c.Page, len(lines)-i, len(lines))
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		runs = append(runs, newRun(line, y))
	}
	return runs, nil
}

func (r *run) result(runs []TextRun) *FillResult {
	sort.Strings(r.filled)
	sort.Strings(r.skipped)
	res := &FillResult{
		Success:  !r.errs.HasErrors(),
		Errors:   r.errs.ErrorStrings(),
		Warnings: r.errs.Warnings,
		Filled:   nonNil(r.filled),
		Skipped:  nonNil(r.skipped),
		Runs:     runs,
		Failures: r.errs.Errors,
	}
	res.Message = fmt.Sprintf("filled %d field(s), skipped %d; %s", len(res.Filled), len(res.Skipped), r.errs.Summary())
	if res.Success {
		res.Message = "completed: " + res.Message
	} else {
		res.Message = "completed with errors: " + res.Message
	}
	return res
}

// holdsObject reports whether v is, or contains, a nested object
func holdsObject(v appdata.Value) bool {
	if v.Kind() == appdata.KindMap {
		return true
	}
	items, _ := v.AsList()
	for _, item := range items {
		if holdsObject(item) {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// HasFailure reports whether key failed with an error matching target
func (res *FillResult) HasFailure(key string, target error) bool {
	for _, f := range res.Failures {
		if f.FieldKey == key && (target == nil || errors.Is(f, target)) {
			return true
		}
	}
	return false
}
