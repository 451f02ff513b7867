package filler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/layout"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/pdftest"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

type recordingWriter struct {
	calls [][]FormValue
	fail  map[string]bool
}

func (w *recordingWriter) WriteFields(_ *document.Document, values []FormValue) error {
	w.calls = append(w.calls, values)
	for _, v := range values {
		if w.fail[v.FieldName] {
			return errors.New("field rejected by writer")
		}
	}
	return nil
}

type recordingStamper struct {
	calls int
	runs  []TextRun
	err   error
}

func (s *recordingStamper) Stamp(_ *document.Document, runs []TextRun) error {
	s.calls++
	s.runs = append(s.runs, runs...)
	return s.err
}

// mincho stands in for an installed Japanese TrueType font
type mincho struct {
	*layout.EastAsianMeasurer
}

func (mincho) HasGlyph(rune) bool { return true }

func newTestFiller(w *recordingWriter, s *recordingStamper) *Filler {
	opts := Options{Measurer: mincho{layout.NewEastAsianMeasurer()}}
	return New(zap.NewNop(), opts, WithFormWriter(w), WithStamper(s))
}

func loadDoc(t *testing.T, data []byte) *document.Document {
	t.Helper()
	doc, err := document.Load(data, nil)
	require.NoError(t, err)
	return doc
}

func mustData(t *testing.T, raw map[string]any) *appdata.Data {
	t.Helper()
	d, err := appdata.FromMap(raw)
	require.NoError(t, err)
	return d
}

func interactive(ft template.FieldType, name string) template.FieldConfig {
	return template.FieldConfig{Type: ft, Target: template.InteractiveTarget{FieldName: name}}
}

func at(ft template.FieldType, page int, x, y, width float64) template.FieldConfig {
	return template.FieldConfig{Type: ft, Target: template.CoordinateTarget{Coordinates: template.Coordinates{Page: page, X: x, Y: y, Width: width}}}
}

func TestFill_InteractiveFormTemplate(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.FormTemplate())

	mapping := template.FieldMapping{
		"companyName":    interactive(template.FieldTypeText, "company_name"),
		"representative": interactive(template.FieldTypeText, "representative"),
		"prefecture":     interactive(template.FieldTypeSelect, "prefecture"),
		"agreement":      interactive(template.FieldTypeCheckbox, "agree"),
	}
	data := mustData(t, map[string]any{
		"basicInfo": map[string]any{
			"companyName":    "Acme Manufacturing",
			"representative": "Taro Yamada",
			"prefecture":     "Osaka",
		},
		"agreement": true,
	})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.True(t, res.Success, res.Errors)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"agreement", "companyName", "prefecture", "representative"}, res.Filled)
	require.Len(t, w.calls, 1, "all interactive values go out in one batch")
	assert.Len(t, w.calls[0], 4)
	assert.Zero(t, s.calls, "no text is drawn when every field has a form target")

	byName := map[string]FormValue{}
	for _, v := range w.calls[0] {
		byName[v.FieldName] = v
	}
	assert.Equal(t, "Acme Manufacturing", byName["company_name"].Text)
	assert.True(t, byName["agree"].Checked)
	assert.Equal(t, "Osaka", byName["prefecture"].Text)
}

func TestFill_CoordinateOnlyTemplate(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	plan := "当社は地域の製造業として長年にわたり精密部品を供給してきた。\n本事業では新たな設備を導入し、生産性を大幅に向上させる。"
	mapping := template.FieldMapping{
		"companyName":   at(template.FieldTypeText, 1, 150, 760, 300),
		"businessPlan":  at(template.FieldTypeMultiline, 2, 50, 700, 120),
		"employeeCount": at(template.FieldTypeNumber, 1, 150, 700, 0),
	}
	data := mustData(t, map[string]any{
		"basicInfo":    map[string]any{"companyName": "株式会社テスト", "employeeCount": 1250},
		"businessPlan": plan,
	})

	res := f.Fill(context.Background(), doc, mapping, data)

	require.True(t, res.Success, res.Errors)
	assert.Empty(t, w.calls, "coordinate fields never reach the form writer")
	assert.Equal(t, 1, s.calls, "all runs are stamped in one pass")
	assert.Equal(t, []string{"businessPlan", "companyName", "employeeCount"}, res.Filled)

	var planRuns []TextRun
	for _, run := range res.Runs {
		switch run.Key {
		case "businessPlan":
			planRuns = append(planRuns, run)
		case "employeeCount":
			assert.Equal(t, "1,250", run.Text)
		case "companyName":
			assert.Equal(t, "株式会社テスト", run.Text)
			assert.Equal(t, 1, run.Page)
		}
	}

	require.Greater(t, len(planRuns), strings.Count(plan, "\n")+1)
	measurer := layout.NewEastAsianMeasurer()
	lineHeight := DefaultFontSize * 1.5
	for i, run := range planRuns {
		assert.Equal(t, 2, run.Page)
		assert.InDelta(t, 50, run.X, 1e-9)
		assert.InDelta(t, 700-float64(i)*lineHeight, run.Y, 1e-9)
		assert.LessOrEqual(t, layout.TextWidth(measurer, run.Text, run.FontSize), 120.0)
	}
}

func TestFill_MissingInteractiveFieldFallsBackToCoordinates(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.FormTemplate())

	mapping := template.FieldMapping{
		"companyName": interactive(template.FieldTypeText, "company_name"),
		"address": {Type: template.FieldTypeText, Target: template.FallbackTarget{
			FieldName:   "address_field_renamed",
			Coordinates: template.Coordinates{Page: 1, X: 150, Y: 560},
		}},
	}
	data := mustData(t, map[string]any{"companyName": "Acme", "address": "1-2-3 Chiyoda, Tokyo"})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.True(t, res.Success)
	assert.Equal(t, []string{"address", "companyName"}, res.Filled)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "address")
	require.Len(t, res.Runs, 1)
	assert.Equal(t, "1-2-3 Chiyoda, Tokyo", res.Runs[0].Text)
	assert.InDelta(t, 560, res.Runs[0].Y, 1e-9)
}

func TestFill_MissingInteractiveFieldWithoutFallbackIsFieldError(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.FormTemplate())

	mapping := template.FieldMapping{
		"companyName": interactive(template.FieldTypeText, "company_name"),
		"address":     interactive(template.FieldTypeText, "address_field_renamed"),
	}
	data := mustData(t, map[string]any{"companyName": "Acme", "address": "Tokyo"})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.False(t, res.Success)
	assert.Equal(t, []string{"companyName"}, res.Filled)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "address")
	assert.True(t, res.HasFailure("address", pdferrors.ErrFieldNotFound))
	assert.Contains(t, res.Message, "completed with errors")
}

func TestFill_InteractiveTargetOnPlainTemplate(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{"companyName": interactive(template.FieldTypeText, "company_name")}
	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"companyName": "Acme"}))

	assert.False(t, res.Success)
	assert.True(t, res.HasFailure("companyName", pdferrors.ErrNoForm))
	assert.Empty(t, w.calls)
}

func TestFill_PageOutOfRangeDoesNotAbortOtherFields(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{
		"companyName": at(template.FieldTypeText, 1, 150, 760, 0),
		"attachment":  at(template.FieldTypeText, 5, 100, 100, 0),
	}
	data := mustData(t, map[string]any{"companyName": "Acme", "attachment": "see appendix"})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.False(t, res.Success)
	assert.Equal(t, []string{"companyName"}, res.Filled)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "attachment", res.Failures[0].FieldKey)
	assert.Equal(t, 5, res.Failures[0].Page)
	assert.ErrorIs(t, res.Failures[0], pdferrors.ErrPageOutOfRange)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, "companyName", res.Runs[0].Key)
}

func TestFill_EmptyValuesAreSkipped(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.FormTemplate())

	mapping := template.FieldMapping{
		"companyName":    interactive(template.FieldTypeText, "company_name"),
		"representative": interactive(template.FieldTypeText, "representative"),
		"notes":          at(template.FieldTypeMultiline, 2, 50, 300, 400),
		"agreement":      at(template.FieldTypeCheckbox, 3, 50, 700, 0),
	}
	data := mustData(t, map[string]any{
		"companyName":    "",
		"representative": nil,
		"agreement":      false,
	})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.True(t, res.Success)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Filled)
	assert.Equal(t, []string{"agreement", "companyName", "notes", "representative"}, res.Skipped)
	assert.Empty(t, w.calls)
	assert.Zero(t, s.calls)
}

func TestFill_NoStrategyIsFieldError(t *testing.T) {
	f := newTestFiller(&recordingWriter{}, &recordingStamper{})
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{"orphan": {Type: template.FieldTypeText}}
	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"orphan": "value"}))

	assert.False(t, res.Success)
	assert.True(t, res.HasFailure("orphan", pdferrors.ErrNoStrategy))
}

func TestFill_BatchFailureIsolatesBadField(t *testing.T) {
	w := &recordingWriter{fail: map[string]bool{"representative": true}}
	s := &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.FormTemplate())

	mapping := template.FieldMapping{
		"companyName":    interactive(template.FieldTypeText, "company_name"),
		"representative": interactive(template.FieldTypeText, "representative"),
	}
	data := mustData(t, map[string]any{"companyName": "Acme", "representative": "Taro"})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.False(t, res.Success)
	assert.Equal(t, []string{"companyName"}, res.Filled)
	assert.True(t, res.HasFailure("representative", nil))
	assert.Len(t, w.calls, 3, "one batch plus one retry per field")
}

func TestFill_WriterFailureFallsBackWhenCoordinatesExist(t *testing.T) {
	w := &recordingWriter{fail: map[string]bool{"representative": true}}
	s := &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.FormTemplate())

	mapping := template.FieldMapping{
		"representative": {Type: template.FieldTypeText, Target: template.FallbackTarget{
			FieldName:   "representative",
			Coordinates: template.Coordinates{Page: 1, X: 150, Y: 640},
		}},
	}
	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"representative": "Taro"}))

	assert.True(t, res.Success)
	assert.Equal(t, []string{"representative"}, res.Filled)
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, 1, s.calls)
}

func TestFill_TypeAndOptionChecks(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.FormTemplate())

	mapping := template.FieldMapping{
		"agreement":  interactive(template.FieldTypeCheckbox, "company_name"),
		"prefecture": interactive(template.FieldTypeSelect, "prefecture"),
		"consent":    interactive(template.FieldTypeCheckbox, "agree"),
	}
	data := mustData(t, map[string]any{"agreement": true, "prefecture": "Hokkaido", "consent": "perhaps"})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.False(t, res.Success)
	assert.True(t, res.HasFailure("agreement", pdferrors.ErrTypeMismatch))
	assert.True(t, res.HasFailure("prefecture", pdferrors.ErrUnknownOption))
	assert.True(t, res.HasFailure("consent", pdferrors.ErrTypeMismatch))
	assert.Empty(t, w.calls)
}

func TestFill_StamperFailureFailsDrawnFields(t *testing.T) {
	s := &recordingStamper{err: errors.New("font not installed")}
	f := newTestFiller(&recordingWriter{}, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{
		"companyName":    at(template.FieldTypeText, 1, 150, 760, 0),
		"representative": at(template.FieldTypeText, 1, 150, 640, 0),
	}
	data := mustData(t, map[string]any{"companyName": "Acme", "representative": "Taro"})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.False(t, res.Success)
	assert.Len(t, res.Errors, 2)
	assert.Empty(t, res.Filled)
	assert.Empty(t, res.Runs)
}

func TestFill_MultilineOverflowIsWarning(t *testing.T) {
	s := &recordingStamper{}
	f := newTestFiller(&recordingWriter{}, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{"plan": at(template.FieldTypeMultiline, 2, 50, 30, 100)}
	text := strings.Repeat("事業計画の内容を記載する。", 10)

	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"plan": text}))

	assert.True(t, res.Success)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "overflows")
	require.NotEmpty(t, res.Runs)
	for _, run := range res.Runs {
		assert.GreaterOrEqual(t, run.Y, 0.0)
	}
}

func TestFill_CheckboxDrawnAtCoordinates(t *testing.T) {
	s := &recordingStamper{}
	f := newTestFiller(&recordingWriter{}, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{
		"agreement": at(template.FieldTypeCheckbox, 3, 52, 702, 0),
		"smallBusiness": {
			Type:   template.FieldTypeCheckbox,
			Target: template.CoordinateTarget{Coordinates: template.Coordinates{Page: 3, X: 52, Y: 680}},
			Format: template.Format{TrueValue: "○"},
		},
	}
	data := mustData(t, map[string]any{"agreement": true, "smallBusiness": "yes"})

	res := f.Fill(context.Background(), doc, mapping, data)

	require.True(t, res.Success, res.Errors)
	require.Len(t, res.Runs, 2)
	texts := map[string]string{}
	for _, run := range res.Runs {
		texts[run.Key] = run.Text
	}
	assert.Equal(t, DefaultTrueValue, texts["agreement"])
	assert.Equal(t, "○", texts["smallBusiness"])
}

func TestFill_CancelledContext(t *testing.T) {
	s := &recordingStamper{}
	f := newTestFiller(&recordingWriter{}, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mapping := template.FieldMapping{"companyName": at(template.FieldTypeText, 1, 150, 760, 0)}
	res := f.Fill(ctx, doc, mapping, mustData(t, map[string]any{"companyName": "Acme"}))

	assert.False(t, res.Success)
	assert.True(t, res.HasFailure("companyName", context.Canceled))
	assert.Zero(t, s.calls)
}

func TestFill_IsDeterministic(t *testing.T) {
	mapping := template.FieldMapping{
		"companyName":  interactive(template.FieldTypeText, "company_name"),
		"prefecture":   interactive(template.FieldTypeSelect, "prefecture"),
		"businessPlan": at(template.FieldTypeMultiline, 2, 50, 700, 200),
		"ghost":        interactive(template.FieldTypeText, "ghost"),
	}
	raw := map[string]any{
		"companyName":  "Acme",
		"prefecture":   "Osaka",
		"businessPlan": "Install two machining centers.\nTrain the night shift on the new line.",
		"ghost":        "x",
	}

	var (
		results []*FillResult
		outputs [][]byte
	)
	for i := 0; i < 2; i++ {
		f := New(zap.NewNop(), Options{})
		doc := loadDoc(t, pdftest.FormTemplate())
		results = append(results, f.Fill(context.Background(), doc, mapping, mustData(t, raw)))
		require.Nil(t, doc.Finalize())
		out, err := doc.Serialize()
		require.NoError(t, err)
		outputs = append(outputs, out)
	}

	assert.Equal(t, results[0].Filled, results[1].Filled)
	assert.Equal(t, results[0].Errors, results[1].Errors)
	assert.Equal(t, results[0].Runs, results[1].Runs)
	assert.True(t, bytes.Equal(outputs[0], outputs[1]), "two fills of the same input differ")
}

func TestFill_WithPDFCPUStampsText(t *testing.T) {
	f := New(zap.NewNop(), Options{})
	doc := loadDoc(t, pdftest.PlainTemplate())
	before := len(doc.Bytes())

	mapping := template.FieldMapping{
		"companyName": at(template.FieldTypeText, 1, 150, 760, 0),
		"plan":        at(template.FieldTypeMultiline, 2, 50, 700, 300),
	}
	data := mustData(t, map[string]any{
		"companyName": "Acme Manufacturing",
		"plan":        "Install new machining centers.\nTrain staff.",
	})

	res := f.Fill(context.Background(), doc, mapping, data)

	require.True(t, res.Success, res.Errors)
	assert.Equal(t, 3, doc.PageCount())
	assert.NotEqual(t, before, len(doc.Bytes()))

	out, err := doc.Serialize()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF-"))
}

func TestFill_DefaultLineHeight(t *testing.T) {
	s := &recordingStamper{}
	f := New(zap.NewNop(), Options{LineHeight: 20}, WithFormWriter(&recordingWriter{}), WithStamper(s))
	doc := loadDoc(t, pdftest.PlainTemplate())

	own := at(template.FieldTypeMultiline, 2, 50, 700, 480)
	own.Format.LineHeight = 12
	mapping := template.FieldMapping{
		"plan":  at(template.FieldTypeMultiline, 2, 50, 700, 480),
		"notes": own,
	}
	data := mustData(t, map[string]any{"plan": "first\nsecond", "notes": "first\nsecond"})

	res := f.Fill(context.Background(), doc, mapping, data)
	require.True(t, res.Success, res.Errors)

	ys := map[string][]float64{}
	for _, run := range res.Runs {
		ys[run.Key] = append(ys[run.Key], run.Y)
	}
	assert.Equal(t, []float64{700, 680}, ys["plan"])
	assert.Equal(t, []float64{700, 688}, ys["notes"])
}

func TestFill_TextOutsideFontIsFieldError(t *testing.T) {
	s := &recordingStamper{}
	f := New(zap.NewNop(), Options{}, WithFormWriter(&recordingWriter{}), WithStamper(s))
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{
		"companyName": at(template.FieldTypeText, 1, 150, 760, 0),
		"city":        at(template.FieldTypeText, 1, 150, 700, 0),
	}
	data := mustData(t, map[string]any{"companyName": "株式会社テスト", "city": "Zürich"})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.False(t, res.Success)
	assert.True(t, res.HasFailure("companyName", pdferrors.ErrGlyphMissing))
	assert.Contains(t, res.Errors[0], "Helvetica")
	assert.Equal(t, []string{"city"}, res.Filled)
	require.Len(t, s.runs, 1)
	assert.Equal(t, "Zürich", s.runs[0].Text)
}

func TestFill_JapaneseWithRealStamperFails(t *testing.T) {
	f := New(zap.NewNop(), Options{})
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{"plan": at(template.FieldTypeMultiline, 2, 50, 700, 300)}
	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"plan": "新規設備の導入"}))

	assert.False(t, res.Success)
	assert.Empty(t, res.Filled)
	assert.True(t, res.HasFailure("plan", pdferrors.ErrGlyphMissing))
}

func TestFill_WrapsWithDrawnMetrics(t *testing.T) {
	s := &recordingStamper{}
	f := New(zap.NewNop(), Options{}, WithFormWriter(&recordingWriter{}), WithStamper(s))
	doc := loadDoc(t, pdftest.PlainTemplate())

	text := strings.Repeat("WMW", 20)
	mapping := template.FieldMapping{"plan": at(template.FieldTypeMultiline, 2, 50, 700, 100)}

	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"plan": text}))

	require.True(t, res.Success, res.Errors)
	require.Greater(t, len(res.Runs), 1)
	var joined strings.Builder
	for _, run := range res.Runs {
		assert.LessOrEqual(t, font.TextWidth(run.Text, "Helvetica", layout.Points(run.FontSize)), 100.0, "line %q overflows", run.Text)
		joined.WriteString(run.Text)
	}
	assert.Equal(t, text, joined.String())
}

func TestFill_SingleLineTruncatedToWidth(t *testing.T) {
	s := &recordingStamper{}
	f := New(zap.NewNop(), Options{}, WithFormWriter(&recordingWriter{}), WithStamper(s))
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{
		"code":  at(template.FieldTypeText, 1, 150, 760, 30),
		"short": at(template.FieldTypeText, 1, 150, 740, 30),
	}
	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"code": "WWWWW", "short": "ok"}))

	require.True(t, res.Success, res.Errors)
	texts := map[string]string{}
	for _, run := range res.Runs {
		texts[run.Key] = run.Text
	}
	assert.Equal(t, "WWW", texts["code"])
	assert.Equal(t, "ok", texts["short"])
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "code")
	assert.Contains(t, res.Warnings[0], "truncated")
}

func TestFill_FallbackOnPlainTemplateDrawsQuietly(t *testing.T) {
	w, s := &recordingWriter{}, &recordingStamper{}
	f := newTestFiller(w, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{
		"address": {Type: template.FieldTypeText, Target: template.FallbackTarget{
			FieldName:   "address",
			Coordinates: template.Coordinates{Page: 1, X: 150, Y: 560},
		}},
	}
	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"address": "1-2-3 Chiyoda"}))

	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, []string{"address"}, res.Filled)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, w.calls)
	require.Len(t, res.Runs, 1)
	assert.InDelta(t, 560, res.Runs[0].Y, 1e-9)
}

func TestFill_ObjectValueIsTypeMismatch(t *testing.T) {
	s := &recordingStamper{}
	f := newTestFiller(&recordingWriter{}, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{
		"basicInfo": at(template.FieldTypeText, 1, 150, 760, 0),
		"items":     at(template.FieldTypeMultiline, 2, 50, 700, 300),
		"name":      at(template.FieldTypeText, 1, 150, 740, 0),
	}
	data := mustData(t, map[string]any{
		"basicInfo": map[string]any{"companyName": "Acme"},
		"items":     []any{"lathe", map[string]any{"model": "X1"}},
		"name":      "Acme",
	})

	res := f.Fill(context.Background(), doc, mapping, data)

	assert.False(t, res.Success)
	assert.True(t, res.HasFailure("basicInfo", pdferrors.ErrTypeMismatch))
	assert.True(t, res.HasFailure("items", pdferrors.ErrTypeMismatch))
	assert.Equal(t, []string{"name"}, res.Filled)
	for _, run := range s.runs {
		assert.NotContains(t, run.Text, "keys}")
	}
}

func TestFill_LargeIntegerKeepsDigits(t *testing.T) {
	s := &recordingStamper{}
	f := newTestFiller(&recordingWriter{}, s)
	doc := loadDoc(t, pdftest.PlainTemplate())

	data, err := appdata.FromJSON([]byte(`{"corporateNumber": 9007199254740993}`))
	require.NoError(t, err)
	mapping := template.FieldMapping{"corporateNumber": at(template.FieldTypeNumber, 1, 150, 760, 0)}

	res := f.Fill(context.Background(), doc, mapping, data)

	require.True(t, res.Success, res.Errors)
	require.Len(t, res.Runs, 1)
	assert.Equal(t, "9,007,199,254,740,993", res.Runs[0].Text)
}

func TestFill_MessageSummarizesErrorsAndWarnings(t *testing.T) {
	f := newTestFiller(&recordingWriter{}, &recordingStamper{})
	doc := loadDoc(t, pdftest.PlainTemplate())

	mapping := template.FieldMapping{"companyName": at(template.FieldTypeText, 1, 150, 760, 0)}
	res := f.Fill(context.Background(), doc, mapping, mustData(t, map[string]any{"companyName": "Acme"}))

	assert.Equal(t, "completed: filled 1 field(s), skipped 0; No errors or warnings", res.Message)
}
