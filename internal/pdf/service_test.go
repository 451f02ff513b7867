package pdf

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/filler"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/pdftest"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
	"github.com/a3tai/subsidy-form-filler/internal/registry"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := zap.NewNop()
	svc, err := NewService(logger, 10*1024*1024, registry.NewMemoryStore(), registry.NewMemoryBlobs(), filler.New(logger, filler.Options{}))
	require.NoError(t, err)
	return svc
}

func coordinateMapping() template.FieldMapping {
	return template.FieldMapping{
		"companyName": {
			Type:   template.FieldTypeText,
			Target: template.CoordinateTarget{Coordinates: template.Coordinates{Page: 1, X: 150, Y: 760}},
			Anchor: "Company name",
		},
		"businessPlan": {
			Type:   template.FieldTypeMultiline,
			Target: template.CoordinateTarget{Coordinates: template.Coordinates{Page: 2, X: 50, Y: 700, Width: 480}},
		},
	}
}

func registerPlain(t *testing.T, svc *Service) *template.TemplateInfo {
	t.Helper()
	resp, err := svc.Register(context.Background(), RegisterRequest{
		Info:     template.TemplateInfo{SubsidyType: "monodukuri", Name: "Business plan", Mapping: coordinateMapping()},
		FileName: "plan.pdf",
		Data:     pdftest.PlainTemplate(),
	})
	require.NoError(t, err)
	return resp.Template
}

func mustData(t *testing.T, raw map[string]any) *appdata.Data {
	t.Helper()
	d, err := appdata.FromMap(raw)
	require.NoError(t, err)
	return d
}

func TestNewService_RequiresStores(t *testing.T) {
	_, err := NewService(nil, 1024, nil, registry.NewMemoryBlobs(), nil)
	assert.Error(t, err)

	svc, err := NewService(nil, 1024, registry.NewMemoryStore(), registry.NewMemoryBlobs(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), svc.GetMaxFileSize())
}

func TestService_RegisterPlainTemplate(t *testing.T) {
	svc := newTestService(t)

	info := registerPlain(t, svc)

	assert.NotEmpty(t, info.ID)
	assert.True(t, info.Active)
	assert.Equal(t, 3, info.PageCount)
	assert.False(t, info.HasFormFields)
	assert.Equal(t, "plan.pdf", info.FileName)

	stored, err := svc.Get(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.Mapping, stored.Mapping)
}

func TestService_RegisterFormTemplateReportsFindings(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Info: template.TemplateInfo{
			SubsidyType: "jizokuka",
			Name:        "Form 2",
			Mapping: template.FieldMapping{
				"companyName": {Type: template.FieldTypeText, Target: template.InteractiveTarget{FieldName: "company_name"}},
				"ghost":       {Type: template.FieldTypeText, Target: template.InteractiveTarget{FieldName: "ghost_field"}},
			},
		},
		FileName: "form2.pdf",
		Data:     pdftest.FormTemplate(),
	})
	require.NoError(t, err)

	assert.True(t, resp.Template.HasFormFields)
	var ghost bool
	for _, f := range resp.Findings {
		if f.Key == "ghost" {
			ghost = true
		}
	}
	assert.True(t, ghost, "missing field is reported")
}

func TestService_RegisterRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{FileName: "form.docx", Data: pdftest.PlainTemplate()})
	assert.Error(t, err)

	_, err = svc.Register(ctx, RegisterRequest{FileName: "form.pdf"})
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeTemplateLoad))

	_, err = svc.Register(ctx, RegisterRequest{
		FileName: "form.pdf",
		Data:     pdftest.PlainTemplate(),
		Info:     template.TemplateInfo{Mapping: template.FieldMapping{"orphan": {Type: template.FieldTypeText}}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, pdferrors.ErrNoStrategy)

	all, err := svc.List(ctx, registry.ListOptions{IncludeInactive: true})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_FillRegisteredTemplate(t *testing.T) {
	svc := newTestService(t)
	info := registerPlain(t, svc)

	resp, err := svc.Fill(context.Background(), FillRequest{
		TemplateID: info.ID,
		Data: mustData(t, map[string]any{
			"basicInfo":   map[string]any{"companyName": "Acme Manufacturing"},
			"projectInfo": map[string]any{"businessPlan": "Install two machining centers.\nTrain four operators."},
		}),
	})
	require.NoError(t, err)

	assert.True(t, resp.Result.Success, resp.Result.Errors)
	assert.Equal(t, []string{"businessPlan", "companyName"}, resp.Result.Filled)
	require.NotEmpty(t, resp.PDF)
	assert.True(t, strings.HasPrefix(string(resp.PDF), "%PDF-"))

	doc, err := document.Load(resp.PDF, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount())
}

func TestService_FillIsRepeatable(t *testing.T) {
	svc := newTestService(t)
	info := registerPlain(t, svc)
	data := mustData(t, map[string]any{"companyName": "Acme", "businessPlan": "Plan"})

	first, err := svc.Fill(context.Background(), FillRequest{TemplateID: info.ID, Data: data})
	require.NoError(t, err)
	second, err := svc.Fill(context.Background(), FillRequest{TemplateID: info.ID, Data: data})
	require.NoError(t, err)

	assert.Equal(t, first.Result.Filled, second.Result.Filled)
	assert.Equal(t, first.Result.Runs, second.Result.Runs)
	assert.Equal(t, first.Result.Success, second.Result.Success)
	assert.True(t, bytes.Equal(first.PDF, second.PDF), "filled PDFs differ between runs")
}

func TestService_FillReturnsPartialPDFOnFieldErrors(t *testing.T) {
	svc := newTestService(t)
	mapping := coordinateMapping()
	mapping["attachment"] = template.FieldConfig{
		Type:   template.FieldTypeText,
		Target: template.CoordinateTarget{Coordinates: template.Coordinates{Page: 9, X: 10, Y: 10}},
	}

	resp, err := svc.Fill(context.Background(), FillRequest{
		Template: pdftest.PlainTemplate(),
		Info:     &template.TemplateInfo{ID: "adhoc", Mapping: mapping},
		Data:     mustData(t, map[string]any{"companyName": "Acme", "attachment": "see appendix"}),
	})
	require.NoError(t, err)

	assert.False(t, resp.Result.Success)
	assert.Equal(t, []string{"companyName"}, resp.Result.Filled)
	assert.NotEmpty(t, resp.PDF)
}

func TestService_FillRefusesInactiveTemplate(t *testing.T) {
	svc := newTestService(t)
	info := registerPlain(t, svc)
	require.NoError(t, svc.Deactivate(context.Background(), info.ID))

	_, err := svc.Fill(context.Background(), FillRequest{TemplateID: info.ID, Data: appdata.New(nil)})
	assert.ErrorIs(t, err, pdferrors.ErrTemplateInactive)

	active, err := svc.List(context.Background(), registry.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestService_FillErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Fill(ctx, FillRequest{TemplateID: "unknown"})
	assert.ErrorIs(t, err, pdferrors.ErrNotFound)

	_, err = svc.Fill(ctx, FillRequest{})
	assert.Error(t, err)

	_, err = svc.Fill(ctx, FillRequest{
		Template: []byte("%PDF-1.7\nthis is not a pdf body"),
		Info:     &template.TemplateInfo{Mapping: coordinateMapping()},
		Data:     appdata.New(nil),
	})
	assert.True(t, pdferrors.IsType(err, pdferrors.ErrorTypeTemplateLoad), "got %v", err)
}

func TestService_AnalyzeRegisteredTemplate(t *testing.T) {
	svc := newTestService(t)
	info := registerPlain(t, svc)

	resp, err := svc.Analyze(context.Background(), AnalyzeRequest{
		TemplateID: info.ID,
		Labels:     []string{"Necessity of the project"},
	})
	require.NoError(t, err)

	assert.False(t, resp.Analysis.HasInteractiveFields)
	assert.Equal(t, 3, resp.Analysis.PageCount)
	assert.Contains(t, resp.Anchors, "Company name")
	assert.Contains(t, resp.Anchors, "Necessity of the project")
	assert.NotNil(t, resp.Findings)
}

func TestService_AnalyzeAdHocBytes(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Analyze(context.Background(), AnalyzeRequest{Template: pdftest.FormTemplate()})
	require.NoError(t, err)
	assert.True(t, resp.Analysis.HasInteractiveFields)
	assert.Contains(t, resp.Analysis.FieldNames, "company_name")

	_, err = svc.Analyze(context.Background(), AnalyzeRequest{})
	assert.Error(t, err)
}

func TestService_CoordinateFillDoesNotCreateForm(t *testing.T) {
	svc := newTestService(t)
	info := registerPlain(t, svc)

	resp, err := svc.Fill(context.Background(), FillRequest{
		TemplateID: info.ID,
		Data:       mustData(t, map[string]any{"companyName": "Acme", "businessPlan": "Buy a lathe"}),
	})
	require.NoError(t, err)
	require.True(t, resp.Result.Success, resp.Result.Errors)

	after, err := svc.Analyze(context.Background(), AnalyzeRequest{Template: resp.PDF})
	require.NoError(t, err)
	assert.False(t, after.Analysis.HasInteractiveFields)
	assert.Empty(t, after.Analysis.FieldNames)
	assert.Equal(t, 3, after.Analysis.PageCount)
}
