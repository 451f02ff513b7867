package pdf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/analyzer"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/filler"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
	"github.com/a3tai/subsidy-form-filler/internal/registry"
)

// Service orchestrates the registry, loader, filler and analyzer
type Service struct {
	logger      *zap.Logger
	maxFileSize int64
	store       registry.Store
	blobs       registry.Blobs
	filler      *filler.Filler
	validator   *Validator
}

// NewService creates a new PDF service with all components
func NewService(logger *zap.Logger, maxFileSize int64, store registry.Store, blobs registry.Blobs, f *filler.Filler) (*Service, error) {
	if store == nil || blobs == nil {
		return nil, fmt.Errorf("template store and blob store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if f == nil {
		f = filler.New(logger, filler.Options{})
	}
	return &Service{
		logger:      logger,
		maxFileSize: maxFileSize,
		store:       store,
		blobs:       blobs,
		filler:      f,
		validator:   NewValidator(maxFileSize),
	}, nil
}

// GetMaxFileSize returns the maximum template size accepted
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// Fill loads the template, fills it and serializes the result. Load and
// serialization failures are returned as errors; field failures are
// reported in the result alongside the partially filled PDF.
func (s *Service) Fill(ctx context.Context, req FillRequest) (*FillResponse, error) {
	info, data, err := s.resolveFill(ctx, req)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(zap.String("template", info.ID), zap.String("subsidy_type", info.SubsidyType))

	doc, err := document.Load(data, info)
	if err != nil {
		log.Error("failed to load template", zap.Error(err))
		return nil, err
	}

	result := s.filler.Fill(ctx, doc, info.Mapping, req.Data)

	if warning := doc.Finalize(); warning != nil {
		log.Warn("failed to lock form fields", zap.Error(warning.Cause))
		result.Warnings = append(result.Warnings, warning.Message)
	}

	out, err := doc.Serialize()
	if err != nil {
		log.Error("failed to serialize filled template", zap.Error(err))
		return nil, err
	}

	log.Info("template filled",
		zap.Bool("success", result.Success),
		zap.Int("filled", len(result.Filled)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)))

	return &FillResponse{Template: info, Result: result, PDF: out}, nil
}

func (s *Service) resolveFill(ctx context.Context, req FillRequest) (*template.TemplateInfo, []byte, error) {
	if req.TemplateID == "" {
		if len(req.Template) == 0 || req.Info == nil {
			return nil, nil, fmt.Errorf("either a template id or template bytes with info are required")
		}
		return req.Info, req.Template, nil
	}

	info, err := s.store.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	if !info.Active {
		return nil, nil, fmt.Errorf("template %q: %w", info.ID, pdferrors.ErrTemplateInactive)
	}
	data, err := s.blobs.Load(ctx, info.ID)
	if err != nil {
		return nil, nil, err
	}
	return info, data, nil
}

// Analyze reports the structure of a template and checks a mapping
// against it. For registered templates the stored mapping is used unless
// the request carries one.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	data := req.Template
	mapping := req.Mapping
	var info *template.TemplateInfo
	if req.TemplateID != "" {
		var err error
		if info, err = s.store.Get(ctx, req.TemplateID); err != nil {
			return nil, err
		}
		if data, err = s.blobs.Load(ctx, info.ID); err != nil {
			return nil, err
		}
		if mapping == nil {
			mapping = info.Mapping
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("either a template id or template bytes are required")
	}

	doc, err := document.Load(data, info)
	if err != nil {
		return nil, err
	}
	return s.analyze(doc, mapping, req.Labels)
}

func (s *Service) analyze(doc *document.Document, mapping template.FieldMapping, labels []string) (*AnalyzeResponse, error) {
	analysis, err := analyzer.Analyze(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze template: %w", err)
	}

	labels = append(append([]string(nil), labels...), anchorLabels(mapping)...)
	anchors, err := analyzer.Anchors(doc, labels)
	if err != nil {
		s.logger.Warn("failed to locate anchor labels", zap.Error(err))
	}

	return &AnalyzeResponse{
		Analysis: analysis,
		Anchors:  anchors,
		Findings: nonNilFindings(analyzer.CheckMapping(analysis, mapping, anchors)),
	}, nil
}

func anchorLabels(mapping template.FieldMapping) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, key := range mapping.Keys() {
		if a := mapping[key].Anchor; a != "" && !seen[a] {
			seen[a] = true
			labels = append(labels, a)
		}
	}
	return labels
}

func nonNilFindings(f []analyzer.Finding) []analyzer.Finding {
	if f == nil {
		return []analyzer.Finding{}
	}
	return f
}

// Register validates and analyzes an uploaded template, then stores its
// bytes and metadata. Structurally invalid mappings are rejected; findings
// against the template are returned but do not block registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := s.validator.ValidateUpload(req.FileName, req.Data); err != nil {
		return nil, pdferrors.NewTemplateLoadError(err)
	}

	info := req.Info
	if info.Mapping == nil {
		info.Mapping = template.FieldMapping{}
	}
	if errs := info.Mapping.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	doc, err := document.Load(req.Data, &info)
	if err != nil {
		return nil, err
	}
	analyzed, err := s.analyze(doc, info.Mapping, nil)
	if err != nil {
		return nil, err
	}

	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.FileName == "" {
		info.FileName = filepath.Base(req.FileName)
	}
	info.Active = true
	info.PageCount = analyzed.Analysis.PageCount
	info.HasFormFields = analyzed.Analysis.HasInteractiveFields

	if err := s.blobs.Save(ctx, info.ID, req.Data); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, &info); err != nil {
		return nil, err
	}

	s.logger.Info("template registered",
		zap.String("template", info.ID),
		zap.String("subsidy_type", info.SubsidyType),
		zap.Int("pages", info.PageCount),
		zap.Bool("form_fields", info.HasFormFields),
		zap.Int("findings", len(analyzed.Findings)))

	return &RegisterResponse{Template: &info, Findings: analyzed.Findings}, nil
}

// Deactivate hides a template from listings and fills without deleting it
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("template deactivated", zap.String("template", id))
	return nil
}

// List returns the registered templates
func (s *Service) List(ctx context.Context, opts registry.ListOptions) ([]*template.TemplateInfo, error) {
	return s.store.List(ctx, opts)
}

// Get returns one registered template
func (s *Service) Get(ctx context.Context, id string) (*template.TemplateInfo, error) {
	return s.store.Get(ctx, id)
}
