package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/a3tai/subsidy-form-filler/internal/config"
	"github.com/a3tai/subsidy-form-filler/internal/pdf"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/analyzer"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
	"github.com/a3tai/subsidy-form-filler/internal/registry"
)

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	files      *registry.FileBlobs
	logger     *zap.Logger
	mcpServer  *server.MCPServer
}

// NewServer creates a new MCP server instance. Paths given to the tools
// are resolved inside the directory of files.
func NewServer(cfg *config.Config, pdfService *pdf.Service, files *registry.FileBlobs, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}
	if files == nil {
		return nil, fmt.Errorf("file store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // We don't support dynamic tool capabilities
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		files:      files,
		logger:     logger,
		mcpServer:  mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	templateListTool := mcp.NewTool(
		"template_list",
		mcp.WithDescription("List registered subsidy form templates"),
		mcp.WithBoolean("all",
			mcp.Description("Include deactivated templates"),
		),
		mcp.WithString("subsidyType",
			mcp.Description("Only list templates of this subsidy type"),
		),
	)
	s.mcpServer.AddTool(templateListTool, s.handleTemplateList)

	templateAnalyzeTool := mcp.NewTool(
		"template_analyze",
		mcp.WithDescription("Report the interactive fields and pages of a template and check its field mapping. "+
			"Labels are located in the page text to suggest drawing coordinates."),
		mcp.WithString("templateId",
			mcp.Description("ID of a registered template"),
		),
		mcp.WithString("path",
			mcp.Description("PDF file inside the template directory, for templates not yet registered"),
		),
		mcp.WithString("mapping",
			mcp.Description("Field mapping (YAML or JSON) to check instead of the stored one"),
		),
		mcp.WithArray("labels",
			mcp.Description("Label texts to locate on the pages"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
	s.mcpServer.AddTool(templateAnalyzeTool, s.handleTemplateAnalyze)

	templateRegisterTool := mcp.NewTool(
		"template_register",
		mcp.WithDescription("Register a PDF inside the template directory as a fillable template"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF file inside the template directory"),
		),
		mcp.WithString("subsidyType",
			mcp.Required(),
			mcp.Description("Subsidy program the form belongs to"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Display name of the form"),
		),
		mcp.WithString("mapping",
			mcp.Description("Field mapping (YAML or JSON) from data keys to form fields or coordinates"),
		),
		mcp.WithBoolean("official",
			mcp.Description("Mark the template as an official government form"),
		),
	)
	s.mcpServer.AddTool(templateRegisterTool, s.handleTemplateRegister)

	templateFillTool := mcp.NewTool(
		"template_fill",
		mcp.WithDescription("Fill a registered template with application data and write the PDF "+
			"into the template directory"),
		mcp.WithString("templateId",
			mcp.Required(),
			mcp.Description("ID of a registered template"),
		),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Application data as a JSON object"),
		),
		mcp.WithString("output",
			mcp.Description("Output path inside the template directory (default filled/<templateId>.pdf)"),
		),
	)
	s.mcpServer.AddTool(templateFillTool, s.handleTemplateFill)

	templateDeactivateTool := mcp.NewTool(
		"template_deactivate",
		mcp.WithDescription("Deactivate a template so it is no longer listed or filled"),
		mcp.WithString("templateId",
			mcp.Required(),
			mcp.Description("ID of a registered template"),
		),
	)
	s.mcpServer.AddTool(templateDeactivateTool, s.handleTemplateDeactivate)
}

// Handler functions
func (s *Server) handleTemplateList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	opts := registry.ListOptions{}
	if all, ok := args["all"].(bool); ok {
		opts.IncludeInactive = all
	}
	if st, ok := args["subsidyType"].(string); ok {
		opts.SubsidyType = st
	}

	templates, err := s.pdfService.List(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTemplateList(templates)), nil
}

func (s *Server) handleTemplateAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	req := pdf.AnalyzeRequest{Labels: stringList(args["labels"])}
	if id, ok := args["templateId"].(string); ok {
		req.TemplateID = id
	}
	if path, ok := args["path"].(string); ok && path != "" && req.TemplateID == "" {
		data, err := s.readFile(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Template = data
	}
	if raw, ok := args["mapping"].(string); ok && strings.TrimSpace(raw) != "" {
		mapping, err := template.ParseMapping([]byte(raw))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Mapping = mapping
	}
	if req.TemplateID == "" && req.Template == nil {
		return mcp.NewToolResultError("either templateId or path is required"), nil
	}

	result, err := s.pdfService.Analyze(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatAnalysis(result)), nil
}

func (s *Server) handleTemplateRegister(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	subsidyType, err := request.RequireString("subsidyType")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	info := template.TemplateInfo{SubsidyType: subsidyType, Name: name}
	if official, ok := args["official"].(bool); ok {
		info.IsOfficial = official
	}
	if raw, ok := args["mapping"].(string); ok && strings.TrimSpace(raw) != "" {
		if info.Mapping, err = template.ParseMapping([]byte(raw)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	data, err := s.readFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.Register(ctx, pdf.RegisterRequest{
		Info:     info,
		FileName: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRegistration(result)), nil
}

func (s *Server) handleTemplateFill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("templateId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	data, err := applicationData(args["data"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	output := filepath.Join("filled", id+".pdf")
	if o, ok := args["output"].(string); ok && o != "" {
		output = o
	}
	outPath, err := s.files.Resolve(output)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.pdfService.Fill(ctx, pdf.FillRequest{TemplateID: id, Data: data})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(outPath), config.DefaultDirPerm); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create output directory: %v", err)), nil
	}
	if err := os.WriteFile(outPath, resp.PDF, 0o600); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write filled PDF: %v", err)), nil
	}
	s.logger.Debug("filled PDF written", zap.String("path", outPath), zap.Int("bytes", len(resp.PDF)))

	return mcp.NewToolResultText(formatFillResult(resp, outPath)), nil
}

func (s *Server) handleTemplateDeactivate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("templateId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.pdfService.Deactivate(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Template %s deactivated", id)), nil
}

func (s *Server) readFile(path string) ([]byte, error) {
	resolved, err := s.files.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// applicationData accepts the data argument as a JSON object or as a
// string holding one
func applicationData(raw any) (*appdata.Data, error) {
	switch v := raw.(type) {
	case map[string]any:
		return appdata.FromMap(v)
	case string:
		return appdata.FromJSON([]byte(v))
	case nil:
		return nil, fmt.Errorf("data is required")
	default:
		return nil, fmt.Errorf("data must be a JSON object, got %T", raw)
	}
}

func stringList(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// Formatting methods
func formatTemplateList(templates []*template.TemplateInfo) string {
	if len(templates) == 0 {
		return "No templates registered"
	}

	text := fmt.Sprintf("Found %d template(s)\n", len(templates))
	for i, t := range templates {
		text += fmt.Sprintf("\n%d. %s\n", i+1, t.Name)
		text += fmt.Sprintf("   ID: %s\n", t.ID)
		text += fmt.Sprintf("   Subsidy type: %s\n", t.SubsidyType)
		text += fmt.Sprintf("   Pages: %d, form fields: %t, mapped keys: %d\n", t.PageCount, t.HasFormFields, len(t.Mapping))
		if !t.Active {
			text += "   Status: deactivated\n"
		}
		if t.IsOfficial {
			text += "   Official form\n"
		}
	}
	return text
}

func formatAnalysis(result *pdf.AnalyzeResponse) string {
	a := result.Analysis
	text := "Template Analysis\n"
	text += fmt.Sprintf("Pages: %d\n", a.PageCount)
	for _, p := range a.Pages {
		text += fmt.Sprintf("   Page %d: %.0f x %.0f pt\n", p.Number, p.Width, p.Height)
	}

	if a.HasInteractiveFields {
		text += fmt.Sprintf("\nInteractive fields (%d):\n", len(a.Fields))
		for _, name := range a.FieldNames {
			f := a.Fields[name]
			text += fmt.Sprintf("• %s [%s]", f.Name, f.Kind)
			if f.Page > 0 {
				text += fmt.Sprintf(" page %d", f.Page)
			}
			if f.Rect != nil {
				text += fmt.Sprintf(" at (%.0f, %.0f)-(%.0f, %.0f)", f.Rect.LLX, f.Rect.LLY, f.Rect.URX, f.Rect.URY)
			}
			if len(f.Options) > 0 {
				text += fmt.Sprintf(" options: %s", strings.Join(f.Options, ", "))
			}
			if f.ReadOnly {
				text += " (read-only)"
			}
			text += "\n"
		}
	} else {
		text += "\nNo interactive form: every field must be drawn by coordinates\n"
	}

	if len(result.Anchors) > 0 {
		text += "\nLabels found:\n"
		labels := make([]string, 0, len(result.Anchors))
		for label := range result.Anchors {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			anchor := result.Anchors[label]
			c := anchor.Suggest()
			text += fmt.Sprintf("• %q on page %d at (%.0f, %.0f), suggested coordinates page %d x %.0f y %.0f\n",
				label, anchor.Page, anchor.X, anchor.Y, c.Page, c.X, c.Y)
		}
	}

	text += formatFindings(result.Findings)
	return text
}

func formatFindings(findings []analyzer.Finding) string {
	if len(findings) == 0 {
		return "\nMapping check: no findings\n"
	}
	text := fmt.Sprintf("\nMapping check (%d finding(s)):\n", len(findings))
	for _, f := range findings {
		text += fmt.Sprintf("• [%s] %s: %s", f.Severity, f.Key, f.Message)
		if c := f.Suggestion; c != nil {
			text += fmt.Sprintf(" (suggested coordinates: page %d x %.0f y %.0f", c.Page, c.X, c.Y)
			if c.Width > 0 {
				text += fmt.Sprintf(" width %.0f", c.Width)
			}
			text += ")"
		}
		text += "\n"
	}
	return text
}

func formatRegistration(result *pdf.RegisterResponse) string {
	t := result.Template
	text := fmt.Sprintf("Registered template %s\n", t.Name)
	text += fmt.Sprintf("ID: %s\n", t.ID)
	text += fmt.Sprintf("Subsidy type: %s\n", t.SubsidyType)
	text += fmt.Sprintf("Pages: %d\n", t.PageCount)
	text += fmt.Sprintf("Form fields: %t\n", t.HasFormFields)
	text += fmt.Sprintf("Mapped keys: %d\n", len(t.Mapping))
	text += formatFindings(result.Findings)
	return text
}

func formatFillResult(resp *pdf.FillResponse, outPath string) string {
	r := resp.Result
	text := r.Message + "\n"
	if r.Success {
		text += fmt.Sprintf("Filled PDF written to %s\n", outPath)
	} else {
		text += fmt.Sprintf("Partially filled PDF written to %s\n", outPath)
	}
	if len(r.Filled) > 0 {
		text += fmt.Sprintf("Filled: %s\n", strings.Join(r.Filled, ", "))
	}
	if len(r.Skipped) > 0 {
		text += fmt.Sprintf("Skipped (no data): %s\n", strings.Join(r.Skipped, ", "))
	}
	for _, e := range r.Errors {
		text += fmt.Sprintf("Error: %s\n", e)
	}
	for _, w := range r.Warnings {
		text += fmt.Sprintf("Warning: %s\n", w)
	}
	if encoded, err := json.Marshal(r); err == nil {
		text += "\nResult JSON:\n" + string(encoded) + "\n"
	}
	return text
}

// Run serves the MCP tools over standard I/O until stdin closes
func (s *Server) Run(_ context.Context) error {
	s.logger.Info("starting MCP server in stdio mode",
		zap.String("template_dir", s.files.Dir()))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
