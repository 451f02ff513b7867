package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/a3tai/subsidy-form-filler/internal/pdf"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/appdata"
	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
	"github.com/a3tai/subsidy-form-filler/internal/registry"
)

// Handler serves the template endpoints
type Handler struct {
	svc    *pdf.Service
	logger *zap.Logger
}

// ListResponse wraps a template listing
type ListResponse struct {
	Templates []*template.TemplateInfo `json:"templates"`
	Count     int                      `json:"count"`
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListTemplates handles GET /api/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))
	templates, err := h.svc.List(c.Request.Context(), registry.ListOptions{
		IncludeInactive: all,
		SubsidyType:     c.Query("subsidyType"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if templates == nil {
		templates = []*template.TemplateInfo{}
	}
	c.JSON(http.StatusOK, ListResponse{Templates: templates, Count: len(templates)})
}

// GetTemplate handles GET /api/templates/:id
func (h *Handler) GetTemplate(c *gin.Context) {
	info, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// RegisterTemplate handles POST /api/templates. The multipart form carries
// the PDF in "file", the TemplateInfo JSON in "info" and optionally a YAML
// or JSON field mapping in "mapping" that replaces the one in info.
func (h *Handler) RegisterTemplate(c *gin.Context) {
	if limit := h.svc.GetMaxFileSize(); limit > 0 {
		// multipart overhead on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	var info template.TemplateInfo
	if raw := c.PostForm("info"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid info JSON: %v", err)})
			return
		}
	}
	if raw := c.PostForm("mapping"); strings.TrimSpace(raw) != "" {
		mapping, err := template.ParseMapping([]byte(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		info.Mapping = mapping
	}

	resp, err := h.svc.Register(c.Request.Context(), pdf.RegisterRequest{
		Info:     info,
		FileName: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// AnalyzeTemplate handles GET /api/templates/:id/analysis. Labels to
// locate are given as repeated "label" parameters or a comma-separated
// "labels" parameter.
func (h *Handler) AnalyzeTemplate(c *gin.Context) {
	labels := c.QueryArray("label")
	for _, l := range strings.Split(c.Query("labels"), ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}

	resp, err := h.svc.Analyze(c.Request.Context(), pdf.AnalyzeRequest{
		TemplateID: c.Param("id"),
		Labels:     labels,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// FillTemplate handles POST /api/templates/:id/fill with the application
// data as the JSON body. A complete fill returns the PDF. A fill with
// field errors returns 422 and the result, unless partial=true asks for
// the partially filled PDF.
func (h *Handler) FillTemplate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}
	data, err := appdata.FromJSON(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	resp, err := h.svc.Fill(c.Request.Context(), pdf.FillRequest{TemplateID: id, Data: data})
	if err != nil {
		h.fail(c, err)
		return
	}

	partial, _ := strconv.ParseBool(c.DefaultQuery("partial", "false"))
	if !resp.Result.Success && !partial {
		c.JSON(http.StatusUnprocessableEntity, resp.Result)
		return
	}

	c.Header("X-Fill-Success", strconv.FormatBool(resp.Result.Success))
	c.Header("X-Fill-Filled", strconv.Itoa(len(resp.Result.Filled)))
	c.Header("X-Fill-Warnings", strconv.Itoa(len(resp.Result.Warnings)))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"-filled.pdf"))
	c.Data(http.StatusOK, "application/pdf", resp.PDF)
}

// DeactivateTemplate handles DELETE /api/templates/:id
func (h *Handler) DeactivateTemplate(c *gin.Context) {
	if err := h.svc.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps service errors onto status codes
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, pdferrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pdferrors.ErrTemplateInactive):
		return http.StatusConflict
	case errors.As(err, &maxBytes), errors.Is(err, pdferrors.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case pdferrors.IsType(err, pdferrors.ErrorTypeTemplateLoad),
		pdferrors.IsType(err, pdferrors.ErrorTypeInvalidMapping):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
