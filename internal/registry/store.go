// Package registry keeps track of the government form templates known to
// the service: their metadata and mapping in a Store, their PDF bytes in a
// Blobs store. Templates are never physically deleted, only deactivated.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// ListOptions filters List
type ListOptions struct {
	IncludeInactive bool
	SubsidyType     string
}

// Store persists template metadata
type Store interface {
	Get(ctx context.Context, id string) (*template.TemplateInfo, error)
	// Put inserts or replaces info. An empty ID is assigned a new one and a
	// zero UploadedAt is set to now; both are written back into info.
	Put(ctx context.Context, info *template.TemplateInfo) error
	List(ctx context.Context, opts ListOptions) ([]*template.TemplateInfo, error)
	Deactivate(ctx context.Context, id string) error
}

func notFound(id string) error {
	return &pdferrors.FillError{
		Type:    pdferrors.ErrorTypeNotFound,
		Message: fmt.Sprintf("template %q not found", id),
		Cause:   pdferrors.ErrNotFound,
	}
}

// prepare fills the generated parts of a new entry
func prepare(info *template.TemplateInfo, now func() time.Time) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.UploadedAt.IsZero() {
		info.UploadedAt = now().UTC()
	}
	if info.Mapping == nil {
		info.Mapping = template.FieldMapping{}
	}
}

func (o ListOptions) matches(info *template.TemplateInfo) bool {
	if !o.IncludeInactive && !info.Active {
		return false
	}
	return o.SubsidyType == "" || o.SubsidyType == info.SubsidyType
}

// sortTemplates orders by subsidy type, then newest first
func sortTemplates(infos []*template.TemplateInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		if infos[i].SubsidyType != infos[j].SubsidyType {
			return infos[i].SubsidyType < infos[j].SubsidyType
		}
		if !infos[i].UploadedAt.Equal(infos[j].UploadedAt) {
			return infos[i].UploadedAt.After(infos[j].UploadedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
