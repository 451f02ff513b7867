package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// templateRecord is the table row of one template. The mapping is kept as
// a JSON document in a text column.
type templateRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	SubsidyType   string `gorm:"size:128;index"`
	Name          string `gorm:"size:255"`
	FileName      string `gorm:"size:255"`
	UploadedAt    time.Time
	Active        bool `gorm:"index"`
	PageCount     int
	HasFormFields bool
	IsOfficial    bool
	Mapping       string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (templateRecord) TableName() string { return "templates" }

func toRecord(info *template.TemplateInfo) (*templateRecord, error) {
	mapping, err := json.Marshal(info.Mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mapping of %s: %w", info.ID, err)
	}
	return &templateRecord{
		ID:            info.ID,
		SubsidyType:   info.SubsidyType,
		Name:          info.Name,
		FileName:      info.FileName,
		UploadedAt:    info.UploadedAt,
		Active:        info.Active,
		PageCount:     info.PageCount,
		HasFormFields: info.HasFormFields,
		IsOfficial:    info.IsOfficial,
		Mapping:       string(mapping),
	}, nil
}

func (r *templateRecord) toInfo() (*template.TemplateInfo, error) {
	mapping := template.FieldMapping{}
	if r.Mapping != "" {
		if err := json.Unmarshal([]byte(r.Mapping), &mapping); err != nil {
			return nil, fmt.Errorf("failed to decode mapping of %s: %w", r.ID, err)
		}
	}
	return &template.TemplateInfo{
		ID:            r.ID,
		SubsidyType:   r.SubsidyType,
		Name:          r.Name,
		FileName:      r.FileName,
		UploadedAt:    r.UploadedAt.UTC(),
		Active:        r.Active,
		PageCount:     r.PageCount,
		HasFormFields: r.HasFormFields,
		IsOfficial:    r.IsOfficial,
		Mapping:       mapping,
	}, nil
}

// GormStore persists templates through gorm
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite opens (creating when needed) a sqlite database at dsn and
// migrates the templates table.
func OpenSQLite(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an open database and migrates the templates table
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&templateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry: %w", err)
	}
	return &GormStore{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Get(ctx context.Context, id string) (*template.TemplateInfo, error) {
	var rec templateRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", id, err)
	}
	return rec.toInfo()
}

func (s *GormStore) Put(ctx context.Context, info *template.TemplateInfo) error {
	prepare(info, s.now)
	rec, err := toRecord(info)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subsidy_type", "name", "file_name", "uploaded_at", "active",
			"page_count", "has_form_fields", "is_official", "mapping", "updated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to store template %s: %w", info.ID, err)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]*template.TemplateInfo, error) {
	q := s.db.WithContext(ctx).Model(&templateRecord{})
	if !opts.IncludeInactive {
		q = q.Where("active = ?", true)
	}
	if opts.SubsidyType != "" {
		q = q.Where("subsidy_type = ?", opts.SubsidyType)
	}

	var recs []templateRecord
	if err := q.Order("subsidy_type ASC").Order("uploaded_at DESC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	out := make([]*template.TemplateInfo, 0, len(recs))
	for i := range recs {
		info, err := recs[i].toInfo()
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *GormStore) Deactivate(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&templateRecord{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate template %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}
