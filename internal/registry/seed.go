package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// Seed loads a YAML or JSON document with a "templates" list into store.
// When blobs is not nil, an entry whose fileName names a file next to the
// seed document has that file copied in under the entry's id. It returns
// the number of entries stored.
func Seed(ctx context.Context, store Store, blobs Blobs, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}
	infos, err := template.ParseTemplates(data)
	if err != nil {
		return 0, err
	}

	base := filepath.Dir(path)
	for i := range infos {
		info := &infos[i]
		if errs := info.Mapping.Validate(); len(errs) > 0 {
			return i, fmt.Errorf("template %q: %w", info.Name, errors.Join(errs...))
		}
		if err := store.Put(ctx, info); err != nil {
			return i, err
		}
		if blobs == nil || info.FileName == "" {
			continue
		}
		pdfData, err := os.ReadFile(filepath.Join(base, filepath.Base(info.FileName)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return i, fmt.Errorf("failed to read template file of %q: %w", info.Name, err)
		}
		if err := blobs.Save(ctx, info.ID, pdfData); err != nil {
			return i, err
		}
	}
	return len(infos), nil
}
