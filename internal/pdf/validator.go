package pdf

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
)

// Validator checks uploaded template files before they are analyzed
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidateUpload checks the name, size and structure of an uploaded file
func (v *Validator) ValidateUpload(fileName string, data []byte) error {
	if fileName != "" && !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", fileName)
	}

	if len(data) == 0 {
		return fmt.Errorf("file is empty: %s", fileName)
	}

	if v.maxFileSize > 0 && int64(len(data)) > v.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max: %d bytes)",
			pdferrors.ErrFileTooLarge, len(data), v.maxFileSize)
	}

	// Try to open the PDF to validate its cross-reference structure
	if err := openPDF(data); err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}

	return nil
}

func openPDF(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	_, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	return err
}
