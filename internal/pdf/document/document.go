// Package document loads government form templates and writes the filled
// result. A Document is an in-memory handle owned by one fill operation.
package document

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

var pdfMagic = []byte("%PDF-")

// Document wraps the current bytes of a template together with the
// parsed pdfcpu context of those bytes.
type Document struct {
	info      *template.TemplateInfo
	data      []byte
	ctx       *model.Context
	hasForm   bool
	pageCount int
	// date replaces the clock in the info dictionary of the output
	date string
}

// NewConfiguration returns the pdfcpu configuration used for every
// operation: relaxed validation, since government templates are often
// produced by tools that bend the PDF standard.
func NewConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// InstallFonts registers TrueType fonts (.ttf, .ttc) with pdfcpu so that
// Japanese text can be stamped with a font that carries the glyphs. The
// fonts become available under their PostScript names.
func InstallFonts(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	// sets up the pdfcpu user font directory
	NewConfiguration()
	if err := api.InstallFonts(paths); err != nil {
		return fmt.Errorf("failed to install fonts: %w", err)
	}
	return nil
}

// FontSupported reports whether pdfcpu can draw with the named font: one
// of the standard 14 fonts or an installed TrueType font.
func FontSupported(name string) bool {
	NewConfiguration()
	return font.SupportedFont(name)
}

// Load parses data as a PDF. A template without an AcroForm is not an
// error; HasForm reports false and every field must be drawn by
// coordinates.
func Load(data []byte, info *template.TemplateInfo) (*Document, error) {
	if len(data) == 0 {
		return nil, pdferrors.NewTemplateLoadError(fmt.Errorf("template is empty"))
	}
	if !bytes.Contains(data[:min(len(data), 1024)], pdfMagic) {
		return nil, pdferrors.NewTemplateLoadError(fmt.Errorf("missing %%PDF- header"))
	}

	d := &Document{info: info}
	if err := d.reset(data); err != nil {
		return nil, pdferrors.NewTemplateLoadError(err)
	}
	d.date = templateDate(d.ctx)
	return d, nil
}

func (d *Document) reset(data []byte) (err error) {
	// pdfcpu panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read PDF context: %v", r)
		}
	}()

	ctx, err := api.ReadContext(bytes.NewReader(data), NewConfiguration())
	if err != nil {
		return fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return fmt.Errorf("failed to ensure page count: %w", err)
	}

	d.data = data
	d.ctx = ctx
	d.pageCount = ctx.PageCount
	d.hasForm = detectForm(ctx)
	return nil
}

// detectForm reports whether the catalog carries an AcroForm with at
// least one field.
func detectForm(ctx *model.Context) bool {
	rootDict, err := ctx.Catalog()
	if err != nil {
		return false
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return false
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return false
	}
	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return false
	}
	fields, err := ctx.DereferenceArray(fieldsObj)
	return err == nil && len(fields) > 0
}

// Info returns the registry entry the document was loaded for, if any
func (d *Document) Info() *template.TemplateInfo { return d.info }

// Context returns the parsed pdfcpu context of the current bytes
func (d *Document) Context() *model.Context { return d.ctx }

// Bytes returns the current bytes
func (d *Document) Bytes() []byte { return d.data }

// HasForm reports whether the template exposes interactive fields
func (d *Document) HasForm() bool { return d.hasForm }

// PageCount returns the number of pages
func (d *Document) PageCount() int { return d.pageCount }

// PageDims returns the media box size of each page, in points
func (d *Document) PageDims() ([]types.Dim, error) {
	return d.ctx.PageDims()
}

// Transform runs op over the current bytes and reloads the document from
// its output. On error the document is left unchanged.
func (d *Document) Transform(op func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error) error {
	var out bytes.Buffer
	if err := op(bytes.NewReader(d.data), &out, NewConfiguration()); err != nil {
		return err
	}
	return d.reset(out.Bytes())
}

// Finalize locks the interactive fields by setting their read-only flag.
// pdfcpu cannot flatten a form into page content, so the widgets stay in
// the file. Failure is returned as a warning: the drawn content is
// already in place and only the form layer stays editable.
func (d *Document) Finalize() *pdferrors.FillError {
	if !d.hasForm {
		return nil
	}
	err := d.Transform(func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.LockFormFields(rs, w, nil, conf)
	})
	if err != nil {
		return pdferrors.NewFlattenWarning(err)
	}
	return nil
}

// Serialize writes the current context and returns the final bytes. The
// same template and operations always produce the same bytes.
func (d *Document) Serialize() (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, pdferrors.NewSerializationError(fmt.Errorf("%v", r))
		}
	}()

	// plain objects keep the info dictionary and trailer out of
	// compressed streams
	d.ctx.WriteObjectStream = false
	d.ctx.WriteXRefStream = false

	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, pdferrors.NewSerializationError(err)
	}
	return canonicalize(d.ctx, buf.Bytes(), d.date), nil
}
