// Package pdftest assembles small, valid PDF documents in memory so tests
// can exercise templates with and without interactive forms.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// FieldKind selects the AcroForm field type of a fixture field
type FieldKind int

const (
	TextField FieldKind = iota
	MultilineTextField
	CheckBox
	ComboBox
	ListBox
)

// Field describes one widget-bearing form field
type Field struct {
	Name    string
	Kind    FieldKind
	Page    int // 1-based
	Rect    [4]float64
	Options []string
	MaxLen  int
	// Kids turns the field into a non-terminal node whose children are
	// named "<Name>.<kid.Name>".
	Kids []Field
}

// Label is static text painted on a page in Helvetica
type Label struct {
	Page int
	X, Y float64
	Size float64
	Text string
}

// Spec describes a fixture document
type Spec struct {
	Pages      int
	PageWidth  float64
	PageHeight float64
	Labels     []Label
	Fields     []Field
	// EmptyAcroForm writes an AcroForm dictionary with no fields.
	EmptyAcroForm bool
}

// A4 page size in points
const (
	A4Width  = 595.0
	A4Height = 842.0
)

type objects struct {
	bodies []string
}

func (o *objects) alloc() int {
	o.bodies = append(o.bodies, "")
	return len(o.bodies)
}

func (o *objects) set(n int, body string) {
	o.bodies[n-1] = body
}

func (o *objects) add(body string) int {
	n := o.alloc()
	o.set(n, body)
	return n
}

func stream(dict, content string) string {
	if dict != "" {
		dict = " " + dict
	}
	return fmt.Sprintf("<<%s /Length %d >>\nstream\n%s\nendstream", dict, len(content), content)
}

func literal(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return "(" + r.Replace(s) + ")"
}

func rect(r [4]float64) string {
	return fmt.Sprintf("[%g %g %g %g]", r[0], r[1], r[2], r[3])
}

// Build renders spec as PDF bytes
func Build(spec Spec) []byte {
	if spec.Pages < 1 {
		spec.Pages = 1
	}
	if spec.PageWidth == 0 {
		spec.PageWidth = A4Width
	}
	if spec.PageHeight == 0 {
		spec.PageHeight = A4Height
	}

	o := &objects{}
	catalog := o.alloc()
	pages := o.alloc()
	helv := o.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	pageRefs := make([]int, spec.Pages)
	for i := range pageRefs {
		pageRefs[i] = o.alloc()
	}

	annots := make(map[int][]int)
	var fieldRefs []int
	for _, f := range spec.Fields {
		fieldRefs = append(fieldRefs, addField(o, f, 0, pageRefs, annots))
	}

	for i, ref := range pageRefs {
		var content strings.Builder
		for _, l := range spec.Labels {
			if l.Page != i+1 {
				continue
			}
			size := l.Size
			if size == 0 {
				size = 10
			}
			fmt.Fprintf(&content, "BT /F1 %g Tf %g %g Td %s Tj ET\n", size, l.X, l.Y, literal(l.Text))
		}
		contents := o.add(stream("", content.String()))

		annotEntry := ""
		if refs := annots[i+1]; len(refs) > 0 {
			annotEntry = " /Annots " + refList(refs)
		}
		o.set(ref, fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R%s >>",
			pages, spec.PageWidth, spec.PageHeight, helv, contents, annotEntry))
	}

	o.set(pages, fmt.Sprintf("<< /Type /Pages /Kids %s /Count %d >>", refList(pageRefs), len(pageRefs)))

	acroForm := ""
	if len(fieldRefs) > 0 || spec.EmptyAcroForm {
		form := o.add(fmt.Sprintf(
			"<< /Fields %s /DA (/Helv 0 Tf 0 g) /DR << /Font << /Helv %d 0 R >> >> >>",
			refList(fieldRefs), helv))
		acroForm = fmt.Sprintf(" /AcroForm %d 0 R", form)
	}
	o.set(catalog, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R%s >>", pages, acroForm))

	return o.serialize(catalog)
}

func addField(o *objects, f Field, parent int, pageRefs []int, annots map[int][]int) int {
	ref := o.alloc()
	parentEntry := ""
	if parent != 0 {
		parentEntry = fmt.Sprintf(" /Parent %d 0 R", parent)
	}

	if len(f.Kids) > 0 {
		var kids []int
		for _, kid := range f.Kids {
			kids = append(kids, addField(o, kid, ref, pageRefs, annots))
		}
		o.set(ref, fmt.Sprintf("<< /T %s /Kids %s%s >>", literal(f.Name), refList(kids), parentEntry))
		return ref
	}

	page := f.Page
	if page < 1 || page > len(pageRefs) {
		page = 1
	}
	r := f.Rect
	if r == [4]float64{} {
		r = [4]float64{100, 700, 300, 720}
	}
	widget := fmt.Sprintf("/Type /Annot /Subtype /Widget /F 4 /P %d 0 R /Rect %s /T %s%s",
		pageRefs[page-1], rect(r), literal(f.Name), parentEntry)

	var body string
	switch f.Kind {
	case CheckBox:
		w, h := r[2]-r[0], r[3]-r[1]
		on := o.add(stream(fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 %g %g]", w, h), "q 0 g 2 2 m 8 8 l S Q"))
		off := o.add(stream(fmt.Sprintf("/Type /XObject /Subtype /Form /BBox [0 0 %g %g]", w, h), ""))
		body = fmt.Sprintf("<< %s /FT /Btn /V /Off /AS /Off /AP << /N << /Yes %d 0 R /Off %d 0 R >> >> >>",
			widget, on, off)
	case ComboBox, ListBox:
		flags := 0
		if f.Kind == ComboBox {
			flags = 1 << 17
		}
		opts := make([]string, len(f.Options))
		for i, opt := range f.Options {
			opts[i] = literal(opt)
		}
		body = fmt.Sprintf("<< %s /FT /Ch /Ff %d /Opt [%s] /DA (/Helv 10 Tf 0 g) >>",
			widget, flags, strings.Join(opts, " "))
	default:
		flags := 0
		if f.Kind == MultilineTextField {
			flags = 1 << 12
		}
		maxLen := ""
		if f.MaxLen > 0 {
			maxLen = fmt.Sprintf(" /MaxLen %d", f.MaxLen)
		}
		body = fmt.Sprintf("<< %s /FT /Tx /Ff %d%s /DA (/Helv 10 Tf 0 g) >>", widget, flags, maxLen)
	}
	o.set(ref, body)
	annots[page] = append(annots[page], ref)
	return ref
}

func refList(refs []int) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = fmt.Sprintf("%d 0 R", r)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (o *objects) serialize(root int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(o.bodies))
	for i, body := range o.bodies {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(o.bodies)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(o.bodies)+1, root, xref)
	return buf.Bytes()
}

// FormTemplate returns a three-page template with the interactive fields
// used across the fill tests.
func FormTemplate() []byte {
	return Build(Spec{
		Pages: 3,
		Labels: []Label{
			{Page: 1, X: 50, Y: 760, Text: "Company name"},
			{Page: 1, X: 50, Y: 640, Text: "Representative"},
		},
		Fields: []Field{
			{Name: "company_name", Kind: TextField, Page: 1, Rect: [4]float64{150, 750, 500, 770}},
			{Name: "representative", Kind: TextField, Page: 1, Rect: [4]float64{150, 630, 500, 650}},
			{Name: "business_plan", Kind: MultilineTextField, Page: 2, Rect: [4]float64{50, 400, 545, 700}},
			{Name: "agree", Kind: CheckBox, Page: 3, Rect: [4]float64{50, 700, 62, 712}},
			{Name: "prefecture", Kind: ComboBox, Page: 1, Rect: [4]float64{150, 600, 300, 620}, Options: []string{"Tokyo", "Osaka", "Aichi"}},
		},
	})
}

// PlainTemplate returns a three-page template without any form, with a
// few printed labels.
func PlainTemplate() []byte {
	return Build(Spec{
		Pages: 3,
		Labels: []Label{
			{Page: 1, X: 50, Y: 760, Text: "Company name"},
			{Page: 2, X: 50, Y: 720, Text: "Necessity of the project"},
		},
	})
}
