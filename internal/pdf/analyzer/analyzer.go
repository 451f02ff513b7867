// Package analyzer introspects a loaded template: its interactive fields,
// page geometry and printed labels. It never mutates the document.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/document"
)

// FieldKind is the AcroForm type of an interactive field
type FieldKind string

const (
	FieldKindText      FieldKind = "text"
	FieldKindCheckbox  FieldKind = "checkbox"
	FieldKindRadio     FieldKind = "radio"
	FieldKindComboBox  FieldKind = "combobox"
	FieldKindListBox   FieldKind = "listbox"
	FieldKindButton    FieldKind = "button"
	FieldKindSignature FieldKind = "signature"
	FieldKindUnknown   FieldKind = "unknown"
)

// Field flag bits (PDF 32000 table 221, 226, 228).
const (
	flagReadOnly  = 1 << 0
	flagRequired  = 1 << 1
	flagMultiline = 1 << 12
	flagRadio     = 1 << 15
	flagPushbtn   = 1 << 16
	flagCombo     = 1 << 17
)

// Rect is a widget rectangle in PDF user space
type Rect struct {
	LLX float64 `json:"llx"`
	LLY float64 `json:"lly"`
	URX float64 `json:"urx"`
	URY float64 `json:"ury"`
}

// Width of the rectangle
func (r Rect) Width() float64 { return r.URX - r.LLX }

// Height of the rectangle
func (r Rect) Height() float64 { return r.URY - r.LLY }

// FieldInfo describes one terminal interactive field
type FieldInfo struct {
	Name         string    `json:"name"`
	Kind         FieldKind `json:"kind"`
	Page         int       `json:"page,omitempty"`
	Rect         *Rect     `json:"rect,omitempty"`
	Options      []string  `json:"options,omitempty"`
	ExportValues []string  `json:"exportValues,omitempty"`
	ReadOnly     bool      `json:"readOnly,omitempty"`
	Required     bool      `json:"required,omitempty"`
	Multiline    bool      `json:"multiline,omitempty"`
	MaxLength    int       `json:"maxLength,omitempty"`
	FontSize     float64   `json:"fontSize,omitempty"`
}

// AcceptsOption reports whether value is one of the field's display or
// export values. Fields without an option list accept anything.
func (f FieldInfo) AcceptsOption(value string) bool {
	if len(f.Options) == 0 && len(f.ExportValues) == 0 {
		return true
	}
	for _, o := range f.Options {
		if o == value {
			return true
		}
	}
	for _, o := range f.ExportValues {
		if o == value {
			return true
		}
	}
	return false
}

// PageSize is the media box size of one page
type PageSize struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Analysis is the result of introspecting a template
type Analysis struct {
	HasInteractiveFields bool                 `json:"hasInteractiveFields"`
	FieldNames           []string             `json:"fieldNames"`
	FieldTypesByName     map[string]FieldKind `json:"fieldTypesByName"`
	Fields               map[string]FieldInfo `json:"fields"`
	PageCount            int                  `json:"pageCount"`
	Pages                []PageSize           `json:"pages"`
}

// Field looks up a field by its fully qualified name
func (a *Analysis) Field(name string) (FieldInfo, bool) {
	if a == nil {
		return FieldInfo{}, false
	}
	f, ok := a.Fields[name]
	return f, ok
}

// Page returns the size of page n (1-based)
func (a *Analysis) Page(n int) (PageSize, bool) {
	if a == nil || n < 1 || n > len(a.Pages) {
		return PageSize{}, false
	}
	return a.Pages[n-1], true
}

// Analyze reports the interactive fields and page geometry of doc
func Analyze(doc *document.Document) (*Analysis, error) {
	ctx := doc.Context()
	analysis := &Analysis{
		FieldNames:       []string{},
		FieldTypesByName: map[string]FieldKind{},
		Fields:           map[string]FieldInfo{},
		PageCount:        doc.PageCount(),
	}

	dims, err := doc.PageDims()
	if err != nil {
		return nil, fmt.Errorf("failed to read page sizes: %w", err)
	}
	for i, d := range dims {
		analysis.Pages = append(analysis.Pages, PageSize{Number: i + 1, Width: d.Width, Height: d.Height})
	}

	if !doc.HasForm() {
		return analysis, nil
	}

	w := &walker{ctx: ctx, annotPages: annotationPages(ctx), out: analysis.Fields}
	fields, err := w.rootFields()
	if err != nil {
		return nil, err
	}
	for _, ref := range fields {
		w.visit(ref, "", inherited{})
	}

	for name, f := range analysis.Fields {
		analysis.FieldNames = append(analysis.FieldNames, name)
		analysis.FieldTypesByName[name] = f.Kind
	}
	sort.Strings(analysis.FieldNames)
	analysis.HasInteractiveFields = len(analysis.FieldNames) > 0
	return analysis, nil
}

// annotationPages maps the object number of every page annotation to the
// page it sits on.
func annotationPages(ctx *model.Context) map[int]int {
	pages := make(map[int]int)
	for nr := 1; nr <= ctx.PageCount; nr++ {
		pageDict, _, _, err := ctx.PageDict(nr, false)
		if err != nil || pageDict == nil {
			continue
		}
		annotsObj, found := pageDict.Find("Annots")
		if !found {
			continue
		}
		annots, err := ctx.DereferenceArray(annotsObj)
		if err != nil {
			continue
		}
		for _, a := range annots {
			if ref, ok := a.(types.IndirectRef); ok {
				pages[ref.ObjectNumber.Value()] = nr
			}
		}
	}
	return pages
}

type inherited struct {
	ft    string
	flags int
	da    string
}

type walker struct {
	ctx        *model.Context
	annotPages map[int]int
	out        map[string]FieldInfo
}

func (w *walker) rootFields() (types.Array, error) {
	rootDict, err := w.ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acroFormDict, err := w.ctx.DereferenceDict(acroFormObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	if acroFormDict == nil {
		return nil, nil
	}
	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, nil
	}
	fields, err := w.ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}
	return fields, nil
}

// visit walks one node of the field tree. Nodes whose kids carry their
// own /T are non-terminal; kids without /T are widgets of the node.
func (w *walker) visit(obj types.Object, prefix string, inh inherited) {
	dict, err := w.ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return
	}

	name := prefix
	if partial := w.stringEntry(dict, "T"); partial != "" {
		if name != "" {
			name += "."
		}
		name += partial
	}
	if ft, err := w.nameEntry(dict, "FT"); err == nil && ft != "" {
		inh.ft = ft
	}
	if flags, ok := w.intEntry(dict, "Ff"); ok {
		inh.flags = flags
	}
	if da := w.stringEntry(dict, "DA"); da != "" {
		inh.da = da
	}

	var widgets []types.Object
	if kidsObj, found := dict.Find("Kids"); found {
		kids, err := w.ctx.DereferenceArray(kidsObj)
		if err == nil {
			for _, kid := range kids {
				kidDict, err := w.ctx.DereferenceDict(kid)
				if err != nil || kidDict == nil {
					continue
				}
				if _, hasName := kidDict.Find("T"); hasName {
					w.visit(kid, name, inh)
				} else {
					widgets = append(widgets, kid)
				}
			}
			if len(widgets) == 0 {
				return
			}
		}
	} else {
		widgets = []types.Object{obj}
	}

	if name == "" {
		return
	}

	info := FieldInfo{
		Name:      name,
		Kind:      kindOf(inh.ft, inh.flags),
		ReadOnly:  inh.flags&flagReadOnly != 0,
		Required:  inh.flags&flagRequired != 0,
		Multiline: inh.ft == "Tx" && inh.flags&flagMultiline != 0,
		FontSize:  fontSizeFromDA(inh.da),
	}
	if maxLen, ok := w.intEntry(dict, "MaxLen"); ok {
		info.MaxLength = maxLen
	}
	if info.Kind == FieldKindComboBox || info.Kind == FieldKindListBox {
		info.Options, info.ExportValues = w.options(dict)
	}
	if info.Kind == FieldKindRadio || info.Kind == FieldKindCheckbox {
		info.ExportValues = w.onStates(widgets)
	}
	info.Rect, info.Page = w.placement(widgets)
	w.out[name] = info
}

func kindOf(ft string, flags int) FieldKind {
	switch ft {
	case "Btn":
		if flags&flagRadio != 0 {
			return FieldKindRadio
		}
		if flags&flagPushbtn != 0 {
			return FieldKindButton
		}
		return FieldKindCheckbox
	case "Tx":
		return FieldKindText
	case "Ch":
		if flags&flagCombo != 0 {
			return FieldKindComboBox
		}
		return FieldKindListBox
	case "Sig":
		return FieldKindSignature
	default:
		return FieldKindUnknown
	}
}

// options returns display values and export values of a choice field
func (w *walker) options(dict types.Dict) (display, export []string) {
	optObj, found := dict.Find("Opt")
	if !found {
		return nil, nil
	}
	opts, err := w.ctx.DereferenceArray(optObj)
	if err != nil {
		return nil, nil
	}
	for _, opt := range opts {
		if s, err := w.ctx.DereferenceStringOrHexLiteral(opt, model.V10, nil); err == nil {
			display = append(display, s)
			export = append(export, s)
			continue
		}
		pair, err := w.ctx.DereferenceArray(opt)
		if err != nil || len(pair) < 2 {
			continue
		}
		ex, err1 := w.ctx.DereferenceStringOrHexLiteral(pair[0], model.V10, nil)
		disp, err2 := w.ctx.DereferenceStringOrHexLiteral(pair[1], model.V10, nil)
		if err1 == nil && err2 == nil {
			export = append(export, ex)
			display = append(display, disp)
		}
	}
	return display, export
}

// onStates lists the appearance state names other than /Off
func (w *walker) onStates(widgets []types.Object) []string {
	seen := make(map[string]bool)
	var states []string
	for _, wObj := range widgets {
		wDict, err := w.ctx.DereferenceDict(wObj)
		if err != nil || wDict == nil {
			continue
		}
		apObj, found := wDict.Find("AP")
		if !found {
			continue
		}
		ap, err := w.ctx.DereferenceDict(apObj)
		if err != nil || ap == nil {
			continue
		}
		nObj, found := ap.Find("N")
		if !found {
			continue
		}
		n, err := w.ctx.DereferenceDict(nObj)
		if err != nil || n == nil {
			continue
		}
		for state := range n {
			if state != "Off" && !seen[state] {
				seen[state] = true
				states = append(states, state)
			}
		}
	}
	sort.Strings(states)
	return states
}

// placement returns the rectangle and page of the first widget
func (w *walker) placement(widgets []types.Object) (*Rect, int) {
	for _, wObj := range widgets {
		wDict, err := w.ctx.DereferenceDict(wObj)
		if err != nil || wDict == nil {
			continue
		}
		rectObj, found := wDict.Find("Rect")
		if !found {
			continue
		}
		arr, err := w.ctx.DereferenceArray(rectObj)
		if err != nil || len(arr) != 4 {
			continue
		}
		coords := make([]float64, 4)
		for i, c := range arr {
			if f, err := w.ctx.DereferenceNumber(c); err == nil {
				coords[i] = f
			}
		}
		r := &Rect{
			LLX: min(coords[0], coords[2]), LLY: min(coords[1], coords[3]),
			URX: max(coords[0], coords[2]), URY: max(coords[1], coords[3]),
		}
		return r, w.pageOf(wObj, wDict)
	}
	return nil, 0
}

func (w *walker) pageOf(obj types.Object, dict types.Dict) int {
	if ref, ok := obj.(types.IndirectRef); ok {
		if page, ok := w.annotPages[ref.ObjectNumber.Value()]; ok {
			return page
		}
	}
	// Widgets missing from /Annots still point at their page via /P.
	if pObj, found := dict.Find("P"); found {
		if ref, ok := pObj.(types.IndirectRef); ok {
			for nr := 1; nr <= w.ctx.PageCount; nr++ {
				_, pageRef, _, err := w.ctx.PageDict(nr, false)
				if err == nil && pageRef != nil && pageRef.ObjectNumber == ref.ObjectNumber {
					return nr
				}
			}
		}
	}
	return 0
}

func (w *walker) stringEntry(dict types.Dict, key string) string {
	obj, found := dict.Find(key)
	if !found {
		return ""
	}
	s, err := w.ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return ""
	}
	return s
}

func (w *walker) nameEntry(dict types.Dict, key string) (string, error) {
	obj, found := dict.Find(key)
	if !found {
		return "", nil
	}
	n, err := w.ctx.DereferenceName(obj, model.V10, nil)
	return string(n), err
}

func (w *walker) intEntry(dict types.Dict, key string) (int, bool) {
	obj, found := dict.Find(key)
	if !found {
		return 0, false
	}
	i, err := w.ctx.DereferenceInteger(obj)
	if err != nil || i == nil {
		return 0, false
	}
	return i.Value(), true
}

// fontSizeFromDA extracts the size operand of "Tf" from a default
// appearance string such as "/Helv 10 Tf 0 g".
func fontSizeFromDA(da string) float64 {
	parts := strings.Fields(da)
	for i, p := range parts {
		if p == "Tf" && i >= 1 {
			var size float64
			if _, err := fmt.Sscanf(parts[i-1], "%f", &size); err == nil {
				return size
			}
		}
	}
	return 0
}
