package errors

import (
	"errors"
	"fmt"
)

// FillError is a classified failure raised while loading, filling or
// writing a template.
type FillError struct {
	Type     ErrorType `json:"type"`
	Message  string    `json:"message"`
	FieldKey string    `json:"field_key,omitempty"`
	Page     int       `json:"page,omitempty"`
	Cause    error     `json:"-"`
}

// ErrorType represents the categories of the fill pipeline taxonomy
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeTemplateLoad
	ErrorTypeFieldFill
	ErrorTypeFlatten
	ErrorTypeSerialization
	ErrorTypeInvalidMapping
	ErrorTypeNotFound
)

// ErrorSeverity indicates how an error affects the surrounding operation
type ErrorSeverity int

const (
	SeverityWarning ErrorSeverity = iota
	SeverityError
	SeverityFatal
)

// Sentinel causes. Match with errors.Is.
var (
	ErrFieldNotFound    = errors.New("interactive field not found")
	ErrTypeMismatch     = errors.New("field type mismatch")
	ErrUnknownOption    = errors.New("option not offered by field")
	ErrPageOutOfRange   = errors.New("page index out of range")
	ErrNoStrategy       = errors.New("no interactive field name or coordinates")
	ErrNoForm           = errors.New("template has no interactive form")
	ErrTemplateInactive = errors.New("template is deactivated")
	ErrNotFound         = errors.New("not found")
	ErrGlyphMissing     = errors.New("font has no glyph")
	ErrFileTooLarge     = errors.New("file too large")
)

func (e *FillError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.FieldKey != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.FieldKey, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

func (e *FillError) Unwrap() error {
	return e.Cause
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTemplateLoad:
		return "TEMPLATE_LOAD"
	case ErrorTypeFieldFill:
		return "FIELD_FILL"
	case ErrorTypeFlatten:
		return "FLATTEN"
	case ErrorTypeSerialization:
		return "SERIALIZATION"
	case ErrorTypeInvalidMapping:
		return "INVALID_MAPPING"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Severity returns the severity level for a given error type
func (et ErrorType) Severity() ErrorSeverity {
	switch et {
	case ErrorTypeTemplateLoad, ErrorTypeSerialization:
		return SeverityFatal
	case ErrorTypeFlatten:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// NewTemplateLoadError reports bytes that could not be parsed as a PDF.
func NewTemplateLoadError(cause error) *FillError {
	return &FillError{Type: ErrorTypeTemplateLoad, Message: "failed to load template", Cause: cause}
}

// NewFieldFillError reports a field that no strategy could fill.
func NewFieldFillError(key string, cause error) *FillError {
	return &FillError{Type: ErrorTypeFieldFill, FieldKey: key, Cause: cause}
}

// NewFlattenWarning reports a form whose fields could not be locked
// read-only. The form layer is never flattened into page content.
func NewFlattenWarning(cause error) *FillError {
	return &FillError{
		Type:    ErrorTypeFlatten,
		Message: "form flattening failed, template may remain editable",
		Cause:   cause,
	}
}

// NewSerializationError reports a failure to emit the final bytes.
func NewSerializationError(cause error) *FillError {
	return &FillError{Type: ErrorTypeSerialization, Message: "failed to serialize document", Cause: cause}
}

// NewInvalidMappingError reports a mapping entry that can never be filled.
func NewInvalidMappingError(key string, cause error) *FillError {
	return &FillError{Type: ErrorTypeInvalidMapping, FieldKey: key, Cause: cause}
}

// WithPage adds page number information to an existing FillError
func (e *FillError) WithPage(page int) *FillError {
	e.Page = page
	return e
}

// Severity returns the severity of this specific error
func (e *FillError) Severity() ErrorSeverity {
	return e.Type.Severity()
}

// IsType reports whether err is a FillError of the given type.
func IsType(err error, et ErrorType) bool {
	var fe *FillError
	if errors.As(err, &fe) {
		return fe.Type == et
	}
	return false
}

// Collection gathers per-field errors and warnings of one fill operation.
type Collection struct {
	Errors   []*FillError `json:"errors"`
	Warnings []string     `json:"warnings"`
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{
		Errors:   make([]*FillError, 0),
		Warnings: make([]string, 0),
	}
}

// Add files err as a warning or an error depending on its severity
func (c *Collection) Add(err *FillError) {
	if err.Severity() == SeverityWarning {
		c.Warnings = append(c.Warnings, err.Message)
		return
	}
	c.Errors = append(c.Errors, err)
}

// Warn records a free-form warning
func (c *Collection) Warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any error (not warning) was recorded
func (c *Collection) HasErrors() bool {
	return len(c.Errors) > 0
}

// ErrorStrings renders the recorded errors for display
func (c *Collection) ErrorStrings() []string {
	out := make([]string, 0, len(c.Errors))
	for _, e := range c.Errors {
		out = append(out, e.Error())
	}
	return out
}

// Count returns the number of errors and warnings
func (c *Collection) Count() (errors, warnings int) {
	return len(c.Errors), len(c.Warnings)
}

// Summary returns a text summary of all errors and warnings
func (c *Collection) Summary() string {
	errorCount, warningCount := c.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}
	return fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)
}
