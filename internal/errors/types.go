// Package errors defines the gateway's structured error taxonomy and the
// trace parser used to map failures back to source locations.
//
// Every failure on the request path is one of three kinds: the template
// could not be read, the render module could not be loaded, or the
// application's render call failed. All of them surface to the client the
// same way (a 500 with the textual trace) and none of them are retried.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeRead       ErrorType = "read"
	ErrorTypeModuleLoad ErrorType = "module_load"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeTemplateRead   = "ERR_TEMPLATE_READ"
	ErrCodeModuleNotFound = "ERR_MODULE_NOT_FOUND"
	ErrCodeModuleLoad     = "ERR_MODULE_LOAD"
	ErrCodeTransform      = "ERR_TEMPLATE_TRANSFORM"
	ErrCodeRenderFailed   = "ERR_RENDER_FAILED"
	ErrCodeRenderPanic    = "ERR_RENDER_PANIC"
	ErrCodeRenderTimeout  = "RENDER_TIMEOUT"
	ErrCodeConfigInvalid  = "ERR_CONFIG_INVALID"
	ErrCodeInternalError  = "ERR_INTERNAL"
)

// GatewayError is a structured error type with source location and trace.
type GatewayError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Module   string
	FilePath string
	Line     int
	Column   int
	// Stack is the textual trace reported to the client. For panics it is
	// the goroutine stack, for process modules the captured stderr.
	Stack   string
	Context map[string]interface{}

	// causeInStack is set when Stack is the cause's own text.
	causeInStack bool
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	result := e.headline()
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// headline is the error text without the cause.
func (e *GatewayError) headline() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Module != "" {
		parts = append(parts, "module:"+e.Module)
	}

	if e.FilePath != "" {
		parts = append(parts, e.Location())
	}

	parts = append(parts, e.Message)

	return strings.Join(parts, " ")
}

// Location returns file:line:col, omitting unknown parts.
func (e *GatewayError) Location() string {
	location := e.FilePath
	if e.Line > 0 {
		location += fmt.Sprintf(":%d", e.Line)
		if e.Column > 0 {
			location += fmt.Sprintf(":%d", e.Column)
		}
	}
	return location
}

// Unwrap returns the underlying cause error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *GatewayError) Is(target error) bool {
	var t *GatewayError
	if errors.As(target, &t) {
		return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
	}

	return false
}

// WithContext adds context information to the error.
func (e *GatewayError) WithContext(key string, value interface{}) *GatewayError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *GatewayError) WithLocation(filePath string, line, column int) *GatewayError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithModule records the render module involved.
func (e *GatewayError) WithModule(module string) *GatewayError {
	e.Module = module

	return e
}

// WithStack attaches a textual trace.
func (e *GatewayError) WithStack(stack string) *GatewayError {
	e.Stack = stack

	return e
}

// WithCauseStack uses the cause's text as the trace. Errors such as
// html/template failures carry their locations in the message itself.
func (e *GatewayError) WithCauseStack() *GatewayError {
	if e.Cause == nil {
		return e
	}
	e.Stack = e.Cause.Error()
	e.causeInStack = true

	return e
}

// Clone returns a shallow copy so remapping never mutates a shared error.
func (e *GatewayError) Clone() *GatewayError {
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]interface{}, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	return &c
}

// NewReadError creates a template read error.
func NewReadError(path string, cause error) *GatewayError {
	return &GatewayError{
		Type:     ErrorTypeRead,
		Code:     ErrCodeTemplateRead,
		Message:  "failed to read template",
		Cause:    cause,
		FilePath: path,
	}
}

// NewModuleLoadError creates a render module load error.
func NewModuleLoadError(code, module string, cause error) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeModuleLoad,
		Code:    code,
		Message: "failed to load render module",
		Cause:   cause,
		Module:  module,
	}
}

// NewRenderError creates an application render error.
func NewRenderError(code, message string, cause error) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeRender,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError creates the render error reported when the render timeout
// policy is exceeded.
func NewTimeoutError(limit fmt.Stringer, cause error) *GatewayError {
	return NewRenderError(ErrCodeRenderTimeout, "render exceeded timeout of "+limit.String(), cause)
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *GatewayError {
	return &GatewayError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrRead       = &GatewayError{Type: ErrorTypeRead}
	ErrModuleLoad = &GatewayError{Type: ErrorTypeModuleLoad}
	ErrRender     = &GatewayError{Type: ErrorTypeRender}
	ErrTimeout    = &GatewayError{Type: ErrorTypeRender, Code: ErrCodeRenderTimeout}
)

// IsReadError checks if an error is a template read failure.
func IsReadError(err error) bool {
	return errors.Is(err, ErrRead)
}

// IsModuleLoadError checks if an error is a render module load failure.
func IsModuleLoadError(err error) bool {
	return errors.Is(err, ErrModuleLoad)
}

// IsRenderError checks if an error was raised by application render logic.
func IsRenderError(err error) bool {
	return errors.Is(err, ErrRender)
}

// AsGatewayError is errors.As for *GatewayError.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// StackTrace renders the textual trace reported for err: the error message
// followed by its recorded stack, if any. It never returns an empty string
// for a non-nil error.
func StackTrace(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	ge, ok := AsGatewayError(err)
	if !ok || strings.TrimSpace(ge.Stack) == "" {
		if msg == "" {
			return fmt.Sprintf("%T", err)
		}
		return msg
	}

	if ge.causeInStack {
		msg = ge.headline()
	}
	return msg + "\n\n" + strings.TrimRight(ge.Stack, "\n")
}
