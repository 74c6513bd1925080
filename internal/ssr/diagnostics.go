package ssr

import (
	"context"
	"net/http"

	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/logging"
)

// Diagnostics turns a pipeline failure into the 500 response. The trace is
// returned verbatim; nothing is redacted.
type Diagnostics struct {
	mode    Mode
	adapter DevAdapter
	logger  logging.Logger
}

// NewDiagnostics creates the error reporter. adapter may be nil in
// production.
func NewDiagnostics(mode Mode, adapter DevAdapter, logger logging.Logger) *Diagnostics {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Diagnostics{mode: mode, adapter: adapter, logger: logger.WithComponent("diagnostics")}
}

// Report remaps err in development, logs the trace and returns the
// diagnostic response.
func (d *Diagnostics) Report(ctx context.Context, err error) Response {
	if d.mode == Development && d.adapter != nil {
		if remapped := d.adapter.RemapStackTrace(err); remapped != nil {
			err = remapped
		}
	}

	trace := errors.StackTrace(err)
	fields := []interface{}{"trace", trace}
	if ge, ok := errors.AsGatewayError(err); ok {
		fields = append(fields, "type", string(ge.Type), "code", ge.Code)
	}
	d.logger.Error(ctx, err, "Request failed", fields...)

	return Response{
		Status:      http.StatusInternalServerError,
		ContentType: ContentTypeText,
		Body:        trace,
	}
}
