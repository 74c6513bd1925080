package module

import (
	"bytes"
	"context"
	"html/template"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/ssr"
)

// TemplateData is the dot value template modules execute against.
type TemplateData struct {
	URL    string
	Path   string
	Query  url.Values
	Header http.Header
	Mode   string
}

var templateFuncs = template.FuncMap{
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"hasPrefix": strings.HasPrefix,
	"join":      strings.Join,
}

var traceParser = errors.NewTraceParser()

// LoadTemplate parses source as an html/template render module. name is the
// module path reported in errors and file is the path on disk.
func LoadTemplate(name, file string, source []byte) (ssr.EntryPoint, error) {
	tmpl, err := template.New(filepath.Base(file)).Funcs(templateFuncs).Parse(string(source))
	if err != nil {
		loadErr := errors.NewModuleLoadError(errors.ErrCodeModuleLoad, name, err).WithCauseStack()
		return nil, withTraceLocation(loadErr, file, err)
	}

	return func(ctx context.Context, req *ssr.RenderRequest) (ssr.RenderResult, error) {
		data := TemplateData{
			URL:    req.URL,
			Path:   req.Path,
			Query:  req.Query,
			Header: req.Header,
			Mode:   req.Mode.String(),
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			renderErr := errors.NewRenderError(errors.ErrCodeRenderFailed, "template execution failed", err).
				WithModule(name).
				WithCauseStack()
			return nil, withTraceLocation(renderErr, file, err)
		}
		return ssr.Fragment(buf.String()), nil
	}, nil
}

// withTraceLocation records the first line/column found in err's message.
func withTraceLocation(ge *errors.GatewayError, file string, err error) *errors.GatewayError {
	locations := traceParser.Parse(err.Error())
	if len(locations) == 0 {
		return ge.WithLocation(file, 0, 0)
	}
	return ge.WithLocation(file, locations[0].Line, locations[0].Column)
}
