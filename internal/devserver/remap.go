package devserver

import (
	"os"
	"path/filepath"

	"github.com/conneroisu/ssrgate/internal/errors"
)

// RemapStackTrace rewrites the locations in err's trace to project-relative
// paths and appends an excerpt of the first one. Errors whose trace names no
// project file are returned unchanged.
func (s *Server) RemapStackTrace(err error) error {
	if err == nil {
		return nil
	}

	ge, ok := errors.AsGatewayError(err)
	if !ok {
		ge = errors.NewInternalError(errors.ErrCodeInternalError, "request failed", err)
	}

	trace := ge.Stack
	if trace == "" {
		trace = ge.Error()
	}

	remapped, loc := s.parser.Remap(trace, s.resolveTraceFile)
	if loc == nil {
		return err
	}

	out := ge.Clone()
	out.Stack = remapped
	if out.FilePath == "" || out.Line == 0 {
		out.FilePath = loc.File
		out.Line = loc.Line
		out.Column = loc.Column
	} else {
		out.FilePath = s.display(out.FilePath)
	}
	return out
}

// resolveTraceFile maps a file named in a trace to its project-relative
// display path and its absolute location.
func (s *Server) resolveTraceFile(file string) (string, string, bool) {
	if filepath.IsAbs(file) {
		rel, inside := s.relative(file)
		if !inside || !exists(file) {
			return "", "", false
		}
		return rel, file, true
	}

	candidates := []string{filepath.Join(s.root, file)}
	for _, dir := range s.graph.dirs() {
		candidates = append(candidates, filepath.Join(dir, file))
	}
	// html/template reports bare file names.
	base := filepath.Base(file)
	for _, p := range s.graph.paths() {
		if filepath.Base(p) == base {
			candidates = append(candidates, p)
		}
	}

	for _, candidate := range candidates {
		if exists(candidate) {
			return s.display(candidate), candidate, true
		}
	}
	return "", "", false
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
