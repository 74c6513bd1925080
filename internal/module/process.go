package module

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/conneroisu/ssrgate/internal/errors"
	"github.com/conneroisu/ssrgate/internal/ssr"
	"github.com/conneroisu/ssrgate/internal/validation"
)

// Environment variables handed to process modules.
const (
	EnvURL  = "SSR_URL"
	EnvPath = "SSR_PATH"
	EnvMode = "SSR_MODE"
)

var allowedCommands = map[string]bool{
	"go": true,
}

// newGoRunEntry runs a Go source file with `go run` for every render. The
// file's directory is the working directory so compiler diagnostics are
// reported relative to it.
func newGoRunEntry(name, file, goBinary string) (ssr.EntryPoint, error) {
	if err := validation.ValidateCommand(goBinary, allowedCommands); err != nil {
		return nil, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, name, err)
	}
	base := filepath.Base(file)
	if err := validation.ValidateArgument(base); err != nil {
		return nil, errors.NewModuleLoadError(errors.ErrCodeModuleLoad, name, fmt.Errorf("invalid module file name: %w", err))
	}

	return func(ctx context.Context, req *ssr.RenderRequest) (ssr.RenderResult, error) {
		cmd := exec.CommandContext(ctx, goBinary, "run", base)
		cmd.Dir = filepath.Dir(file)
		return runProcess(cmd, name, req)
	}, nil
}

// newExecutableEntry runs file directly for every render.
func newExecutableEntry(name, file string) ssr.EntryPoint {
	return func(ctx context.Context, req *ssr.RenderRequest) (ssr.RenderResult, error) {
		cmd := exec.CommandContext(ctx, file)
		cmd.Dir = filepath.Dir(file)
		return runProcess(cmd, name, req)
	}
}

// runProcess treats stdout as the rendered fragment and stderr as the trace
// reported when the process fails.
func runProcess(cmd *exec.Cmd, name string, req *ssr.RenderRequest) (ssr.RenderResult, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		EnvURL+"="+req.URL,
		EnvPath+"="+req.Path,
		EnvMode+"="+req.Mode.String(),
	)

	if err := cmd.Run(); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed, "render process failed", err).
			WithModule(name).
			WithStack(stderr.String())
	}
	return ssr.Fragment(stdout.String()), nil
}

func isExecutable(info os.FileInfo) bool {
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}
