package ssr

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/conneroisu/ssrgate/internal/errors"
)

// Executor invokes render entry points.
type Executor struct {
	// Timeout bounds a single render call. Zero means unbounded.
	Timeout time.Duration
}

// NewExecutor creates an executor with the given render timeout policy.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{Timeout: timeout}
}

type renderOutcome struct {
	html string
	err  error
}

// Execute runs entry and returns the complete fragment. The render is
// detached from ctx cancellation: a client that goes away does not abort
// it. Only the Timeout policy does.
func (e *Executor) Execute(ctx context.Context, entry EntryPoint, req *RenderRequest) (string, error) {
	if entry == nil {
		return "", errors.NewRenderError(errors.ErrCodeRenderFailed, "no render entry point", nil)
	}

	ctx = context.WithoutCancel(ctx)
	if e.Timeout <= 0 {
		out := e.run(ctx, entry, req)
		return out.html, out.err
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	done := make(chan renderOutcome, 1)
	go func() {
		done <- e.run(ctx, entry, req)
	}()

	select {
	case out := <-done:
		return out.html, out.err
	case <-ctx.Done():
		return "", errors.NewTimeoutError(e.Timeout, ctx.Err())
	}
}

func (e *Executor) run(ctx context.Context, entry EntryPoint, req *RenderRequest) (out renderOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = renderOutcome{
				err: errors.NewRenderError(errors.ErrCodeRenderPanic, "render panicked", fmt.Errorf("%v", r)).
					WithStack(string(debug.Stack())),
			}
		}
	}()

	result, err := entry(ctx, req)
	if err != nil {
		return renderOutcome{err: asRenderError(err)}
	}

	html, err := renderResult(ctx, result)
	if err != nil {
		return renderOutcome{err: asRenderError(err)}
	}
	return renderOutcome{html: html}
}

func renderResult(ctx context.Context, result RenderResult) (string, error) {
	switch r := result.(type) {
	case nil:
		return "", nil
	case Fragment:
		return string(r), nil
	case *Fragment:
		if r == nil {
			return "", nil
		}
		return string(*r), nil
	case ApplicationTree:
		return renderTree(ctx, r)
	case *ApplicationTree:
		if r == nil {
			return "", nil
		}
		return renderTree(ctx, *r)
	default:
		return "", fmt.Errorf("unsupported render result %T", result)
	}
}

func renderTree(ctx context.Context, tree ApplicationTree) (string, error) {
	if tree.Root == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := tree.Root.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func asRenderError(err error) error {
	if errors.IsRenderError(err) {
		return err
	}
	ge := errors.NewRenderError(errors.ErrCodeRenderFailed, "render failed", err)
	if inner, ok := errors.AsGatewayError(err); ok {
		ge.Stack = inner.Stack
		ge.Module = inner.Module
	}
	return ge
}
