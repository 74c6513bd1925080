package cmd

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/conneroisu/ssrgate/internal/logging"
	"github.com/conneroisu/ssrgate/internal/validation"
)

func openBrowser(ctx context.Context, addr string, logger logging.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(100 * time.Millisecond):
	}

	// The URL reaches a system command.
	url, err := validation.BrowserURL(addr)
	if err != nil {
		logger.Warn(ctx, err, "Browser open failed due to invalid URL", "addr", addr)
		return
	}

	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		logger.Warn(ctx, err, "Failed to open browser", "url", url)
	}
}
