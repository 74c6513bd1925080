package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conneroisu/ssrgate/internal/config"
	"github.com/conneroisu/ssrgate/internal/server"
	"github.com/conneroisu/ssrgate/internal/ssr"
	"github.com/conneroisu/ssrgate/internal/version"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const shutdownTimeout = 10 * time.Second

var serveBindings = []flagBinding{
	{flag: "port", key: "server.port"},
	{flag: "host", key: "server.host"},
	{flag: "open", key: "server.open"},
	{flag: "env", key: "env"},
	{flag: "hot-reload", key: "development.hot_reload"},
	{flag: "render-timeout", key: "render.timeout"},
	{flag: "compress", key: "production.compression"},
}

func (a *app) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Start the SSR gateway",
		Long: `Start the SSR gateway on the configured address.

The mode comes from SSRGATE_ENV (or --env): "production" serves the built
artifacts under dist/, anything else runs in development mode with per-request
reloading and browser live reload.

Examples:
  ssrgate serve                          # development on localhost:3001
  ssrgate serve --port 8080 --open       # open the browser once listening
  SSRGATE_ENV=production ssrgate serve   # serve dist/client and dist/server`,
		RunE: a.runServe,
	}

	fs := cmd.Flags()
	fs.IntP("port", "p", config.DefaultPort, "Port to serve on (0 picks a free port)")
	fs.String("host", config.DefaultHost, "Host to bind to")
	fs.Bool("open", false, "Open the browser once the server is listening")
	fs.String("env", "development", "Rendering mode (development, production)")
	fs.Bool("hot-reload", true, "Watch files and reload the browser (development only)")
	fs.Duration("render-timeout", 0, "Maximum duration of one render, 0 waits indefinitely")
	fs.Bool("compress", true, "Gzip responses (production only)")

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd, serveBindings...)
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if used := a.configFileUsed(); used != "" {
		logger.Info(ctx, "Using config file", "path", used)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		_ = srv.Shutdown(context.Background())
		return err
	}

	url := "http://" + srv.Addr()
	printBanner(cmd.OutOrStdout(), srv.Mode(), cfg, url)

	if cfg.Server.Open {
		go openBrowser(ctx, srv.Addr(), logger)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		_ = srv.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}

func printBanner(w io.Writer, mode ssr.Mode, cfg *config.Config, url string) {
	title := cases.Title(language.English)

	fmt.Fprintf(w, "\n  ssrgate %s\n\n", version.Short())
	fmt.Fprintf(w, "  ➜ Local:  %s\n", url)
	fmt.Fprintf(w, "  ➜ Mode:   %s\n", title.String(mode.String()))
	if mode == ssr.Development {
		reload := "off"
		if cfg.Development.HotReload {
			reload = "on"
		}
		fmt.Fprintf(w, "  ➜ Reload: %s\n", reload)
	}
	fmt.Fprintln(w)
}
