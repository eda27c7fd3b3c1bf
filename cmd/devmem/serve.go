package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/devmem/internal/config"
	"github.com/HendryAvila/devmem/internal/engine"
	devserver "github.com/HendryAvila/devmem/internal/server"
	"github.com/HendryAvila/devmem/internal/telemetry"
	"github.com/HendryAvila/devmem/internal/updater"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checkUpdates, _ := cmd.Flags().GetBool("check-updates")
			return runServe(cmd, checkUpdates)
		},
	}
	cmd.Flags().Bool("check-updates", true, "Log a notice when a newer release exists")
	return cmd
}

func runServe(cmd *cobra.Command, checkUpdates bool) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Stdout carries the MCP transport; logs go to the log file only.
	rt, err := openSession(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if checkUpdates {
		go logUpdate(ctx, rt.engine.Logger())
	}

	s := devserver.New(rt.engine)
	rt.engine.Logger().Info("serving MCP over stdio", "version", devserver.Version)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// logUpdate runs a best-effort release check.
func logUpdate(ctx context.Context, logger *slog.Logger) {
	res := updater.CheckVersion(ctx, devserver.Version)
	if res.UpdateAvailable {
		logger.Info("update available",
			"current", res.CurrentVersion,
			"latest", res.LatestVersion,
			"release", res.ReleaseURL,
		)
	}
}

// session is an opened engine plus the resources that must be released
// with it.
type session struct {
	engine  *engine.Engine
	closers []func() error
}

// openSession loads config for the --root flag, then opens logging,
// telemetry and the engine. With quiet set, logs skip stderr.
func openSession(ctx context.Context, cmd *cobra.Command, quiet bool) (*session, error) {
	root, _ := cmd.Flags().GetString("root")
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, logFile, err := telemetry.NewLogger(cfg.MetaDir, cfg.LogLevel, quiet)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	rt := &session{closers: []func() error{logFile.Close}}

	provider, err := telemetry.Init(ctx, cfg.OTel)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		provider = telemetry.Noop()
	}
	rt.closers = append(rt.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return provider.Shutdown(shutdownCtx)
	})

	metrics, err := telemetry.NewMetrics(provider.Meter)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	e, err := engine.Open(ctx, cfg,
		engine.WithLogger(logger),
		engine.WithTelemetry(metrics, provider.Tracer),
	)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("opening engine: %w", err)
	}
	rt.engine = e
	rt.closers = append(rt.closers, e.Close)
	return rt, nil
}

// Close releases everything in reverse order of acquisition.
func (rt *session) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}
