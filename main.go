package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forestmonster/rsmf-browser/config"
	"github.com/forestmonster/rsmf-browser/export"
	"github.com/forestmonster/rsmf-browser/progress"
	"github.com/forestmonster/rsmf-browser/server"
	"github.com/forestmonster/rsmf-browser/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rsmf-browser",
		Short: "Browse and export RSMF chat archives",
	}
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newInspectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the archive browser HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServe(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg.LogLevel, cfg.LogDir)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()
			slog.SetDefault(logger)

			return runServe(cfg, logger)
		},
	}
	config.RegisterServeFlags(cmd)
	return cmd
}

func runServe(cfg config.ServeConfig, logger *slog.Logger) error {
	srv, err := server.New(server.Options{
		StaticDir: cfg.StaticDir,
		UploadDir: cfg.UploadDir,
	}, logger)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting rsmf-browser", "listen", cfg.Listen, "static", cfg.StaticDir, "uploads", cfg.UploadDir)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the raw RSMF units of an archive to mbox or IMAP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadExport(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg.LogLevel, cfg.LogDir)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()
			slog.SetDefault(logger)

			return runExport(cfg, logger)
		},
	}
	if err := config.RegisterExportFlags(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func runExport(cfg config.ExportConfig, logger *slog.Logger) error {
	opts := export.Options{
		ArchivePath: cfg.ArchivePath,
		Channel:     cfg.Channel,
	}

	total, err := export.CountUnits(opts)
	if err != nil {
		return err
	}
	logger.Info("starting export",
		"archive", cfg.ArchivePath, "format", cfg.Format, "units", total, "dryRun", cfg.DryRun)

	appender, err := newAppender(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := progress.New(total, cfg.LogLevel)
	reporter := progress.NewReporter(bar, logger)

	events := make(chan stats.Event, 128)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reporter.Consume(ctx, events)
	}()

	runErr := export.Run(ctx, opts, appender, events, logger)
	close(events)
	<-done

	if err := appender.Close(); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			logger.Warn("appender close failed", "err", err)
		}
	}
	return runErr
}

func newAppender(cfg config.ExportConfig, logger *slog.Logger) (export.Appender, error) {
	switch cfg.Format {
	case "mbox":
		if cfg.DryRun {
			return nopAppender{logger: logger}, nil
		}
		return export.NewMboxAppender(cfg.OutPath)
	case "imap":
		return export.NewIMAPAppender(export.IMAPOptions{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			FolderPrefix:       cfg.FolderPrefix,
			DryRun:             cfg.DryRun,
		}, logger)
	default:
		return nil, fmt.Errorf("invalid format: %s", cfg.Format)
	}
}

type nopAppender struct {
	logger *slog.Logger
}

func (n nopAppender) Append(ctx context.Context, unit export.Unit) error {
	if n.logger != nil {
		n.logger.Debug("dry-run export", "entry", unit.Entry, "channel", unit.Channel)
	}
	return nil
}

func (n nopAppender) Close() error { return nil }

func setupLogger(logLevel, logDir string) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch logLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(logDir, fmt.Sprintf("rsmf-browser-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
