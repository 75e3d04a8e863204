package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// ServeConfig captures the command-line options of the serve command.
type ServeConfig struct {
	Listen    string
	StaticDir string
	UploadDir string
	LogLevel  string
	LogDir    string
}

// ExportConfig captures the command-line options of the export command.
type ExportConfig struct {
	ArchivePath        string
	Channel            string
	Format             string
	OutPath            string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	FolderPrefix       string
	DryRun             bool
	LogLevel           string
	LogDir             string
}

// RegisterServeFlags attaches the serve command's flags.
func RegisterServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("listen", ":5000", "Address the HTTP server listens on")
	flags.String("static-dir", "static", "Directory holding the browser UI")
	flags.String("upload-dir", "uploads", "Directory for spooled archive uploads")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs to stdout only when empty)")
}

// LoadServe converts the parsed Cobra flags into a ServeConfig with validation.
func LoadServe(cmd *cobra.Command) (ServeConfig, error) {
	flags := cmd.Flags()

	listen, err := flags.GetString("listen")
	if err != nil {
		return ServeConfig{}, err
	}
	staticDir, err := flags.GetString("static-dir")
	if err != nil {
		return ServeConfig{}, err
	}
	uploadDir, err := flags.GetString("upload-dir")
	if err != nil {
		return ServeConfig{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return ServeConfig{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:    listen,
		StaticDir: filepath.Clean(staticDir),
		UploadDir: filepath.Clean(uploadDir),
		LogLevel:  normalizeLogLevel(logLevel),
		LogDir:    logDir,
	}

	if err := validateServe(cfg); err != nil {
		return ServeConfig{}, err
	}

	return cfg, nil
}

func validateServe(cfg ServeConfig) error {
	if cfg.Listen == "" {
		return fmt.Errorf("--listen must not be empty")
	}
	if cfg.UploadDir == "" {
		return fmt.Errorf("--upload-dir must not be empty")
	}
	return validateLogLevel(cfg.LogLevel)
}

// RegisterExportFlags attaches the export command's flags.
func RegisterExportFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("archive", "", "Path to the outer .zip archive to export")
	flags.String("channel", "", "Restrict the export to one channel id")
	flags.String("format", "mbox", "Export format: mbox or imap")
	flags.String("out", "export.mbox", "Output path for the mbox format")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("folder-prefix", "RSMF", "Parent IMAP mailbox for the per-channel mailboxes")
	flags.Bool("dry-run", false, "Walk the archive and emit stats without writing anywhere")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs to stdout only when empty)")

	return cmd.MarkFlagRequired("archive")
}

// LoadExport converts the parsed Cobra flags into an ExportConfig with validation.
func LoadExport(cmd *cobra.Command) (ExportConfig, error) {
	flags := cmd.Flags()

	archivePath, err := flags.GetString("archive")
	if err != nil {
		return ExportConfig{}, err
	}
	channel, err := flags.GetString("channel")
	if err != nil {
		return ExportConfig{}, err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return ExportConfig{}, err
	}
	outPath, err := flags.GetString("out")
	if err != nil {
		return ExportConfig{}, err
	}
	imapHost, err := flags.GetString("imap-host")
	if err != nil {
		return ExportConfig{}, err
	}
	imapPort, err := flags.GetInt("imap-port")
	if err != nil {
		return ExportConfig{}, err
	}
	imapUser, err := flags.GetString("imap-user")
	if err != nil {
		return ExportConfig{}, err
	}
	imapPass, err := flags.GetString("imap-pass")
	if err != nil {
		return ExportConfig{}, err
	}
	useTLS, err := flags.GetBool("use-tls")
	if err != nil {
		return ExportConfig{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return ExportConfig{}, err
	}
	folderPrefix, err := flags.GetString("folder-prefix")
	if err != nil {
		return ExportConfig{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return ExportConfig{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return ExportConfig{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return ExportConfig{}, err
	}

	if imapPass == "" {
		imapPass = os.Getenv("IMAP_PASS")
	}

	cfg := ExportConfig{
		ArchivePath:        archivePath,
		Channel:            channel,
		Format:             strings.ToLower(format),
		OutPath:            outPath,
		IMAPHost:           imapHost,
		IMAPPort:           imapPort,
		IMAPUser:           imapUser,
		IMAPPass:           imapPass,
		UseTLS:             useTLS,
		InsecureSkipVerify: insecureSkipVerify,
		FolderPrefix:       folderPrefix,
		DryRun:             dryRun,
		LogLevel:           normalizeLogLevel(logLevel),
		LogDir:             logDir,
	}

	if err := validateExport(cfg); err != nil {
		return ExportConfig{}, err
	}

	return cfg, nil
}

func validateExport(cfg ExportConfig) error {
	if cfg.ArchivePath == "" {
		return fmt.Errorf("--archive is required")
	}

	switch cfg.Format {
	case "mbox":
		if cfg.OutPath == "" {
			return fmt.Errorf("--out must not be empty for the mbox format")
		}
	case "imap":
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required for the imap format")
		}
		if cfg.IMAPUser == "" && !cfg.DryRun {
			return fmt.Errorf("--imap-user is required for the imap format")
		}
		if cfg.IMAPPass == "" && !cfg.DryRun {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("invalid --format: %s", cfg.Format)
	}

	return validateLogLevel(cfg.LogLevel)
}

func normalizeLogLevel(level string) string {
	level = strings.ToLower(level)
	if level == "warning" {
		level = "warn"
	}
	return level
}

func validateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid --log-level: %s", level)
	}
}
