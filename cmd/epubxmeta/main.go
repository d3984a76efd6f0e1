package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubxmeta/internal/config"
	"github.com/yuanying/epubxmeta/internal/xmeta"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

type cliOptions struct {
	ConfigPath string
	Config     config.Config
	Logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epubxmeta",
		Short: "Read and write extended EPUB metadata",
		Long: `epubxmeta reads and writes the extended metadata of EPUB files:
contributors for every MARC relator role (translators, illustrators,
editors, ...) and, for EPUB 3, the typed titles (subtitle, edition, ...).

It can also keep that metadata in sync with the columns of a small
SQLite book library.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (default: $"+config.EnvVar+" or "+config.DefaultFile+")")
	flags.String("log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", defaultLogFormat, "Log format: text, json")
	flags.BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(
		newReadCmd(),
		newWriteCmd(),
		newRolesCmd(),
		newLibraryCmd(),
	)
	return cmd
}

// readCLIOptions validates the persistent flags, loads the config file and
// builds the logger.
func readCLIOptions(cmd *cobra.Command) (*cliOptions, error) {
	flags := cmd.Flags()
	configFlag, _ := flags.GetString("config")
	level, _ := flags.GetString("log-level")
	format, _ := flags.GetString("log-format")
	verbose, _ := flags.GetBool("verbose")

	opts := &cliOptions{ConfigPath: config.Path(configFlag)}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg

	if !flags.Changed("log-level") && cfg.Logging.Level != "" {
		level = cfg.Logging.Level
	}
	if !flags.Changed("log-format") && cfg.Logging.Format != "" {
		format = cfg.Logging.Format
	}

	level = strings.ToLower(level)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid --log-level %q: must be one of debug, info, warn, error", level)
	}
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("invalid --log-format %q: must be text or json", format)
	}
	if verbose {
		level = "debug"
	}

	opts.Logger = buildLogger(cmd.ErrOrStderr(), level, format)
	return opts, nil
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: lv}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *cliOptions) service() *xmeta.Service {
	return xmeta.NewService(xmeta.Options{Logger: o.Logger})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
