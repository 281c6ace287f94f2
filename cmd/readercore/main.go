package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yuanying/readercore/internal/config"
	"github.com/yuanying/readercore/internal/imagecache"
	"github.com/yuanying/readercore/internal/library"
	"github.com/yuanying/readercore/internal/logger"
	"github.com/yuanying/readercore/internal/store"
)

const (
	defaultJPEGQuality   = 85
	defaultMaxImageWidth = 1200
)

// cliOptions is the resolved configuration of one invocation.
type cliOptions struct {
	Config *config.Config
	Logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readercore",
		Short: "Import, paginate and track reading progress of EPUB and TXT books",
		Long: `readercore keeps a local library of EPUB and plain-text books.

It detects chapters, extracts their content as blocks, lays chapters out
into pages and records reading progress as a fraction of the whole book.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "Config file (YAML)")
	pf.String("data-dir", "", "Library directory (default: $XDG_DATA_HOME/readercore)")
	pf.String("cache-dir", "", "Image cache directory (default: <data-dir>/cache)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", logger.FormatText, "Log format: text, json")
	pf.Int("workers", 0, "Concurrent imports (default: number of CPUs)")
	pf.Int("max-image-width", defaultMaxImageWidth, "Maximum width of cached images in pixels")
	pf.Int("quality", defaultJPEGQuality, "JPEG quality of cached images (60-100)")
	pf.BoolP("verbose", "v", false, "Shorthand for --log-level debug")

	cmd.AddCommand(
		newImportCmd(),
		newBooksCmd(),
		newChaptersCmd(),
		newReadCmd(),
		newPaginateCmd(),
		newProgressCmd(),
		newRefineCmd(),
		newWatchCmd(),
	)
	return cmd
}

// readCLIOptions resolves flags, environment and config file into options.
func readCLIOptions(cmd *cobra.Command, _ []string) (*cliOptions, error) {
	flags := cmd.Flags()
	configFile, _ := flags.GetString("config")

	if verbose, _ := flags.GetBool("verbose"); verbose {
		if err := flags.Set("log-level", "debug"); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	return &cliOptions{
		Config: cfg,
		Logger: buildLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format),
	}, nil
}

// buildLogger creates the logger. level and format have been validated.
func buildLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return logger.New(logger.Config{Writer: w, Format: format, Level: lvl})
}

// app holds the services opened for a command.
type app struct {
	opts    *cliOptions
	store   *store.Store
	library *library.Service
}

func openApp(cmd *cobra.Command, args []string) (*app, error) {
	opts, err := readCLIOptions(cmd, args)
	if err != nil {
		return nil, err
	}
	cfg := opts.Config

	st, err := store.New(filepath.Join(cfg.DataDir, "db"), opts.Logger)
	if err != nil {
		return nil, err
	}
	images, err := imagecache.New(imagecache.Options{
		Dir:         cfg.CacheDir,
		MaxWidth:    cfg.Image.MaxWidth,
		JPEGQuality: cfg.Image.JPEGQuality,
		MaxFileSize: cfg.Image.MaxBytes,
		Logger:      opts.Logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		opts:  opts,
		store: st,
		library: library.New(library.Options{
			Store:   st,
			Images:  images,
			Workers: cfg.Workers,
			Logger:  opts.Logger,
		}),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp wraps a command body with service setup and teardown.
func withApp(run func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, args)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				a.opts.Logger.Warn("failed to close store", "error", err)
			}
		}()
		return run(cmd.Context(), cmd, a, args)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
