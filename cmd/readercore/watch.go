package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yuanying/readercore/internal/library"
	"github.com/yuanying/readercore/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Import books dropped into a directory",
		Long: `watch imports every EPUB and TXT file already in <dir>, then keeps
importing files that appear or change there until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			return runWatch(ctx, a, args[0])
		}),
	}
	f := cmd.Flags()
	f.Duration("settle", 2*time.Second, "How long a file must stay unchanged before import")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func runWatch(ctx context.Context, a *app, dir string) error {
	cfg := a.opts.Config
	logger := a.opts.Logger

	w, err := watcher.New(logger, watcher.Options{SettleDelay: cfg.Watch.Settle})
	if err != nil {
		return err
	}
	defer w.Stop()
	if err := w.Watch(dir); err != nil {
		return err
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	existing, err := scanBooks(dir)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logImportResults(logger, a.library.Import(ctx, existing...))
	}

	go w.Start(ctx)
	logger.Info("watching for books", "dir", dir, "settle", cfg.Watch.Settle)

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping watch")
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case watcher.EventAdded, watcher.EventModified:
				logImportResults(logger, a.library.Import(ctx, ev.Path))
			case watcher.EventRemoved:
				logger.Info("book file removed, library entry kept", "path", ev.Path)
			}
		}
	}
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// scanBooks returns the importable files under dir, skipping hidden entries.
func scanBooks(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != dir && len(name) > 0 && name[0] == '.' {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, err := library.FormatOf(p); err == nil {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return paths, nil
}

func logImportResults(logger *slog.Logger, results []library.ImportResult) {
	for _, r := range results {
		if r.Err != nil {
			logger.Error("import failed", "path", r.Path, "error", r.Err)
		}
	}
}
