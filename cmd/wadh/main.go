package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/wadh/internal/api"
	"github.com/iconidentify/wadh/internal/api/handler"
	"github.com/iconidentify/wadh/internal/browser"
	"github.com/iconidentify/wadh/internal/config"
	"github.com/iconidentify/wadh/internal/domain"
	"github.com/iconidentify/wadh/internal/queue"
	"github.com/iconidentify/wadh/internal/repository"
	"github.com/iconidentify/wadh/internal/service"
	"github.com/iconidentify/wadh/internal/storage"
	"github.com/iconidentify/wadh/internal/worker"
	"github.com/iconidentify/wadh/pkg/curse"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	inspect := flag.String("inspect", "", "Print the addon metadata of a saved addon page and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wadh %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if *inspect != "" {
		if err := inspectPage(*inspect); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting wadh",
		"version", Version,
		"build_time", BuildTime,
		"addons", len(cfg.Download.URLs),
		"folder", cfg.Download.Folder,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("wadh failed", "error", err)
		os.Exit(1)
	}
}

func inspectPage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	meta, err := curse.ParseMetadataHTML(f)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		curse.Metadata
		DownloadURL string `json:"download_url"`
	}{meta, meta.DownloadURL()})
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host, err := browser.NewChromeHost(ctx, browser.ChromeConfig{
		ExecPath:       cfg.Browser.ExecPath,
		UserDataDir:    cfg.Browser.UserDataDir,
		UserAgent:      cfg.Browser.UserAgent,
		Headless:       cfg.Browser.Headless,
		NoSandbox:      cfg.Browser.NoSandbox,
		StartupTimeout: cfg.Browser.StartupTimeout,
	}, logger.With("component", "browser"))
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer host.Close()

	eventSvc, err := service.NewEventService(service.EventServiceConfig{
		RingBufferSize: cfg.Events.BufferSize,
		SQLitePath:     cfg.Events.SQLitePath,
		RetentionDays:  cfg.Events.RetentionDays,
	}, logger)
	if err != nil {
		return fmt.Errorf("start event service: %w", err)
	}
	defer eventSvc.Close()

	coordinator := queue.NewCoordinator(host, queue.Config{}, logger.With("component", "queue"))
	defer coordinator.Close()
	// A signal aborts the running batch at once.
	defer context.AfterFunc(ctx, coordinator.Close)()

	batchSvc := service.NewBatchService(
		coordinator,
		repository.NewInMemoryBatchRepository(100),
		eventSvc,
		service.BatchServiceConfig{
			DefaultFolder: cfg.Download.Folder,
			CleanFolder:   cfg.Download.CleanFolder,
			MinFreeBytes:  cfg.Download.MinFreeBytes,
		},
		logger,
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := batchSvc.Shutdown(shutdownCtx); err != nil {
			logger.Error("batch shutdown error", "error", err)
		}
	}()

	if !cfg.Server.Enabled && cfg.Schedule.Cron == "" {
		return runOnce(ctx, batchSvc, cfg, logger)
	}
	return serve(ctx, cfg, batchSvc, eventSvc, logger)
}

// runOnce downloads the configured addons and reports the outcome.
func runOnce(ctx context.Context, batchSvc *service.BatchService, cfg *config.Config, logger *slog.Logger) error {
	record, err := batchSvc.Run(ctx, cfg.Download.URLs, cfg.Download.Folder)
	if err != nil {
		return err
	}

	for _, f := range record.Files {
		logger.Info("downloaded", "addon", f.Addon, "path", f.Path, "size", f.Size, "blake2b", f.Checksum)
	}
	logger.Info(fmt.Sprintf("Completed %d/%d addons.", record.Finished, record.Total),
		"status", record.Status,
		"unprocessed", record.Unprocessed,
	)

	switch record.Status {
	case domain.BatchStatusCompleted:
		return nil
	case domain.BatchStatusCancelled:
		return errors.New("batch cancelled")
	default:
		return errors.New(record.LastError)
	}
}

// serve runs the HTTP API and the scheduler until ctx is done.
func serve(ctx context.Context, cfg *config.Config, batchSvc *service.BatchService, eventSvc *service.EventService, logger *slog.Logger) error {
	scheduler, err := worker.NewScheduler(worker.Config{
		Spec:   cfg.Schedule.Cron,
		URLs:   cfg.Download.URLs,
		Folder: cfg.Download.Folder,
	}, batchSvc, eventSvc, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	scheduler.Start()
	g.Go(func() error {
		<-gctx.Done()
		return scheduler.Stop(shutdownTimeout)
	})

	if cfg.Server.Enabled {
		var folder *storage.Folder
		if cfg.Download.Folder != "" {
			folder = storage.NewFolder(cfg.Download.Folder, logger)
		}
		router := api.NewRouter(
			handler.NewBatchHandler(batchSvc, logger),
			handler.NewEventHandler(eventSvc, logger),
			handler.NewHealthHandler(batchSvc, eventSvc, folder),
			cfg.Server.APIKey,
			logger,
		)
		srv := &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  2 * time.Minute,
		}

		g.Go(func() error {
			logger.Info("starting HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
