// wadh-tui runs the configured addon batch in a terminal dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iconidentify/wadh/cmd/wadh-tui/internal/ui"
	"github.com/iconidentify/wadh/internal/browser"
	"github.com/iconidentify/wadh/internal/config"
	"github.com/iconidentify/wadh/internal/queue"
	"github.com/iconidentify/wadh/internal/repository"
	"github.com/iconidentify/wadh/internal/service"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	logPath := flag.String("log", "wadh-tui.log", "File receiving the application log")
	flag.Parse()

	if err := run(*configPath, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, logPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := config.NewLogger(cfg.Log, logFile)

	ctx := context.Background()
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

	events, err := service.NewEventService(service.EventServiceConfig{
		RingBufferSize: cfg.Events.BufferSize,
		SQLitePath:     cfg.Events.SQLitePath,
		RetentionDays:  cfg.Events.RetentionDays,
	}, logger)
	if err != nil {
		return fmt.Errorf("start event service: %w", err)
	}
	defer events.Close()

	coordinator := queue.NewCoordinator(host, queue.Config{}, logger.With("component", "queue"))
	defer coordinator.Close()

	batches := service.NewBatchService(
		coordinator,
		repository.NewInMemoryBatchRepository(10),
		events,
		service.BatchServiceConfig{
			DefaultFolder: cfg.Download.Folder,
			CleanFolder:   cfg.Download.CleanFolder,
			MinFreeBytes:  cfg.Download.MinFreeBytes,
		},
		logger,
	)

	app := ui.NewApp(batches, events, cfg.Download.URLs, cfg.Download.Folder, logger)
	runErr := app.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := batches.Shutdown(shutdownCtx); err != nil {
		logger.Error("batch shutdown error", "error", err)
	}
	return runErr
}
