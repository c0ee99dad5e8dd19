package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coffersTech/logalytics/internal/engine"
	"github.com/coffersTech/logalytics/internal/notify"
	"github.com/coffersTech/logalytics/internal/server"
	"github.com/coffersTech/logalytics/internal/storage"
)

func main() {
	port := flag.Int("port", 8088, "HTTP port to listen on")
	token := flag.String("token", "", "API token; empty disables auth")
	retentionStr := flag.String("retention", "", "Record retention duration (e.g. 72h); empty keeps everything")
	archiveDir := flag.String("archive", "", "Directory for zstd archives of purged records; empty discards them")
	alertsFile := flag.String("alerts-file", "", "Line-delimited JSON file for alert persistence")
	natsURL := flag.String("nats-url", "", "NATS server URL for alert notifications; empty disables")
	natsSubject := flag.String("nats-subject", "", "NATS subject for alert notifications")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var retention time.Duration
	if *retentionStr != "" {
		var err error
		retention, err = time.ParseDuration(*retentionStr)
		if err != nil {
			logger.Error("invalid retention duration", "value", *retentionStr, "error", err)
			os.Exit(1)
		}
	}

	eng := engine.New(logger)
	eng.StartRateTicker(1 * time.Second)

	// Reload persisted alerts before anything can fire.
	if *alertsFile != "" {
		alerts, skipped, err := storage.LoadAlertsFile(*alertsFile)
		if err != nil {
			logger.Error("failed to load alert history", "path", *alertsFile, "error", err)
			os.Exit(1)
		}
		eng.AppendAlerts(alerts)
		logger.Info("alert history loaded",
			"path", *alertsFile, "alerts", len(alerts), "skipped", skipped)
	}

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", *natsURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		notifier := notify.NewNATSNotifier(nc, *natsSubject, logger)
		eng.AddNotificationHook(notifier.Notify)
		logger.Info("NATS alert notifier registered", "url", *natsURL)
	}

	var archive engine.ArchiveFunc
	if *archiveDir != "" {
		writer, err := storage.NewArchiveWriter(*archiveDir)
		if err != nil {
			logger.Error("failed to prepare archive directory", "dir", *archiveDir, "error", err)
			os.Exit(1)
		}
		archive = writer.Archive
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if retention > 0 {
		go eng.RunRetention(ctx, retention, 1*time.Hour, archive)
	}

	srv, err := server.NewAPIServer(eng, *token, logger)
	if err != nil {
		logger.Error("failed to build API server", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := srv.Start(addr); err != nil {
			logger.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if *alertsFile != "" {
		if err := storage.SaveAlertsFile(*alertsFile, eng.Alerts()); err != nil {
			logger.Error("failed to save alert history", "path", *alertsFile, "error", err)
		} else {
			logger.Info("alert history saved", "path", *alertsFile)
		}
	}

	logger.Info("exited gracefully")
}
