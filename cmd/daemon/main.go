// SPDX-License-Identifier: MIT

// Command daemon runs the aircast recording service: it supervises the
// audio encoder, watches its output directories and ships stable files to
// remote object storage, while exposing the admin HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aircast/aircast/internal/api"
	"github.com/aircast/aircast/internal/config"
	xlog "github.com/aircast/aircast/internal/log"
	"github.com/aircast/aircast/internal/media"
	"github.com/aircast/aircast/internal/recorder"
	"github.com/aircast/aircast/internal/store"
	"github.com/aircast/aircast/internal/supervisor"
	"github.com/aircast/aircast/internal/uploader"
	"github.com/aircast/aircast/internal/watcher"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aircast %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		base := xlog.Base()
		base.Fatal().Err(err).Msg("daemon failed")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel})
	logger := xlog.WithComponent("daemon")

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := buildUploadQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}

	w := watcher.New(cfg.Watcher.StabilityInterval, func(ev watcher.Event) {
		if queue == nil {
			return
		}
		name := filepath.Base(ev.Path)
		contentType, cacheControl := media.Classify(name)
		queue.Enqueue(uploader.Task{
			LocalPath:    ev.Path,
			RemoteKey:    media.RemoteKey(ev.SessionID, ev.Rendition, name),
			ContentType:  contentType,
			CacheControl: cacheControl,
		})
	})

	sup := supervisor.New(supervisor.EncoderConfig{
		BinaryPath:     cfg.Encoder.BinaryPath,
		InputFormat:    cfg.Encoder.InputFormat,
		Input:          cfg.Encoder.Input,
		Bitrate:        cfg.Encoder.Bitrate,
		SegmentSeconds: cfg.Encoder.SegmentSeconds,
		LiveWindow:     cfg.Encoder.LiveWindow,
		Container:      supervisor.Container(cfg.Encoder.Format),
	}, cfg.Encoder.StopGrace)

	rec := recorder.New(st, sup, w, cfg.DataDir)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.New(st, rec).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// A live recording is closed out cleanly before the process exits.
		if id := rec.CurrentSessionID(); id != "" {
			if _, err := rec.Stop(shutdownCtx, id); err != nil {
				logger.Error().Err(err).Str(xlog.FieldSessionID, id).Msg("forced stop on shutdown failed")
			}
		}
		w.Stop()
		if queue != nil {
			queue.Close()
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildUploadQueue wires the S3 uploader, or returns nil when no remote
// storage is configured (local-only operation).
func buildUploadQueue(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*uploader.Queue, error) {
	if !cfg.UploadsEnabled() {
		logger.Warn().Msg("no S3 endpoint configured, uploads disabled")
		return nil, nil
	}

	putter, err := uploader.NewS3Putter(ctx, uploader.S3Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("uploads enabled")
	return uploader.NewQueue(putter, cfg.Storage.QueueSize), nil
}
