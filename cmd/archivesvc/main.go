// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/archivesvc/internal/archiver"
	"github.com/ManuGH/archivesvc/internal/config"
	"github.com/ManuGH/archivesvc/internal/control"
	"github.com/ManuGH/archivesvc/internal/db"
	"github.com/ManuGH/archivesvc/internal/fetch"
	"github.com/ManuGH/archivesvc/internal/jobqueue"
	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/persist"
	"github.com/ManuGH/archivesvc/internal/stitch"
	"github.com/ManuGH/archivesvc/internal/storage"
	"github.com/ManuGH/archivesvc/internal/telemetry"
	"github.com/ManuGH/archivesvc/internal/waveform"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownGrace = 30 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Configure(log.Config{Service: "archivesvc"})
		l := log.Base()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "archivesvc"})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName: "archivesvc",
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	database, err := db.Open(cfg.DBConnection)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(database); err != nil {
		logger.Fatal().Err(err).Msg("failed to run database migrations")
	}

	localPool := storage.NewPool(cfg.Storage.PoolSize, func() storage.Backend {
		return storage.NewFilesystem(cfg.Storage.LocalLocation)
	})
	publicPool, err := containerPool(cfg.Storage, cfg.Storage.PublicContainer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up public container")
	}
	privatePool, err := containerPool(cfg.Storage, cfg.Storage.PrivateContainer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up private container")
	}

	owner := "archivesvc-" + uuid.NewString()
	queue := jobqueue.New(database, owner,
		time.Duration(cfg.Archiver.PollSeconds)*time.Second)

	fetcher := fetch.NewProvider(fetch.ProviderConfig{
		AccountSID: cfg.Provider.AccountSID,
		AuthToken:  cfg.Provider.AuthToken,
		BaseURL:    cfg.Provider.BaseURL,
	}, localPool)
	stitcher := stitch.NewFFmpegSox(cfg.Tools.FFmpegPath, cfg.Tools.SoxPath,
		localPool, cfg.Tools.WorkingDirectory)
	generator := waveform.NewFFmpeg(cfg.Tools.FFmpegPath, localPool, cfg.Tools.WorkingDirectory)
	persister := persist.NewDefault(database, localPool, publicPool, privatePool)

	pipeline := archiver.NewPipeline(fetcher, stitcher, generator, persister,
		cfg.Archiver.TimestampFilenames)
	arch := archiver.New(queue, pipeline, cfg.Archiver.Threads,
		time.Duration(cfg.Archiver.RetrySeconds)*time.Second)

	controlServer := control.NewServer(cfg.ControlListen, arch)

	logger.Info().
		Str("version", version).
		Str("owner", owner).
		Int("threads", cfg.Archiver.Threads).
		Msg("starting archive service")

	arch.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(controlServer.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		arch.Stop()
		if err := arch.Join(shutdownGrace); err != nil {
			logger.Warn().Err(err).Msg("workers did not drain in time")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return controlServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("service exited with error")
	}
	logger.Info().Msg("service stopped")
}

// containerPool builds the bounded pool for one object container; an
// empty container name disables it.
func containerPool(cfg config.Storage, bucket string) (*storage.Pool, error) {
	if bucket == "" {
		return nil, nil
	}
	backend, err := storage.NewS3(storage.S3Config{
		Bucket:   bucket,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewPool(cfg.PoolSize, func() storage.Backend { return backend }), nil
}
