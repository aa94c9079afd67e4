// Command doodled serves the doodle wall API, its images and the live
// channel.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/argo/doodlewall/api"
	"github.com/argo/doodlewall/api/validator"
	"github.com/argo/doodlewall/blob"
	"github.com/argo/doodlewall/config"
	"github.com/argo/doodlewall/gallery"
	"github.com/argo/doodlewall/imaging"
	"github.com/argo/doodlewall/live"
	"github.com/argo/doodlewall/postgres"
	"github.com/argo/doodlewall/redis"
)

// imageStore is implemented by both blob backends.
type imageStore interface {
	gallery.BlobStore
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Could not load config", "error", err.Error())
		os.Exit(1)
	}
	logger := newLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err.Error())
		os.Exit(1)
	}
}

func newLogger(cfg *config.AppConfig) *slog.Logger {
	if cfg.Development() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newImageStore(ctx context.Context, cfg config.StorageConfig) (imageStore, error) {
	if cfg.Driver == "minio" {
		return blob.NewBucket(ctx, blob.BucketOptions{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
			Region:    cfg.Region,
		})
	}
	return blob.NewDir(cfg.Dir)
}

func run(cfg *config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	images, err := newImageStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	hub := live.NewHub(logger, cfg.AllowOrigins)

	handler := &api.API{
		Logger: logger,
		Submitter: &gallery.Pipeline{
			Logger:    logger,
			Store:     pg,
			Cache:     rdb,
			Images:    imaging.Processor{},
			Blobs:     images,
			Publisher: hub,
		},
		Reactor: &gallery.Ledger{
			Logger:    logger,
			Store:     pg,
			Cache:     rdb,
			Publisher: hub,
		},
		Feed: &gallery.Feed{
			Logger: logger,
			Store:  pg,
			Cache:  rdb,
			TTL:    cfg.Cache.TTL,
		},
		Live:    hub,
		Images:  images,
		Limiter: rdb,
		Val:     validator.New(),
		UploadLimit: api.RateLimit{
			Limit:  cfg.RateLimit.Uploads,
			Window: cfg.RateLimit.UploadWindow,
		},
		ReactionLimit: api.RateLimit{
			Limit:  cfg.RateLimit.Reactions,
			Window: cfg.RateLimit.ReactionWindow,
		},
		AllowOrigins: cfg.AllowOrigins,
		TrustProxy:   cfg.HTTP.TrustProxy,
		Diagnostic:   cfg.Development(),
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		hub.Close()
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err.Error())
		srv.Close()
	}
	logger.Info("Server exited cleanly")
	return nil
}
