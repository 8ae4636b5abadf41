package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"

	server "github.com/crewdhq/crewd/internal"
	"github.com/crewdhq/crewd/internal/api"
	"github.com/crewdhq/crewd/internal/archive"
	"github.com/crewdhq/crewd/internal/config"
	"github.com/crewdhq/crewd/internal/coord"
	"github.com/crewdhq/crewd/internal/event"
	"github.com/crewdhq/crewd/internal/event/repositoryimpl"
	"github.com/crewdhq/crewd/internal/watcher"
	"github.com/crewdhq/crewd/pkg/clog"
	"github.com/crewdhq/crewd/pkg/storage"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup event log
	if dir := filepath.Dir(env.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create db directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	repo, err := repositoryimpl.NewSQLiteRepository(env.DBPath)
	if err != nil {
		slog.Error("failed to open event store", "path", env.DBPath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	log := event.NewLog(repo)

	// Setup coordination core
	c := coord.New(log, coord.WithHasher(watcher.HashFile))
	if env.ReplayOnBoot {
		start := time.Now()
		if err := c.Replay(context.Background()); err != nil {
			slog.Error("failed to replay event log", "error", err)
			os.Exit(1)
		}
		slog.Info("replayed event log", "duration", time.Since(start))
	}

	// Setup archive storage
	var store storage.Storage
	switch env.ArchiveEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.ArchiveEnv.S3Bucket, env.ArchiveEnv.S3Prefix, env.ArchiveEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.ArchiveEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}
	exporter := archive.NewExporter(log, store)

	srv := server.NewServer(&env.BaseEnv, api.NewHandler(c, log, exporter))

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	p := pool.New().WithContext(ctx)

	monitor := coord.NewMonitor(c, env.SweepInterval, env.HeartbeatTimeout)
	p.Go(monitor.Run)

	if env.WatchEnv.Enabled {
		project, err := config.LoadProject(env.WatchEnv.ConfigFile)
		if err != nil {
			slog.Error("failed to load project config", "path", env.WatchEnv.ConfigFile, "error", err)
			os.Exit(1)
		}
		w := watcher.New(c, log, project.WatchRoots, project.Ignore)
		p.Go(w.Run)
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if err := p.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("background worker error", "error", err)
	}
}
