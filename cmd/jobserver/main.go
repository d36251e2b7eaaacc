package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/jobserver"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/rebuild"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/store"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/tenant"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/ws"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/config"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/logger"
)

func main() {
	cfg := config.LoadJobServerConfig()
	log := logger.New("jobserver", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tenants := tenant.NewConfigLoader(cfg.Rebuild.TenantEnvDir)
	executor := rebuild.New(cfg.Rebuild, tenants, log)
	queue := jobserver.NewQueue(executor, cfg.Workers, cfg.QueueSize, log)
	defer queue.Close()

	jobLog, err := jobserver.NewJobLog(cfg.JobLogPath)
	if err != nil {
		log.Error("failed to open job log", "path", cfg.JobLogPath, "error", err)
		os.Exit(1)
	}
	defer jobLog.Close()

	var history jobserver.JobHistory
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := store.Migrate(ctx, dsn, cfg.MigrationsDir, log); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		history = store.New(pool)
		log.Info("job history store enabled")
	}

	deploy := jobserver.NewDeployRunner(cfg.DeployCommand, cfg.DeployTimeout, log)
	hub := ws.NewHub()

	router := jobserver.NewRouter(log, queue, jobLog, hub, history, deploy, cfg.DefaultJournal, cfg.AuthToken)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("job server starting", "addr", cfg.Addr, "workers", cfg.Workers)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("job server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
