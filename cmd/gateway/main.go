package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/gateway"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/proxy"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/revalidate"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/tenant"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/config"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/logger"
)

func main() {
	cfg := config.LoadGatewayConfig()
	log := logger.New("gateway", logger.ParseLevel(config.GetString("LOG_LEVEL", "info")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rendererURL, err := url.Parse(cfg.RendererURL)
	if err != nil {
		log.Error("invalid renderer URL", "url", cfg.RendererURL, "error", err)
		os.Exit(1)
	}

	codes := append([]string{}, cfg.JournalCodes...)
	codes = append(codes, tenant.ScanEnvDir(cfg.TenantEnvDir)...)
	registry := tenant.NewRegistry(codes, cfg.DefaultJournal)
	resolver := tenant.NewResolver(registry, cfg.ProductionDomain, cfg.Languages, cfg.DefaultLanguage)
	tenants := tenant.NewConfigLoader(cfg.TenantEnvDir)
	log.Info("tenant registry loaded", "journals", len(registry.Codes()), "fallback", cfg.DefaultJournal)

	var invalidator revalidate.Invalidator
	if addr := strings.TrimSpace(cfg.CacheRedisAddr); addr != "" {
		invalidator, err = revalidate.NewRedisInvalidator(addr, cfg.CacheRedisPassword, cfg.CacheRedisDB)
		if err != nil {
			log.Error("artifact cache unreachable", "addr", addr, "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("no artifact cache configured, using in-memory invalidator")
		invalidator = revalidate.NewMemoryInvalidator()
	}

	chain := revalidate.NewChain(
		cfg.RevalidateAllowedIPs,
		revalidate.NewTenantConfigSecrets(tenants),
		cfg.RevalidateToken,
	)
	revalidateHandler := revalidate.NewHandler(chain, invalidator, log)

	limiter := proxy.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := proxy.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}
	defer limiter.Close()

	pdfRelay := proxy.NewPDFRelay(
		proxy.NewAllowlist(cfg.PDFAllowedHosts),
		limiter, cfg.PDFRateLimit, cfg.PDFRateWindow, cfg.PDFTimeout, log,
	)
	apiRelay := proxy.NewAPIRelay(cfg.APIBaseURL, cfg.DefaultJournal, log)

	router := gateway.NewRouter(log, resolver, cfg.StrictTenants, rendererURL, revalidateHandler, pdfRelay, apiRelay)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("gateway starting", "addr", cfg.Addr, "renderer", cfg.RendererURL)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("gateway stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
