package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/cache"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/config"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/database"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/metrics"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/telemetry"
	"github.com/servicelane/sms-compliance-gateway/internal/infrastructure/transport"
	auditsvc "github.com/servicelane/sms-compliance-gateway/internal/service/audit"
	compliancesvc "github.com/servicelane/sms-compliance-gateway/internal/service/compliance"
	consentsvc "github.com/servicelane/sms-compliance-gateway/internal/service/consent"
	dncsvc "github.com/servicelane/sms-compliance-gateway/internal/service/dnc"
	"github.com/servicelane/sms-compliance-gateway/internal/service/gateway"
	"github.com/servicelane/sms-compliance-gateway/internal/service/optout"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	defer redisClient.Close()

	registry, err := metrics.NewRegistry()
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	tenantRepo := database.NewTenantRepository(pool)
	consentRepo := database.NewConsentRepository(pool)
	optOutRepo := database.NewOptOutRepository(pool)
	dncRepo := database.NewDNCRepository(pool)
	auditRepo := database.NewAuditRepository(pool)

	decisionCache := cache.NewDecisionCache(redisClient, cfg.Compliance.DecisionCacheTTL)
	auditLog := auditsvc.NewLog(auditRepo, logger, registry)

	complianceSvc := compliancesvc.NewService(
		logger, tenantRepo, consentRepo, optOutRepo, dncRepo,
		decisionCache, auditLog, registry, cfg.Compliance.DefaultTimezone,
	)
	recorder := consentsvc.NewRecorder(logger, consentRepo, optOutRepo, decisionCache, auditLog)
	dncRegistry := dncsvc.NewRegistry(logger, dncRepo, decisionCache, auditLog)
	inbound := optout.NewHandler(logger, recorder)

	var messageTransport gateway.Transport
	if cfg.Provider.BaseURL != "" {
		messageTransport = transport.NewProviderClient(cfg.Provider, logger)
	} else {
		logger.Warn("no provider configured, using log transport")
		messageTransport = transport.NewLogTransport(logger)
	}

	gatewaySvc := gateway.NewService(
		logger, tenantRepo, complianceSvc, recorder, messageTransport,
		auditLog, registry, cfg.Compliance.RateLimitPerSecond, cfg.Compliance.RateBurst,
	)

	mux := http.NewServeMux()
	handler := &apiHandler{
		logger:     logger,
		gateway:    gatewaySvc,
		compliance: complianceSvc,
		recorder:   recorder,
		dncReg:     dncRegistry,
		inbound:    inbound,
	}
	handler.routes(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
