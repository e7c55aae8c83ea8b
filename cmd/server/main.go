package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nephi-asha/kishkumen/internal/handler"
	"github.com/nephi-asha/kishkumen/internal/infrastructure/logger"
	mailer "github.com/nephi-asha/kishkumen/internal/infrastructure/mail"
	"github.com/nephi-asha/kishkumen/internal/infrastructure/redis"
	"github.com/nephi-asha/kishkumen/internal/observability/tracing"
	"github.com/nephi-asha/kishkumen/internal/reliability/retry"
	"github.com/nephi-asha/kishkumen/internal/repository"
	"github.com/nephi-asha/kishkumen/internal/security/audit"
	"github.com/nephi-asha/kishkumen/internal/security/auth"
	"github.com/nephi-asha/kishkumen/internal/security/payment"
	"github.com/nephi-asha/kishkumen/internal/security/ratelimit"
	"github.com/nephi-asha/kishkumen/internal/service"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
	"github.com/nephi-asha/kishkumen/internal/worker"
	"github.com/nephi-asha/kishkumen/pkg/config"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting kishkumen server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing is a no-op without an OTLP endpoint
	shutdownTracing, err := tracing.Init(ctx, log, cfg.OtelExporterOtlpEndpoint, "kishkumen", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Database pool and global tables
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()

	if err := database.Bootstrap(ctx, db); err != nil {
		log.Error("failed to bootstrap global tables", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Repositories and tenancy
	userRepo := repository.NewPostgresUserRepository(db, log)
	tenantRepo := repository.NewPostgresTenantRepository(db, log)
	pendingRepo := repository.NewPendingRegistrationRepository(db, log)
	provisioner := tenancy.NewProvisioner(db, log)
	namespaces := tenancy.NewRouter(db, log)

	// 6. Security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "kishkumen", cfg.TokenTTL)
	hasher := auth.NewPasswordHasher(0)
	auditLogger := audit.NewLogger(log)

	var mail mailer.Mailer = mailer.NewLogMailer(log)
	if cfg.MailHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.MailHost,
			Port:     cfg.MailPort,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			From:     cfg.MailFrom,
		}, log)
	}

	// 7. Services
	reportCache := service.NewReportCache(cfg.ReportCacheTTL)
	authService := service.NewAuthService(userRepo, provisioner, tokenManager, hasher, mail, service.RegistrationSettings{
		RequireApproval: cfg.RegistrationApproval,
		ApprovalTTL:     cfg.ApprovalTokenTTL,
		OperatorEmail:   cfg.OperatorEmail,
		PublicBaseURL:   cfg.PublicBaseURL,
	}, log)
	userService := service.NewUserService(userRepo, tenantRepo, pendingRepo, hasher, log)
	catalogService := service.NewCatalogService(log)
	salesService := service.NewSalesService(reportCache, log)
	purchaseService := service.NewPurchaseService(log)
	expenseService := service.NewExpenseService(reportCache, log)
	reportService := service.NewReportService(reportCache, log)

	if cfg.BootstrapAdminEnabled() {
		if err := authService.EnsureSuperAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
			log.Error("failed to ensure super admin", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 8. Rate limiting: Redis when configured, in-process otherwise
	memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute)
	var limiter ratelimit.Limiter = memLimiter
	checks := map[string]handler.Pinger{"database": handler.PingerFunc(pool.Health)}

	if cfg.RedisURL != "" {
		redisClient, err := retry.Do(ctx, retry.DefaultConfig(), log, "redis connect", func(ctx context.Context) (*redis.Client, error) {
			return redis.NewClient(ctx, cfg.RedisURL, log)
		})
		if err != nil {
			log.Warn("redis unavailable, rate limiting stays in-process", slog.String("error", err.Error()))
		} else {
			defer redisClient.Close()
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitPerMinute, memLimiter, log)
			checks["redis"] = redisClient
		}
	}

	// 9. HTTP routes
	router := handler.NewRouter(handler.Routes{
		Auth:      handler.NewAuthHandler(authService, log),
		Health:    handler.NewHealthHandler(checks, log),
		Payments:  handler.NewPaymentHandler(payment.NewVerifier(cfg.PaymentSecretKey), log),
		Catalog:   handler.NewCatalogHandler(catalogService, log),
		Sales:     handler.NewSalesHandler(salesService, log),
		Purchases: handler.NewPurchaseHandler(purchaseService, log),
		Finance:   handler.NewFinanceHandler(expenseService, reportService, log),
		Users:     handler.NewUserHandler(userService, log),

		Tokens:         tokenManager,
		Namespaces:     namespaces,
		Limiter:        limiter,
		Audit:          auditLogger,
		Metrics:        promhttp.Handler(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
	})

	// 10. Reconcile worker in background
	reconcileWorker := worker.NewReconcileWorker(tenantRepo, namespaces, purchaseService, pendingRepo, log, cfg.ReconcileInterval)
	go reconcileWorker.Start(ctx)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("rate_limit_per_minute", cfg.RateLimitPerMinute),
		slog.Bool("registration_approval", cfg.RegistrationApproval),
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	memLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}
