package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"TradeDeskPlatform/pkg/config"
	"TradeDeskPlatform/pkg/database"
	pkggrpc "TradeDeskPlatform/pkg/grpc"
	"TradeDeskPlatform/pkg/health"
	"TradeDeskPlatform/pkg/logger"
	pkgmetrics "TradeDeskPlatform/pkg/metrics"
	"TradeDeskPlatform/pkg/rabbitmq"
	"TradeDeskPlatform/pkg/ratelimit"
	pkgredis "TradeDeskPlatform/pkg/redis"
	"TradeDeskPlatform/services/tenant-service/internal/booking"
	"TradeDeskPlatform/services/tenant-service/internal/events"
	handlerhttp "TradeDeskPlatform/services/tenant-service/internal/handler/http"
	"TradeDeskPlatform/services/tenant-service/internal/jobs"
	tenancymetrics "TradeDeskPlatform/services/tenant-service/internal/metrics"
	"TradeDeskPlatform/services/tenant-service/internal/middleware"
	"TradeDeskPlatform/services/tenant-service/internal/policy"
	"TradeDeskPlatform/services/tenant-service/internal/provisioner"
	"TradeDeskPlatform/services/tenant-service/internal/repository"
	"TradeDeskPlatform/services/tenant-service/internal/repository/postgres"
	cachedrepo "TradeDeskPlatform/services/tenant-service/internal/repository/redis"
	"TradeDeskPlatform/services/tenant-service/internal/resolver"
	"TradeDeskPlatform/services/tenant-service/internal/tenancy"
)

const (
	serviceName    = "tenant-service"
	serviceVersion = "v1.0.0"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.Environment, cfg.Logger.Level, serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Service stopped with error", logger.Error(err))
		appLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Starting tenant service",
		logger.String("version", serviceVersion),
		logger.String("environment", cfg.Environment))

	shutdownTracing := pkgmetrics.InitializeOpenTelemetry(serviceName, serviceVersion)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			appLogger.Warn("Failed to shutdown tracer provider", logger.Error(err))
		}
	}()

	// PostgreSQL обязателен
	pg, err := database.Connect(ctx, database.FromAppConfig(cfg.Database))
	if err != nil {
		return err
	}
	defer pg.Close()
	db := pg.DB()
	appLogger.Info("Database connection established")

	healthChecker := health.NewCompositeHealthChecker(serviceVersion, 2*time.Second)
	healthChecker.Register("postgres", true, pg.HealthCheck)

	httpMetrics := pkgmetrics.NewMetrics(serviceName)
	tenancyMetrics := tenancymetrics.NewTenancyMetrics(serviceName, prometheus.DefaultRegisterer)

	registryDir := postgres.NewTenantDirectory(db, cfg.Tenancy.RegistrySchema)
	var directory repository.TenantDirectory = registryDir
	var cache repository.CacheInvalidator
	var limiter ratelimit.RateLimiter

	// Redis необязателен: без него нет кэша и ограничения регистраций
	if cfg.Redis.Addr != "" {
		rc, err := pkgredis.Connect(ctx, pkgredis.FromAppConfig(cfg.Redis))
		if err != nil {
			appLogger.Warn("Redis unavailable, running without tenant cache and rate limiting", logger.Error(err))
		} else {
			defer rc.Close()
			cached := cachedrepo.NewCachedDirectory(registryDir, rc.Client,
				config.Duration(cfg.Tenancy.CacheTTL, 30*time.Second), appLogger)
			directory, cache = cached, cached
			limiter = ratelimit.NewRedisRateLimiter(rc.Client, "tradedesk")
			healthChecker.Register("redis", false, rc.HealthCheck)
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQ.Enabled {
		rmqCfg := rabbitmq.FromAppConfig(cfg.RabbitMQ)
		conn, err := rabbitmq.Connect(ctx, rmqCfg)
		if err != nil {
			appLogger.Warn("RabbitMQ unavailable, tenant events disabled", logger.Error(err))
		} else {
			defer conn.Close()
			publisher = events.NewRabbitPublisher(rabbitmq.NewProducer(conn, rmqCfg), appLogger)
			healthChecker.Register("rabbitmq", false, conn.HealthCheck)
		}
	}

	tmpl, err := provisioner.LoadTemplate(cfg.Tenancy.TemplatePath)
	if err != nil {
		return fmt.Errorf("load tenant template: %w", err)
	}
	prov, err := provisioner.New(db, directory, provisioner.Config{
		RegistrySchema: cfg.Tenancy.RegistrySchema,
		SchemaPrefix:   cfg.Tenancy.SchemaPrefix,
		TrialDays:      cfg.Tenancy.TrialDays,
		Template:       tmpl,
	},
		provisioner.WithPublisher(publisher),
		provisioner.WithCache(cache),
		provisioner.WithObserver(tenancyMetrics),
		provisioner.WithLogger(appLogger),
	)
	if err != nil {
		return err
	}

	if cfg.Tenancy.BootstrapRegistry {
		if err := prov.BootstrapRegistry(ctx); err != nil {
			return fmt.Errorf("bootstrap registry: %w", err)
		}
	}

	exec := tenancy.NewExecutor(db, tenancy.Config{
		RegistrySchema:   cfg.Tenancy.RegistrySchema,
		OperationTimeout: config.Duration(cfg.Tenancy.OperationTimeout, tenancy.DefaultOperationTimeout),
	},
		tenancy.WithObserver(tenancyMetrics),
		tenancy.WithTracer(httpMetrics.Tracer),
		tenancy.WithLogger(appLogger),
	)
	quotas := policy.NewQuotaEnforcer(exec, tenancyMetrics, appLogger)

	handler := handlerhttp.NewHandler(handlerhttp.Deps{
		Provisioner: prov,
		Directory:   directory,
		Bookings:    booking.NewStore(exec, quotas),
		Gate:        policy.NewGate(tenancyMetrics),
		Resolver: resolver.New(directory, resolver.Config{
			Header:             cfg.Tenancy.TenantHeader,
			ReservedSubdomains: cfg.Tenancy.ReservedSubdomains,
		}),
		Executor: exec,
		Limiter:  limiter,
		Health:   healthChecker,
		Metrics:  httpMetrics.GetHandler(),
	}, handlerhttp.Config{
		AdminSecret:  cfg.JWT.AdminSecret,
		SignupLimit:  cfg.RateLimiting.SignupsPerWindow,
		SignupWindow: config.Duration(cfg.RateLimiting.Window, time.Hour),
	}, appLogger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	// метрики должны стоять сразу над mux, иначе r.Pattern пустой
	root := middleware.Chain(mux,
		middleware.Recovery(appLogger),
		middleware.Logging(appLogger),
		httpMetrics.Middleware,
	)

	statsJob := jobs.NewStatsJob(registryDir, tenancyMetrics, appLogger)
	if err := statsJob.Start(ctx, cfg.Tenancy.StatsSchedule); err != nil {
		return err
	}

	grpcServer := pkggrpc.NewServer(appLogger)
	go grpcServer.WatchHealth(ctx, 10*time.Second, "", pg.HealthCheck)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           root,
		ReadTimeout:       config.Duration(cfg.Server.ReadTimeout, 15*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      config.Duration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	errCh := make(chan error, 2)
	go func() {
		appLogger.Info("Starting HTTP server", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		appLogger.Info("Starting gRPC server", logger.Int("port", cfg.GRPC.Port))
		if err := grpcServer.ListenAndServe(cfg.GRPC.Port); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", logger.Error(err))
	}
	grpcServer.GracefulStop()
	statsJob.Stop(shutdownCtx)

	appLogger.Info("Tenant service stopped")
	return runErr
}
