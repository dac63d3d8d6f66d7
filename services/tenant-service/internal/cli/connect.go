package cli

import (
	"context"
	"fmt"
	"time"

	pkgconfig "TradeDeskPlatform/pkg/config"
	"TradeDeskPlatform/pkg/database"
	"TradeDeskPlatform/pkg/logger"
	pkgredis "TradeDeskPlatform/pkg/redis"
	"TradeDeskPlatform/services/tenant-service/internal/provisioner"
	"TradeDeskPlatform/services/tenant-service/internal/repository/postgres"
	cachedrepo "TradeDeskPlatform/services/tenant-service/internal/repository/redis"
)

// PostgresConnector подключается к PostgreSQL напрямую, без RabbitMQ.
// Если задан redis.addr, delete сбрасывает кэш сервиса сразу. Без Redis
// удаленный тенант виден сервису до истечения cache_ttl.
func PostgresConnector(ctx context.Context, opts ConnectOptions) (*Backend, error) {
	dbCfg := database.FromAppConfig(opts.Config.Database)
	dbCfg.URL = opts.DatabaseURL
	dbCfg.MinConns = 0
	dbCfg.MaxConns = 4

	pg, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}

	tenancy := opts.Config.Tenancy
	tmpl, err := provisioner.LoadTemplate(tenancy.TemplatePath)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("load tenant template: %w", err)
	}

	directory := postgres.NewTenantDirectory(pg.DB(), tenancy.RegistrySchema)
	provOpts := []provisioner.Option{provisioner.WithLogger(opts.Logger)}
	closeAll := pg.Close

	if rc := connectCache(ctx, opts); rc != nil {
		cached := cachedrepo.NewCachedDirectory(directory, rc.Client,
			pkgconfig.Duration(tenancy.CacheTTL, 30*time.Second), opts.Logger)
		provOpts = append(provOpts, provisioner.WithCache(cached))
		closeAll = func() {
			rc.Close()
			pg.Close()
		}
	}

	prov, err := provisioner.New(pg.DB(), directory, provisioner.Config{
		RegistrySchema: tenancy.RegistrySchema,
		SchemaPrefix:   tenancy.SchemaPrefix,
		TrialDays:      tenancy.TrialDays,
		Template:       tmpl,
	}, provOpts...)
	if err != nil {
		closeAll()
		return nil, err
	}

	return &Backend{Service: prov, Directory: directory, Close: closeAll}, nil
}

// connectCache одна попытка подключения к Redis; недоступный кэш не мешает CLI
func connectCache(ctx context.Context, opts ConnectOptions) *pkgredis.Client {
	if opts.Config.Redis.Addr == "" {
		return nil
	}
	cfg := pkgredis.FromAppConfig(opts.Config.Redis)
	cfg.MaxRetries = 0
	rc, err := pkgredis.Connect(ctx, cfg)
	if err != nil {
		opts.Logger.Warn("Redis unavailable, tenant cache will expire by TTL", logger.Error(err))
		return nil
	}
	return rc
}
