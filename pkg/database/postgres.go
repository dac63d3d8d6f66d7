package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"TradeDeskPlatform/pkg/config"
	"TradeDeskPlatform/pkg/connection"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Postgres представляет подключение к PostgreSQL
type Postgres struct {
	Pool *pgxpool.Pool
	db   *sql.DB
}

// Config представляет конфигурацию PostgreSQL
type Config struct {
	// URL, если задан, имеет приоритет над Host/Port/User/Password/Database
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Connection pool settings
	MaxConns    int
	MinConns    int
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
	HealthCheck time.Duration
	// Retry settings
	MaxRetries    int
	RetryInterval time.Duration
}

// NewConfig создает конфигурацию по умолчанию
func NewConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          5432,
		User:          "postgres",
		Password:      "postgres",
		Database:      "postgres",
		SSLMode:       "disable",
		MaxConns:      20,
		MinConns:      2,
		MaxConnLife:   30 * time.Minute,
		MaxConnIdle:   5 * time.Minute,
		HealthCheck:   30 * time.Second,
		MaxRetries:    3,
		RetryInterval: 1 * time.Second,
	}
}

// FromAppConfig строит конфигурацию пула из секции database конфигурации приложения
func FromAppConfig(c config.DatabaseConfig) *Config {
	cfg := NewConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.User = c.User
	cfg.Password = c.Password
	cfg.Database = c.Name
	if c.SSLMode != "" {
		cfg.SSLMode = c.SSLMode
	}
	if c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		cfg.MinConns = c.MinConns
	}
	cfg.MaxConnLife = config.Duration(c.MaxConnLife, cfg.MaxConnLife)
	cfg.MaxConnIdle = config.Duration(c.MaxConnIdle, cfg.MaxConnIdle)
	cfg.MaxRetries = c.MaxRetries
	cfg.RetryInterval = config.Duration(c.RetryInterval, cfg.RetryInterval)
	return cfg
}

// ConnString возвращает строку подключения без параметров пула
func (c *Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// PoolConfig собирает конфигурацию pgxpool
func (c *Config) PoolConfig() (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(c.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = int32(c.MaxConns)
	if c.MinConns <= c.MaxConns {
		poolConfig.MinConns = int32(c.MinConns)
	}
	poolConfig.MaxConnLifetime = c.MaxConnLife
	poolConfig.MaxConnIdleTime = c.MaxConnIdle
	poolConfig.MaxConnLifetimeJitter = 30 * time.Second
	if c.HealthCheck > 0 {
		poolConfig.HealthCheckPeriod = c.HealthCheck
	}

	return poolConfig, nil
}

// Connect устанавливает подключение к PostgreSQL с retry логикой
func Connect(ctx context.Context, cfg *Config) (*Postgres, error) {
	poolConfig, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	err = connection.WithRetry(ctx, connection.Fixed(cfg.MaxRetries, cfg.RetryInterval), func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

// DB возвращает *sql.DB поверх того же пула. Соединения *sql.DB берутся из
// pgxpool, поэтому лимит MaxConns общий.
func (p *Postgres) DB() *sql.DB {
	if p.db == nil && p.Pool != nil {
		p.db = stdlib.OpenDBFromPool(p.Pool)
	}
	return p.db
}

// Close закрывает подключение к базе данных
func (p *Postgres) Close() {
	if p.db != nil {
		_ = p.db.Close()
	}
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// HealthCheck проверяет состояние подключения к базе данных
func (p *Postgres) HealthCheck(ctx context.Context) error {
	if p.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	var result string
	return p.Pool.QueryRow(ctx, "SELECT 'healthy'").Scan(&result)
}

// QuoteIdent экранирует идентификатор PostgreSQL
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// SQLSTATE коды, которые разбирает сервис
const (
	UniqueViolation     = "23505"
	DuplicateSchema     = "42P06"
	DuplicateTable      = "42P07"
	DuplicateObject     = "42710"
	DuplicateFunction   = "42723"
	DuplicateDatabase   = "42P04"
	LockNotAvailable    = "55P03"
	QueryCanceled       = "57014"
	UndefinedTable      = "42P01"
	InvalidSchemaName   = "3F000"
	InFailedTransaction = "25P02"
)

// SQLState возвращает SQLSTATE ошибки PostgreSQL или пустую строку
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation проверяет нарушение уникального ограничения
func IsUniqueViolation(err error) bool {
	return SQLState(err) == UniqueViolation
}

// IsAlreadyExists проверяет ошибки вида "объект уже существует"
func IsAlreadyExists(err error) bool {
	switch SQLState(err) {
	case DuplicateSchema, DuplicateTable, DuplicateObject, DuplicateFunction, DuplicateDatabase:
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
