package tenancy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"TradeDeskPlatform/pkg/database"
	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultOperationTimeout ограничение на одну сессию тенанта
	DefaultOperationTimeout = 15 * time.Second
	// DefaultResetTimeout ограничение на сброс search_path перед возвратом соединения
	DefaultResetTimeout = 5 * time.Second

	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Querier то, что получает функция внутри сессии тенанта
type Querier = repository.Querier

// Observer принимает события сессий. Реализация в internal/metrics.
type Observer interface {
	SessionStarted()
	SessionFinished(outcome string, duration time.Duration)
	ResetFailed()
}

type nopObserver struct{}

func (nopObserver) SessionStarted()                       {}
func (nopObserver) SessionFinished(string, time.Duration) {}
func (nopObserver) ResetFailed()                          {}

// Config параметры исполнителя
type Config struct {
	RegistrySchema   string
	OperationTimeout time.Duration
	ResetTimeout     time.Duration
}

// Option настраивает Executor
type Option func(*Executor)

// WithObserver подключает метрики сессий
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithTracer задает трейсер вместо глобального
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithLogger задает логгер
func WithLogger(l logger.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// Executor выполняет операции в схеме одного тенанта на общем пуле.
//
// search_path это состояние физического соединения, а не запроса.
// Поэтому соединение закрепляется на время сессии и перед возвратом
// в пул всегда переключается обратно на схему реестра. Если сбросить
// не удалось, соединение закрывается и в пул не возвращается.
type Executor struct {
	db        *sql.DB
	registry  string
	timeout   time.Duration
	resetTO   time.Duration
	resetStmt string
	observer  Observer
	tracer    trace.Tracer
	log       logger.Logger
}

// NewExecutor создает исполнитель поверх пула db
func NewExecutor(db *sql.DB, cfg Config, opts ...Option) *Executor {
	if cfg.RegistrySchema == "" {
		cfg.RegistrySchema = "public"
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}

	e := &Executor{
		db:        db,
		registry:  cfg.RegistrySchema,
		timeout:   cfg.OperationTimeout,
		resetTO:   cfg.ResetTimeout,
		resetStmt: "SET search_path TO " + database.QuoteIdent(cfg.RegistrySchema),
		observer:  nopObserver{},
		tracer:    otel.Tracer("tradedesk/tenancy"),
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegistrySchema схема реестра, на которую сбрасывается search_path
func (e *Executor) RegistrySchema() string {
	return e.registry
}

// SearchPathStatement SET search_path для схемы тенанта
func (e *Executor) SearchPathStatement(schema string) string {
	return fmt.Sprintf("SET search_path TO %s, %s", database.QuoteIdent(schema), database.QuoteIdent(e.registry))
}

// ResetStatement SET search_path, возвращающий соединение к схеме реестра
func (e *Executor) ResetStatement() string {
	return e.resetStmt
}

// WithTenantSchema выполняет fn на соединении, где неквалифицированные
// имена таблиц разрешаются в схему тенанта tc. Ошибка fn возвращается
// как есть, повторов нет.
func (e *Executor) WithTenantSchema(ctx context.Context, tc *domain.TenantContext, fn func(ctx context.Context, q Querier) error) error {
	return e.session(ctx, tc, "tenancy.session", func(ctx context.Context, conn *sql.Conn) error {
		return fn(ctx, conn)
	})
}

// WithTenantTx то же, что WithTenantSchema, но fn выполняется в транзакции.
// Транзакция фиксируется, только если fn вернула nil.
func (e *Executor) WithTenantTx(ctx context.Context, tc *domain.TenantContext, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return e.session(ctx, tc, "tenancy.tx", func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tenant transaction: %w", err)
		}
		// откат должен пройти до сброса search_path, иначе ROLLBACK отменит сброс
		defer func() {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				e.log.Warn("Failed to rollback tenant transaction",
					logger.CtxField(ctx),
					logger.String("schema", tc.SchemaName),
					logger.Error(rbErr),
				)
			}
		}()

		if err := fn(ctx, tx); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tenant transaction: %w", err)
		}
		return nil
	})
}

func (e *Executor) session(ctx context.Context, tc *domain.TenantContext, spanName string, fn func(ctx context.Context, conn *sql.Conn) error) (err error) {
	if tc == nil {
		return domain.ErrTenantRequired
	}
	if !domain.IsValidSchemaName(tc.SchemaName) {
		return domain.ErrInvalidInput.WithDetails(fmt.Sprintf("invalid tenant schema %q", tc.SchemaName))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("tenant.slug", tc.Slug),
		attribute.String("db.schema", tc.SchemaName),
	))
	defer span.End()

	start := time.Now()
	e.observer.SessionStarted()
	defer func() {
		p := recover()
		if p != nil {
			err = fmt.Errorf("panic in tenant session: %v", p)
		}
		outcome := outcomeOf(err)
		e.observer.SessionFinished(outcome, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		if p != nil {
			panic(p)
		}
	}()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	// сброс выполняется при любом исходе, включая панику в fn
	defer e.release(ctx, conn, tc)

	if _, err := conn.ExecContext(ctx, e.SearchPathStatement(tc.SchemaName)); err != nil {
		return fmt.Errorf("set search_path for tenant %s: %w", tc.Slug, err)
	}

	return fn(ctx, conn)
}

// release возвращает соединение в пул только после успешного сброса search_path
func (e *Executor) release(ctx context.Context, conn *sql.Conn, tc *domain.TenantContext) {
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.resetTO)
	defer cancel()

	if _, err := conn.ExecContext(resetCtx, e.resetStmt); err != nil {
		e.observer.ResetFailed()
		e.log.Error("Failed to reset search_path, discarding connection",
			logger.CtxField(ctx),
			logger.String("tenant_slug", tc.Slug),
			logger.String("schema", tc.SchemaName),
			logger.Error(err),
		)
		discard(resetCtx, conn)
		return
	}

	if err := conn.Close(); err != nil {
		e.log.Warn("Failed to release connection", logger.String("schema", tc.SchemaName), logger.Error(err))
	}
}

// discard закрывает физическое соединение. driver.ErrBadConn из Raw
// заставляет database/sql выбросить соединение, а закрытый pgx.Conn
// не будет принят обратно пулом pgxpool.
func discard(ctx context.Context, conn *sql.Conn) {
	_ = conn.Raw(func(driverConn any) error {
		if pc, ok := driverConn.(interface{ Conn() *pgx.Conn }); ok {
			_ = pc.Conn().Close(ctx)
		}
		return driver.ErrBadConn
	})
	_ = conn.Close()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
