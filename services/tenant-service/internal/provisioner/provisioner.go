package provisioner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"TradeDeskPlatform/pkg/database"
	pkgerrors "TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/pkg/validation"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/events"
	"TradeDeskPlatform/services/tenant-service/internal/repository"

	"github.com/google/uuid"
)

const (
	// DefaultTrialDays длительность пробного периода
	DefaultTrialDays = 7

	savepoint = "provision_stmt"

	ResultCreated   = "created"
	ResultSlugTaken = "slug_taken"
	ResultFailed    = "failed"
)

// CreateTenantInput данные регистрации
type CreateTenantInput struct {
	Slug         string           `json:"slug"`
	BusinessName string           `json:"business_name"`
	TradeType    domain.TradeType `json:"trade_type"`
	OwnerUserID  string           `json:"owner_user_id"`
	Email        string           `json:"email"`
	Phone        string           `json:"phone,omitempty"`
	AddressLine  string           `json:"address_line,omitempty"`
	Postcode     string           `json:"postcode,omitempty"`
}

// Config параметры провижининга
type Config struct {
	RegistrySchema string
	SchemaPrefix   string
	TrialDays      int
	Template       Template
}

// Observer принимает результаты провижининга
type Observer interface {
	ProvisionFinished(result string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ProvisionFinished(string, time.Duration) {}

// Option настраивает Provisioner
type Option func(*Provisioner)

// WithPublisher публикация событий жизненного цикла
func WithPublisher(p events.Publisher) Option {
	return func(pr *Provisioner) {
		if p != nil {
			pr.publisher = p
		}
	}
}

// WithCache сброс кэша тенанта после удаления
func WithCache(c repository.CacheInvalidator) Option {
	return func(pr *Provisioner) { pr.cache = c }
}

// WithObserver метрики провижининга
func WithObserver(o Observer) Option {
	return func(pr *Provisioner) {
		if o != nil {
			pr.observer = o
		}
	}
}

// WithLogger задает логгер
func WithLogger(l logger.Logger) Option {
	return func(pr *Provisioner) {
		if l != nil {
			pr.log = l
		}
	}
}

// Provisioner создает и удаляет схемы тенантов.
// Запись реестра и вся DDL схемы выполняются в одной транзакции:
// при любой неисправимой ошибке не остается ни строки, ни схемы.
type Provisioner struct {
	db        *sql.DB
	directory repository.TenantDirectory
	cache     repository.CacheInvalidator
	publisher events.Publisher
	observer  Observer
	log       logger.Logger
	validator *validation.Validator

	registry     string
	schemaPrefix string
	trialDays    int
	template     Template

	now   func() time.Time
	newID func() string
}

// New создает провижинер
func New(db *sql.DB, directory repository.TenantDirectory, cfg Config, opts ...Option) (*Provisioner, error) {
	if cfg.RegistrySchema == "" {
		cfg.RegistrySchema = "public"
	}
	if cfg.SchemaPrefix == "" {
		cfg.SchemaPrefix = domain.DefaultSchemaPrefix
	}
	if cfg.TrialDays <= 0 {
		cfg.TrialDays = DefaultTrialDays
	}
	if cfg.Template.SQL == "" {
		cfg.Template = DefaultTemplate()
	}
	if err := cfg.Template.Validate(); err != nil {
		return nil, err
	}

	p := &Provisioner{
		db:           db,
		directory:    directory,
		publisher:    events.NopPublisher{},
		observer:     nopObserver{},
		log:          logger.NewNop(),
		validator:    validation.NewValidator(),
		registry:     cfg.RegistrySchema,
		schemaPrefix: cfg.SchemaPrefix,
		trialDays:    cfg.TrialDays,
		template:     cfg.Template,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Validate проверяет данные регистрации и приводит вид деятельности к значению по умолчанию
func (p *Provisioner) Validate(in *CreateTenantInput) error {
	if in.TradeType == "" {
		in.TradeType = domain.TradeGeneral
	}

	if !domain.IsValidSlug(in.Slug) {
		return domain.ErrInvalidInput.WithDetails(fmt.Sprintf("slug %q is not canonical, expected %q", in.Slug, domain.GenerateSlug(in.Slug)))
	}
	err := validation.First(
		p.validator.ValidateRequired(in.BusinessName, "business_name"),
		p.validator.ValidateStringLength(in.BusinessName, "business_name", 1, 200),
		p.validator.ValidateEnum(string(in.TradeType), domain.TradeNames(), "trade_type"),
		p.validator.ValidateEmail(in.Email, "email"),
	)
	if err == nil && in.Postcode != "" {
		err = p.validator.ValidateUKPostcode(in.Postcode, "postcode")
	}
	if err == nil && in.Phone != "" {
		err = p.validator.ValidateUKPhone(in.Phone, "phone")
	}
	if err != nil {
		return domain.ErrInvalidInput.WithDetails(err.Error())
	}

	if schema := domain.SchemaName(p.schemaPrefix, in.Slug); !domain.IsValidSchemaName(schema) {
		return domain.ErrInvalidInput.WithDetails(fmt.Sprintf("schema name %q is not a valid identifier", schema))
	}
	return nil
}

// NewTenant запись реестра со значениями по умолчанию для нового тенанта
func (p *Provisioner) NewTenant(in CreateTenantInput) *domain.Tenant {
	now := p.now().UTC()
	defaults := domain.DefaultsForTrade(in.TradeType)

	return &domain.Tenant{
		ID:                 p.newID(),
		Slug:               in.Slug,
		SchemaName:         domain.SchemaName(p.schemaPrefix, in.Slug),
		OwnerUserID:        in.OwnerUserID,
		BusinessName:       strings.TrimSpace(in.BusinessName),
		TradeType:          in.TradeType,
		Email:              in.Email,
		Phone:              in.Phone,
		AddressLine:        in.AddressLine,
		Postcode:           in.Postcode,
		SubscriptionTier:   domain.TierTrial,
		SubscriptionStatus: domain.StatusActive,
		TrialEndsAt:        now.Add(time.Duration(p.trialDays) * 24 * time.Hour),
		Quotas:             domain.QuotasForTier(domain.TierTrial),
		PartsLabel:         defaults.PartsLabel,
		ShowVehicleFields:  defaults.ShowVehicleFields,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// CreateTenant регистрирует тенанта и создает его схему.
//
// Возможные ошибки: ErrInvalidInput, ErrSlugTaken (в том числе при гонке
// двух регистраций одного slug), ErrProvisioningFailed.
func (p *Provisioner) CreateTenant(ctx context.Context, in CreateTenantInput) (tenant *domain.Tenant, err error) {
	if err := p.Validate(&in); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		result := ResultCreated
		switch {
		case errors.Is(err, domain.ErrSlugTaken):
			result = ResultSlugTaken
		case err != nil:
			result = ResultFailed
		}
		p.observer.ProvisionFinished(result, time.Since(start))
	}()

	t := p.NewTenant(in)
	log := p.log.With(logger.CtxField(ctx), logger.String("tenant_slug", t.Slug), logger.String("schema", t.SchemaName))

	stmts, err := p.template.Render(t.SchemaName)
	if err != nil {
		return nil, domain.ErrProvisioningFailed.WithCause(err)
	}

	log.Info("Provisioning tenant", logger.Int("statements", len(stmts)))

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.ErrProvisioningFailed.WithCause(fmt.Errorf("begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error("Failed to rollback provisioning", logger.Error(rbErr))
			}
		}
	}()

	if err := p.directory.Insert(ctx, tx, t); err != nil {
		if errors.Is(err, domain.ErrSlugTaken) {
			log.Info("Slug already taken")
			return nil, err
		}
		log.Error("Failed to insert tenant record", logger.Error(err))
		return nil, domain.ErrProvisioningFailed.WithCause(err)
	}

	tolerated, err := p.applyStatements(ctx, tx, stmts)
	if err != nil {
		log.Error("Tenant schema provisioning failed", logger.Error(err))
		return nil, domain.ErrProvisioningFailed.WithCause(err)
	}

	if err := p.verifyTables(ctx, tx, t.SchemaName); err != nil {
		log.Error("Tenant schema verification failed", logger.Error(err))
		return nil, domain.ErrProvisioningFailed.WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		log.Error("Failed to commit provisioning", logger.Error(err))
		return nil, domain.ErrProvisioningFailed.WithCause(fmt.Errorf("commit: %w", err))
	}
	committed = true

	log.Info("Tenant provisioned",
		logger.String("tenant_id", t.ID),
		logger.Int("tolerated", tolerated),
		logger.Duration("duration", time.Since(start)),
	)

	p.publish(ctx, events.NewEvent(events.TenantProvisioned, t, p.now()))
	return t, nil
}

// applyStatements выполняет команды по одной под точкой сохранения.
// Ошибки "уже существует" откатываются к точке сохранения и пропускаются,
// любая другая ошибка прерывает провижининг.
func (p *Provisioner) applyStatements(ctx context.Context, tx *sql.Tx, stmts []string) (int, error) {
	tolerated := 0
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return tolerated, fmt.Errorf("savepoint before statement %d: %w", i+1, err)
		}

		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if !database.IsAlreadyExists(err) {
				return tolerated, fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
			}
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return tolerated, fmt.Errorf("rollback to savepoint after statement %d: %w", i+1, rbErr)
			}
			p.log.Warn("Skipping statement, object already exists",
				logger.CtxField(ctx),
				logger.Int("statement", i+1),
				logger.Error(err),
			)
			tolerated++
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return tolerated, fmt.Errorf("release savepoint after statement %d: %w", i+1, err)
		}
	}
	return tolerated, nil
}

// verifyTables проверяет, что в схеме есть все таблицы шаблона
func (p *Provisioner) verifyTables(ctx context.Context, q repository.Querier, schema string) error {
	rows, err := q.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1`, schema)
	if err != nil {
		return fmt.Errorf("list tenant tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for _, table := range p.template.Tables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("schema %s is missing tables: %s", schema, strings.Join(missing, ", "))
	}
	return nil
}

// DeleteTenant удаляет схему тенанта и запись реестра в одной транзакции
func (p *Provisioner) DeleteTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	t, err := p.directory.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.IsValidSchemaName(t.SchemaName) {
		return nil, pkgerrors.New(pkgerrors.ErrInternal, "tenant has an invalid schema name").
			WithDetails(t.SchemaName)
	}

	log := p.log.With(logger.CtxField(ctx), logger.String("tenant_slug", t.Slug), logger.String("schema", t.SchemaName))

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+database.QuoteIdent(t.SchemaName)+" CASCADE"); err != nil {
		log.Error("Failed to drop tenant schema", logger.Error(err))
		return nil, fmt.Errorf("drop schema %s: %w", t.SchemaName, err)
	}
	if err := p.directory.Delete(ctx, tx, t.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tenant deletion: %w", err)
	}
	committed = true

	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, t.Slug); err != nil {
			log.Warn("Failed to invalidate tenant cache", logger.Error(err))
		}
	}

	log.Info("Tenant deleted", logger.String("tenant_id", t.ID))
	p.publish(ctx, events.NewEvent(events.TenantDeleted, t, p.now()))
	return t, nil
}

// BootstrapRegistry создает схему и таблицу реестра, если их нет
func (p *Provisioner) BootstrapRegistry(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range RegistryStatements(p.registry) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("registry statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registry bootstrap: %w", err)
	}

	p.log.Info("Tenant registry ready", logger.String("schema", p.registry))
	return nil
}

// publish событие не влияет на результат операции
func (p *Provisioner) publish(ctx context.Context, event events.Event) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.log.Warn("Failed to publish tenant event",
			logger.CtxField(ctx),
			logger.String("event_type", event.Type),
			logger.String("tenant_slug", event.Slug),
			logger.Error(err),
		)
	}
}
