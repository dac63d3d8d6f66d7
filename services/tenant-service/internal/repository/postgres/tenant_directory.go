package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"TradeDeskPlatform/pkg/database"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/repository"

	sq "github.com/Masterminds/squirrel"
)

// tenantColumns порядок колонок совпадает с scanTenant
var tenantColumns = []string{
	"id", "slug", "schema_name", "owner_user_id", "business_name", "trade_type",
	"email", "phone", "address_line", "postcode",
	"subscription_tier", "subscription_status", "trial_ends_at",
	"max_bookings_per_month", "max_telegram_bots", "max_users",
	"parts_label", "show_vehicle_fields", "logo_url", "primary_color",
	"billing_customer_id", "created_at", "updated_at",
}

// TenantDirectory реализация реестра тенантов для PostgreSQL
type TenantDirectory struct {
	db     *sql.DB
	table  string
	claims string
	psql   sq.StatementBuilderType
	now    func() time.Time
}

// NewTenantDirectory создает реестр над таблицей tenants в схеме registrySchema
func NewTenantDirectory(db *sql.DB, registrySchema string) *TenantDirectory {
	return &TenantDirectory{
		db:     db,
		table:  database.QuoteIdent(registrySchema) + ".tenants",
		claims: database.QuoteIdent(registrySchema) + ".slug_claims",
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:    time.Now,
	}
}

var _ repository.TenantDirectory = (*TenantDirectory)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID, &t.Slug, &t.SchemaName, &t.OwnerUserID, &t.BusinessName, &t.TradeType,
		&t.Email, &t.Phone, &t.AddressLine, &t.Postcode,
		&t.SubscriptionTier, &t.SubscriptionStatus, &t.TrialEndsAt,
		&t.Quotas.MaxBookingsPerMonth, &t.Quotas.MaxTelegramBots, &t.Quotas.MaxUsers,
		&t.PartsLabel, &t.ShowVehicleFields, &t.Branding.LogoURL, &t.Branding.PrimaryColor,
		&t.BillingCustomerID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// IsSlugAvailable проверяет, свободен ли slug. Slug удаленного тенанта
// остается занятым.
func (r *TenantDirectory) IsSlugAvailable(ctx context.Context, slug string) (bool, error) {
	query, args, err := r.psql.Select("1").From(r.claims).Where(sq.Eq{"slug": slug}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build slug availability query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check slug availability: %w", err)
	}
	return false, nil
}

func (r *TenantDirectory) getOne(ctx context.Context, where sq.Eq, what string) (*domain.Tenant, error) {
	query, args, err := r.psql.Select(tenantColumns...).From(r.table).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenant query: %w", err)
	}

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by %s: %w", what, err)
	}
	return tenant, nil
}

// GetBySlug возвращает тенант по slug
func (r *TenantDirectory) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return r.getOne(ctx, sq.Eq{"slug": slug}, "slug")
}

// GetByID возвращает тенант по ID
func (r *TenantDirectory) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.getOne(ctx, sq.Eq{"id": id}, "id")
}

// GetByUserID возвращает тенант владельца
func (r *TenantDirectory) GetByUserID(ctx context.Context, userID string) (*domain.Tenant, error) {
	if userID == "" {
		return nil, domain.ErrTenantNotFound
	}
	return r.getOne(ctx, sq.Eq{"owner_user_id": userID}, "owner")
}

// Insert закрепляет slug за тенантом и добавляет запись тенанта.
// Закрепление никогда не удаляется, поэтому занятый когда-либо slug
// повторно не выдается. Нарушение уникальности превращается в ErrSlugTaken.
func (r *TenantDirectory) Insert(ctx context.Context, q repository.Querier, t *domain.Tenant) error {
	claim, claimArgs, err := r.psql.Insert(r.claims).
		Columns("slug", "tenant_id", "claimed_at").
		Values(t.Slug, t.ID, t.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build slug claim: %w", err)
	}
	if _, err := q.ExecContext(ctx, claim, claimArgs...); err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrSlugTaken.WithCause(err)
		}
		return fmt.Errorf("failed to claim slug: %w", err)
	}

	query, args, err := r.psql.Insert(r.table).Columns(tenantColumns...).Values(
		t.ID, t.Slug, t.SchemaName, t.OwnerUserID, t.BusinessName, t.TradeType,
		t.Email, t.Phone, t.AddressLine, t.Postcode,
		t.SubscriptionTier, t.SubscriptionStatus, t.TrialEndsAt,
		t.Quotas.MaxBookingsPerMonth, t.Quotas.MaxTelegramBots, t.Quotas.MaxUsers,
		t.PartsLabel, t.ShowVehicleFields, t.Branding.LogoURL, t.Branding.PrimaryColor,
		t.BillingCustomerID, t.CreatedAt, t.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build tenant insert: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrSlugTaken.WithCause(err)
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// Delete удаляет запись тенанта. Закрепление slug остается.
func (r *TenantDirectory) Delete(ctx context.Context, q repository.Querier, id string) error {
	query, args, err := r.psql.Delete(r.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build tenant delete: %w", err)
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

// UpdateSettings обновляет профиль и коммерческие поля. Slug и schema_name
// не изменяются никогда.
func (r *TenantDirectory) UpdateSettings(ctx context.Context, id string, s domain.Settings) (*domain.Tenant, error) {
	if s.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	set := map[string]any{"updated_at": r.now().UTC()}
	if s.BusinessName != nil {
		set["business_name"] = *s.BusinessName
	}
	if s.Email != nil {
		set["email"] = *s.Email
	}
	if s.Phone != nil {
		set["phone"] = *s.Phone
	}
	if s.AddressLine != nil {
		set["address_line"] = *s.AddressLine
	}
	if s.Postcode != nil {
		set["postcode"] = *s.Postcode
	}
	if s.SubscriptionTier != nil {
		set["subscription_tier"] = *s.SubscriptionTier
	}
	if s.SubscriptionStatus != nil {
		set["subscription_status"] = *s.SubscriptionStatus
	}
	if s.TrialEndsAt != nil {
		set["trial_ends_at"] = *s.TrialEndsAt
	}
	if s.Quotas != nil {
		set["max_bookings_per_month"] = s.Quotas.MaxBookingsPerMonth
		set["max_telegram_bots"] = s.Quotas.MaxTelegramBots
		set["max_users"] = s.Quotas.MaxUsers
	}
	if s.PartsLabel != nil {
		set["parts_label"] = *s.PartsLabel
	}
	if s.ShowVehicleFields != nil {
		set["show_vehicle_fields"] = *s.ShowVehicleFields
	}
	if s.Branding != nil {
		set["logo_url"] = s.Branding.LogoURL
		set["primary_color"] = s.Branding.PrimaryColor
	}
	if s.BillingCustomerID != nil {
		set["billing_customer_id"] = *s.BillingCustomerID
	}

	query, args, err := r.psql.Update(r.table).SetMap(set).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(tenantColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenant update: %w", err)
	}

	tenant, err := scanTenant(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tenant settings: %w", err)
	}
	return tenant, nil
}

// List возвращает страницу тенантов по дате создания
func (r *TenantDirectory) List(ctx context.Context, limit, offset int) ([]*domain.Tenant, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := r.psql.Select(tenantColumns...).From(r.table).
		OrderBy("created_at", "slug").
		Limit(uint64(limit)).Offset(uint64(max(offset, 0))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenant list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// CountByPlan количество тенантов по тарифу и статусу
func (r *TenantDirectory) CountByPlan(ctx context.Context) ([]domain.PlanCount, error) {
	query, args, err := r.psql.Select("subscription_tier", "subscription_status", "count(*)").
		From(r.table).
		GroupBy("subscription_tier", "subscription_status").
		OrderBy("subscription_tier", "subscription_status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build plan count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count tenants by plan: %w", err)
	}
	defer rows.Close()

	var counts []domain.PlanCount
	for rows.Next() {
		var c domain.PlanCount
		if err := rows.Scan(&c.Tier, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan plan count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
