package policy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/tenancy"
)

// Причины отказа для метрик
const (
	ReasonTrialExpired       = "trial_expired"
	ReasonQuotaExceeded      = "quota_exceeded"
	ReasonFeatureUnavailable = "feature_unavailable"
)

const (
	countBookingsSQL = `SELECT count(*) FROM bookings WHERE created_at >= $1`
	// блокировка на тенанта сериализует пары count+insert одного тенанта
	bookingLockSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`
)

// Observer принимает отказы политики
type Observer interface {
	PolicyRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) PolicyRejected(string) {}

// Gate проверяет доступность возможностей тарифа
type Gate struct {
	observer Observer
}

// NewGate создает гейт. observer может быть nil.
func NewGate(observer Observer) *Gate {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Gate{observer: observer}
}

// Require возвращает ErrFeatureUnavailable, если возможность недоступна тенанту
func (g *Gate) Require(tc *domain.TenantContext, feature domain.Feature) error {
	if tc.HasFeature(feature) {
		return nil
	}
	g.observer.PolicyRejected(ReasonFeatureUnavailable)
	return domain.ErrFeatureUnavailable.WithDetails(fmt.Sprintf("%s is not included in the %s plan", feature, tc.Tier))
}

// QuotaEnforcer проверяет лимиты тарифа
type QuotaEnforcer struct {
	exec     *tenancy.Executor
	observer Observer
	log      logger.Logger
	now      func() time.Time
}

// NewQuotaEnforcer создает проверку квот поверх исполнителя
func NewQuotaEnforcer(exec *tenancy.Executor, observer Observer, log logger.Logger) *QuotaEnforcer {
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &QuotaEnforcer{exec: exec, observer: observer, log: log, now: time.Now}
}

// MonthStart начало календарного месяца в UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CheckTrial возвращает ErrTrialExpired для истекшего пробного периода
func (q *QuotaEnforcer) CheckTrial(tc *domain.TenantContext, now time.Time) error {
	if tc.IsTrialExpired(now) {
		q.observer.PolicyRejected(ReasonTrialExpired)
		return domain.ErrTrialExpired.WithDetails(fmt.Sprintf("trial ended at %s", tc.TrialEndsAt.UTC().Format(time.RFC3339)))
	}
	return nil
}

// HasReachedBookingLimit исчерпан ли месячный лимит бронирований.
// Для безлимитного тарифа база не запрашивается.
//
// Результат носит рекомендательный характер: для создания бронирования
// используйте CreateWithinBookingLimit.
func (q *QuotaEnforcer) HasReachedBookingLimit(ctx context.Context, tc *domain.TenantContext) (bool, error) {
	limit := tc.Quotas.MaxBookingsPerMonth
	if domain.IsUnlimited(limit) {
		return false, nil
	}

	var count int
	err := q.exec.WithTenantSchema(ctx, tc, func(ctx context.Context, db tenancy.Querier) error {
		return db.QueryRowContext(ctx, countBookingsSQL, MonthStart(q.now())).Scan(&count)
	})
	if err != nil {
		return false, fmt.Errorf("count bookings: %w", err)
	}
	return count >= limit, nil
}

// CreateWithinBookingLimit проверяет пробный период и лимит и выполняет
// insert в той же транзакции, что и подсчет. Между подсчетом и вставкой
// другие создания бронирований этого тенанта ждут на advisory lock.
func (q *QuotaEnforcer) CreateWithinBookingLimit(ctx context.Context, tc *domain.TenantContext, insert func(ctx context.Context, tx *sql.Tx) error) error {
	now := q.now()
	if err := q.CheckTrial(tc, now); err != nil {
		return err
	}

	limit := tc.Quotas.MaxBookingsPerMonth
	return q.exec.WithTenantTx(ctx, tc, func(ctx context.Context, tx *sql.Tx) error {
		if !domain.IsUnlimited(limit) {
			if _, err := tx.ExecContext(ctx, bookingLockSQL, tc.SchemaName); err != nil {
				return fmt.Errorf("lock booking quota: %w", err)
			}

			var count int
			if err := tx.QueryRowContext(ctx, countBookingsSQL, MonthStart(now)).Scan(&count); err != nil {
				return fmt.Errorf("count bookings: %w", err)
			}
			if count >= limit {
				q.observer.PolicyRejected(ReasonQuotaExceeded)
				q.log.Info("Booking limit reached",
					logger.CtxField(ctx),
					logger.String("tenant_slug", tc.Slug),
					logger.Int("limit", limit),
				)
				return domain.ErrQuotaExceeded.WithDetails(fmt.Sprintf("monthly booking limit of %d reached", limit))
			}
		}
		return insert(ctx, tx)
	})
}
