package booking

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/policy"
	"TradeDeskPlatform/services/tenant-service/internal/tenancy"

	sq "github.com/Masterminds/squirrel"
)

const (
	// DefaultListLimit размер выдачи по умолчанию
	DefaultListLimit = 50
	// MaxListLimit верхняя граница размера выдачи
	MaxListLimit = 200
)

var columns = []string{"id", "title", "starts_at", "status", "vehicle_reg", "notes", "created_at"}

// Booking бронирование в схеме тенанта
type Booking struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	Status     string    `json:"status"`
	VehicleReg string    `json:"vehicle_reg,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateInput данные нового бронирования
type CreateInput struct {
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	VehicleReg string    `json:"vehicle_reg,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// Store бронирования тенанта. Таблицы указываются без схемы:
// их разрешает search_path, выставленный исполнителем.
type Store struct {
	exec   *tenancy.Executor
	quotas *policy.QuotaEnforcer
	psql   sq.StatementBuilderType
}

// NewStore создает хранилище
func NewStore(exec *tenancy.Executor, quotas *policy.QuotaEnforcer) *Store {
	return &Store{
		exec:   exec,
		quotas: quotas,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func scanBooking(s tenancy.Scanner) (Booking, error) {
	var (
		b          Booking
		vehicleReg sql.NullString
	)
	err := s.Scan(&b.ID, &b.Title, &b.StartsAt, &b.Status, &vehicleReg, &b.Notes, &b.CreatedAt)
	b.VehicleReg = vehicleReg.String
	return b, err
}

// List последние бронирования по дате начала
func (s *Store) List(ctx context.Context, tc *domain.TenantContext, limit int) ([]Booking, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query, args, err := s.psql.Select(columns...).From("bookings").
		OrderBy("starts_at DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bookings query: %w", err)
	}

	var out []Booking
	err = s.exec.WithTenantSchema(ctx, tc, func(ctx context.Context, q tenancy.Querier) error {
		out, err = tenancy.QueryAll(ctx, q, scanBooking, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Booking{}
	}
	return out, nil
}

// Create создает бронирование с учетом пробного периода и месячного лимита
func (s *Store) Create(ctx context.Context, tc *domain.TenantContext, in CreateInput) (*Booking, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, domain.ErrInvalidInput.WithDetails("title is required")
	}
	if in.StartsAt.IsZero() {
		return nil, domain.ErrInvalidInput.WithDetails("starts_at is required")
	}
	if in.VehicleReg != "" && !tc.ShowVehicleFields {
		return nil, domain.ErrInvalidInput.WithDetails("vehicle fields are not used for this trade")
	}

	var vehicleReg any
	if in.VehicleReg != "" {
		vehicleReg = strings.ToUpper(strings.ReplaceAll(in.VehicleReg, " ", ""))
	}

	query, args, err := s.psql.Insert("bookings").
		Columns("title", "starts_at", "vehicle_reg", "notes").
		Values(in.Title, in.StartsAt.UTC(), vehicleReg, in.Notes).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build booking insert: %w", err)
	}

	var created Booking
	err = s.quotas.CreateWithinBookingLimit(ctx, tc, func(ctx context.Context, tx *sql.Tx) error {
		created, err = scanBooking(tx.QueryRowContext(ctx, query, args...))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}
