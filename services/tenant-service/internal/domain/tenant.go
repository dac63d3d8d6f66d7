package domain

import (
	"time"
)

// TradeType вид деятельности тенанта
type TradeType string

const (
	TradeCarMechanic TradeType = "car-mechanic"
	TradePlumber     TradeType = "plumber"
	TradeElectrician TradeType = "electrician"
	TradeBuilder     TradeType = "builder"
	TradeGeneral     TradeType = "general"
)

// Tier тарифный план
type Tier string

const (
	TierTrial      Tier = "trial"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// Status статус подписки
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past-due"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
)

// Unlimited значение квоты без ограничения
const Unlimited = -1

// Quotas лимиты тарифа. Каждое значение неотрицательно либо равно Unlimited.
type Quotas struct {
	MaxBookingsPerMonth int `json:"max_bookings_per_month"`
	MaxTelegramBots     int `json:"max_telegram_bots"`
	MaxUsers            int `json:"max_users"`
}

// Branding настройки оформления
type Branding struct {
	LogoURL      string `json:"logo_url,omitempty"`
	PrimaryColor string `json:"primary_color,omitempty"`
}

// Tenant запись реестра тенантов.
// Slug и SchemaName неизменяемы после создания, SchemaName однозначно выводится из Slug.
type Tenant struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	SchemaName   string    `json:"schema_name"`
	OwnerUserID  string    `json:"owner_user_id"`
	BusinessName string    `json:"business_name"`
	TradeType    TradeType `json:"trade_type"`

	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	AddressLine string `json:"address_line,omitempty"`
	Postcode    string `json:"postcode,omitempty"`

	SubscriptionTier   Tier      `json:"subscription_tier"`
	SubscriptionStatus Status    `json:"subscription_status"`
	TrialEndsAt        time.Time `json:"trial_ends_at"`
	Quotas             Quotas    `json:"quotas"`

	PartsLabel        string   `json:"parts_label"`
	ShowVehicleFields bool     `json:"show_vehicle_fields"`
	Branding          Branding `json:"branding"`

	// BillingCustomerID идентификатор клиента у платежного провайдера, наружу не отдается
	BillingCustomerID string `json:"billing_customer_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantContext проекция тенанта для обработчиков запросов.
// Контактных данных и платежных идентификаторов здесь нет.
type TenantContext struct {
	ID                string    `json:"id"`
	Slug              string    `json:"slug"`
	SchemaName        string    `json:"schema_name"`
	BusinessName      string    `json:"business_name"`
	TradeType         TradeType `json:"trade_type"`
	Tier              Tier      `json:"tier"`
	Status            Status    `json:"status"`
	TrialEndsAt       time.Time `json:"trial_ends_at"`
	Quotas            Quotas    `json:"quotas"`
	PartsLabel        string    `json:"parts_label"`
	ShowVehicleFields bool      `json:"show_vehicle_fields"`
	Branding          Branding  `json:"branding"`
}

// ToContext строит TenantContext из записи реестра
func ToContext(t *Tenant) *TenantContext {
	if t == nil {
		return nil
	}
	return &TenantContext{
		ID:                t.ID,
		Slug:              t.Slug,
		SchemaName:        t.SchemaName,
		BusinessName:      t.BusinessName,
		TradeType:         t.TradeType,
		Tier:              t.SubscriptionTier,
		Status:            t.SubscriptionStatus,
		TrialEndsAt:       t.TrialEndsAt,
		Quotas:            t.Quotas,
		PartsLabel:        t.PartsLabel,
		ShowVehicleFields: t.ShowVehicleFields,
		Branding:          t.Branding,
	}
}

// IsTrialExpired истек ли пробный период на момент now
func (tc *TenantContext) IsTrialExpired(now time.Time) bool {
	return tc.Tier == TierTrial && now.After(tc.TrialEndsAt)
}

// Settings изменяемые поля тенанта. nil означает "не менять".
// Slug и SchemaName сюда не входят намеренно: они неизменяемы.
type Settings struct {
	BusinessName       *string
	Email              *string
	Phone              *string
	AddressLine        *string
	Postcode           *string
	SubscriptionTier   *Tier
	SubscriptionStatus *Status
	TrialEndsAt        *time.Time
	Quotas             *Quotas
	PartsLabel         *string
	ShowVehicleFields  *bool
	Branding           *Branding
	BillingCustomerID  *string
}

// IsEmpty нет ни одного изменения
func (s Settings) IsEmpty() bool {
	return s == Settings{}
}

// PlanCount количество тенантов по тарифу и статусу
type PlanCount struct {
	Tier   Tier
	Status Status
	Count  int
}
