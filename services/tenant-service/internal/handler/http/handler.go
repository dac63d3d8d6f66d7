package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/health"
	pkglogger "TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/pkg/ratelimit"
	"TradeDeskPlatform/pkg/validation"
	"TradeDeskPlatform/services/tenant-service/internal/booking"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/middleware"
	"TradeDeskPlatform/services/tenant-service/internal/policy"
	"TradeDeskPlatform/services/tenant-service/internal/provisioner"
	"TradeDeskPlatform/services/tenant-service/internal/resolver"
	"TradeDeskPlatform/services/tenant-service/internal/tenancy"
)

// maxBodyBytes ограничение размера тела запроса
const maxBodyBytes = 1 << 20

// TenantRoute имя параметра маршрута со slug тенанта
const TenantRoute = "tenant"

// Provisioner создание и удаление тенантов
type Provisioner interface {
	CreateTenant(ctx context.Context, in provisioner.CreateTenantInput) (*domain.Tenant, error)
	DeleteTenant(ctx context.Context, id string) (*domain.Tenant, error)
}

// SlugDirectory проверка занятости slug
type SlugDirectory interface {
	IsSlugAvailable(ctx context.Context, slug string) (bool, error)
}

// BookingStore бронирования тенанта
type BookingStore interface {
	List(ctx context.Context, tc *domain.TenantContext, limit int) ([]booking.Booking, error)
	Create(ctx context.Context, tc *domain.TenantContext, in booking.CreateInput) (*booking.Booking, error)
}

// Deps зависимости обработчика. Limiter, Health и Metrics необязательны.
type Deps struct {
	Provisioner Provisioner
	Directory   SlugDirectory
	Bookings    BookingStore
	Gate        *policy.Gate
	Resolver    *resolver.Resolver
	Executor    *tenancy.Executor
	Limiter     ratelimit.RateLimiter
	Health      health.HealthChecker
	Metrics     http.Handler
}

// Config параметры HTTP слоя
type Config struct {
	AdminSecret  string
	SignupLimit  int
	SignupWindow time.Duration
}

// Handler HTTP API сервиса тенантов
type Handler struct {
	deps      Deps
	cfg       Config
	logger    pkglogger.Logger
	validator *validation.Validator
}

// NewHandler создает обработчик
func NewHandler(deps Deps, cfg Config, logger pkglogger.Logger) *Handler {
	if cfg.SignupLimit <= 0 {
		cfg.SignupLimit = 5
	}
	if cfg.SignupWindow <= 0 {
		cfg.SignupWindow = time.Hour
	}
	return &Handler{
		deps:      deps,
		cfg:       cfg,
		logger:    logger,
		validator: validation.NewValidator(),
	}
}

// RegisterRoutes регистрирует маршруты
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	var signup http.Handler = http.HandlerFunc(h.handleSignup)
	if h.deps.Limiter != nil {
		signup = middleware.RateLimit(h.deps.Limiter, "signup", h.cfg.SignupLimit, h.cfg.SignupWindow, h.logger)(signup)
	}
	mux.Handle("POST /api/v1/signup", signup)
	mux.HandleFunc("GET /api/v1/slugs/suggest", h.handleSuggestSlug)
	mux.HandleFunc("GET /api/v1/slugs/{slug}/availability", h.handleSlugAvailability)

	// тенант из заголовка или поддомена
	byHost := h.tenantScoped("")
	mux.Handle("GET /api/v1/tenant", byHost(h.handleCurrentTenant))
	mux.Handle("GET /api/v1/tenant/features", byHost(h.handleFeatures))
	mux.Handle("GET /api/v1/tenant/features/{feature}", byHost(h.handleFeature))
	mux.Handle("GET /api/v1/bookings", byHost(h.handleListBookings))
	mux.Handle("POST /api/v1/bookings", byHost(h.handleCreateBooking))

	// тенант из пути
	byRoute := h.tenantScoped(TenantRoute)
	mux.Handle("GET /api/v1/t/{tenant}/bookings", byRoute(h.handleListBookings))
	mux.Handle("POST /api/v1/t/{tenant}/bookings", byRoute(h.handleCreateBooking))

	mux.Handle("DELETE /admin/v1/tenants/{id}",
		middleware.AdminAuth(h.cfg.AdminSecret, h.logger)(http.HandlerFunc(h.handleDeleteTenant)))

	if h.deps.Health != nil {
		mux.HandleFunc("GET /health", health.Handler(h.deps.Health))
		mux.HandleFunc("GET /ready", health.ReadyHandler(h.deps.Health))
	}
	mux.HandleFunc("GET /live", health.LiveHandler())
	if h.deps.Metrics != nil {
		mux.Handle("GET /metrics", h.deps.Metrics)
	}
}

func (h *Handler) tenantScoped(routeParam string) func(http.HandlerFunc) http.Handler {
	resolve := middleware.ResolveTenant(h.deps.Resolver, h.deps.Executor, routeParam, h.logger)
	writable := middleware.RequireWritable()
	return func(fn http.HandlerFunc) http.Handler {
		return middleware.Chain(fn, resolve, writable)
	}
}

// signupResponse ответ на регистрацию
type signupResponse struct {
	Tenant   *domain.TenantContext   `json:"tenant"`
	Features map[domain.Feature]bool `json:"features"`
}

// handleSignup регистрирует тенанта. Если slug не передан, он строится из названия бизнеса.
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in provisioner.CreateTenantInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Slug) == "" {
		in.Slug = domain.GenerateSlug(in.BusinessName)
	}

	tenant, err := h.deps.Provisioner.CreateTenant(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	tc := domain.ToContext(tenant)
	writeJSON(w, http.StatusCreated, signupResponse{Tenant: tc, Features: domain.FeatureSet(tc)})
}

type slugResponse struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
}

func (h *Handler) handleSuggestSlug(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	slug := domain.GenerateSlug(name)
	if slug == "" {
		h.writeError(w, r, domain.ErrInvalidInput.WithDetails("name must contain at least one letter or digit"))
		return
	}
	h.writeAvailability(w, r, slug)
}

func (h *Handler) handleSlugAvailability(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if !domain.IsValidSlug(slug) {
		h.writeError(w, r, domain.ErrInvalidInput.WithDetails("slug must be lowercase letters, digits and single hyphens"))
		return
	}
	h.writeAvailability(w, r, slug)
}

func (h *Handler) writeAvailability(w http.ResponseWriter, r *http.Request, slug string) {
	available, err := h.deps.Directory.IsSlugAvailable(r.Context(), slug)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slugResponse{Slug: slug, Available: available})
}

func (h *Handler) handleCurrentTenant(w http.ResponseWriter, r *http.Request) {
	tc, err := tenancy.MustTenant(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

type featuresResponse struct {
	Tier      domain.Tier             `json:"tier"`
	TradeType domain.TradeType        `json:"trade_type"`
	Features  map[domain.Feature]bool `json:"features"`
}

func (h *Handler) handleFeatures(w http.ResponseWriter, r *http.Request) {
	tc, err := tenancy.MustTenant(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, featuresResponse{
		Tier:      tc.Tier,
		TradeType: tc.TradeType,
		Features:  domain.FeatureSet(tc),
	})
}

// handleFeature 200, если возможность доступна, иначе FEATURE_UNAVAILABLE
func (h *Handler) handleFeature(w http.ResponseWriter, r *http.Request) {
	tc, err := tenancy.MustTenant(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	feature := domain.Feature(r.PathValue("feature"))
	if err := h.deps.Gate.Require(tc, feature); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feature": feature, "enabled": true})
}

func (h *Handler) handleListBookings(w http.ResponseWriter, r *http.Request) {
	tc, err := tenancy.MustTenant(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, r, domain.ErrInvalidInput.WithDetails("limit must be a non-negative integer"))
			return
		}
	}

	bookings, err := h.deps.Bookings.List(r.Context(), tc, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings, "count": len(bookings)})
}

func (h *Handler) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	tc, err := tenancy.MustTenant(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var in booking.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.deps.Bookings.Create(r.Context(), tc, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type deleteResponse struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Deleted bool   `json:"deleted"`
}

func (h *Handler) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.validator.ValidateUUID(id, "id"); err != nil {
		h.writeError(w, r, domain.ErrInvalidInput.WithDetails(err.Error()))
		return
	}

	tenant, err := h.deps.Provisioner.DeleteTenant(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	admin := ""
	if claims, ok := middleware.AdminFromContext(r.Context()); ok {
		admin = claims.Subject
	}
	h.logger.Info("Tenant deleted by admin",
		pkglogger.CtxField(r.Context()),
		pkglogger.String("tenant_slug", tenant.Slug),
		pkglogger.String("admin", admin),
	)
	writeJSON(w, http.StatusOK, deleteResponse{ID: tenant.ID, Slug: tenant.Slug, Deleted: true})
}

// writeError пишет ошибку; неожиданные ошибки логируются
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := pkgerrors.As(err); !ok || e.HTTPStatus() >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			pkglogger.CtxField(r.Context()),
			pkglogger.String("path", r.URL.Path),
			pkglogger.Error(err),
		)
	}
	pkgerrors.WriteJSON(w, r, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrInvalidInput.WithDetails("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
