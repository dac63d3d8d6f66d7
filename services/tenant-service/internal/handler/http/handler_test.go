package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TradeDeskPlatform/pkg/health"
	pkglogger "TradeDeskPlatform/pkg/logger"
	pkgmocks "TradeDeskPlatform/pkg/mocks"
	"TradeDeskPlatform/pkg/ratelimit"
	"TradeDeskPlatform/services/tenant-service/internal/booking"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/middleware"
	"TradeDeskPlatform/services/tenant-service/internal/mocks"
	"TradeDeskPlatform/services/tenant-service/internal/policy"
	"TradeDeskPlatform/services/tenant-service/internal/provisioner"
	"TradeDeskPlatform/services/tenant-service/internal/resolver"
	"TradeDeskPlatform/services/tenant-service/internal/tenancy"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminSecret = "handler-test-secret"

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) CreateTenant(ctx context.Context, in provisioner.CreateTenantInput) (*domain.Tenant, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *mockProvisioner) DeleteTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) List(ctx context.Context, tc *domain.TenantContext, limit int) ([]booking.Booking, error) {
	args := m.Called(ctx, tc, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]booking.Booking), args.Error(1)
}

func (m *mockBookings) Create(ctx context.Context, tc *domain.TenantContext, in booking.CreateInput) (*booking.Booking, error) {
	args := m.Called(ctx, tc, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

type fixture struct {
	prov     *mockProvisioner
	dir      *mocks.MockTenantDirectory
	bookings *mockBookings
	mux      *http.ServeMux
}

func newFixture(t *testing.T, limiter ratelimit.RateLimiter) *fixture {
	t.Helper()
	f := &fixture{
		prov:     &mockProvisioner{},
		dir:      &mocks.MockTenantDirectory{},
		bookings: &mockBookings{},
		mux:      http.NewServeMux(),
	}
	h := NewHandler(Deps{
		Provisioner: f.prov,
		Directory:   f.dir,
		Bookings:    f.bookings,
		Gate:        policy.NewGate(nil),
		Resolver:    resolver.New(f.dir, resolver.Config{}),
		Executor:    tenancy.NewExecutor(nil, tenancy.Config{}),
		Limiter:     limiter,
	}, Config{AdminSecret: adminSecret, SignupLimit: 1, SignupWindow: time.Minute}, pkglogger.NewNop())
	h.RegisterRoutes(f.mux)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func tenantRecord(slug string, tier domain.Tier, status domain.Status) *domain.Tenant {
	return &domain.Tenant{
		ID:                 "4b0f2f6e-5a43-4a1f-9d0e-3c6f2f3f9a10",
		Slug:               slug,
		SchemaName:         domain.SchemaNameForSlug(slug),
		BusinessName:       "Kwik Fix Motors",
		TradeType:          domain.TradeCarMechanic,
		SubscriptionTier:   tier,
		SubscriptionStatus: status,
		TrialEndsAt:        time.Now().Add(24 * time.Hour),
		Quotas:             domain.QuotasForTier(tier),
		ShowVehicleFields:  true,
	}
}

func TestSignup_GeneratesSlugFromName(t *testing.T) {
	f := newFixture(t, nil)
	f.prov.On("CreateTenant", mock.Anything, mock.MatchedBy(func(in provisioner.CreateTenantInput) bool {
		return in.Slug == "kwik-fix-motors" && in.Email == "owner@kwikfix.co.uk"
	})).Return(tenantRecord("kwik-fix-motors", domain.TierTrial, domain.StatusActive), nil)

	body := `{"business_name":"Kwik Fix Motors!","trade_type":"car-mechanic","email":"owner@kwikfix.co.uk"}`
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/signup", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp signupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "kwik-fix-motors", resp.Tenant.Slug)
	assert.Equal(t, "tenant_kwik_fix_motors", resp.Tenant.SchemaName)
	assert.True(t, resp.Features[domain.FeatureDamageAssessments])
	assert.False(t, resp.Features[domain.FeatureReceipts])
	assert.NotContains(t, rec.Body.String(), "owner@kwikfix.co.uk")
	f.prov.AssertExpectations(t)
}

func TestSignup_Errors(t *testing.T) {
	f := newFixture(t, nil)
	f.prov.On("CreateTenant", mock.Anything, mock.Anything).Return(nil, domain.ErrSlugTaken).Once()

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/signup",
		strings.NewReader(`{"slug":"acme","business_name":"Acme","email":"a@acme.co.uk"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLUG_TAKEN", errorCode(t, rec))

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/signup", strings.NewReader(`{"slug":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/signup", strings.NewReader(`{"plan":"free"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.prov.AssertNumberOfCalls(t, "CreateTenant", 1)
}

func TestSignup_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := newFixture(t, ratelimit.NewRedisRateLimiter(client, "test"))
	f.prov.On("CreateTenant", mock.Anything, mock.Anything).
		Return(tenantRecord("acme", domain.TierTrial, domain.StatusActive), nil)

	signup := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/signup",
			strings.NewReader(`{"slug":"acme","business_name":"Acme","email":"a@acme.co.uk"}`))
		req.RemoteAddr = "203.0.113.7:1234"
		return f.do(req)
	}

	assert.Equal(t, http.StatusCreated, signup().Code)
	rec := signup()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	f.prov.AssertNumberOfCalls(t, "CreateTenant", 1)
}

func TestSlugEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.dir.On("IsSlugAvailable", mock.Anything, "joes-plumbing").Return(true, nil)
	f.dir.On("IsSlugAvailable", mock.Anything, "acme").Return(false, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/slugs/suggest?name=Joe%27s+Plumbing", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp slugResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, slugResponse{Slug: "joes-plumbing", Available: true}, resp)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/slugs/suggest?name=%21%21%21", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/slugs/acme/availability", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Available)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/slugs/Not_Canonical/availability", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.dir.AssertNumberOfCalls(t, "IsSlugAvailable", 2)
}

func TestCurrentTenant(t *testing.T) {
	f := newFixture(t, nil)
	f.dir.On("GetBySlug", mock.Anything, "acme").Return(tenantRecord("acme", domain.TierPro, domain.StatusActive), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenant", nil)
	req.Header.Set(resolver.DefaultTenantHeader, "acme")
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tc domain.TenantContext
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tc))
	assert.Equal(t, "tenant_acme", tc.SchemaName)
	assert.Equal(t, domain.TierPro, tc.Tier)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/tenant", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "TENANT_REQUIRED", errorCode(t, rec))
}

func TestFeatures(t *testing.T) {
	f := newFixture(t, nil)
	f.dir.On("GetBySlug", mock.Anything, "acme").Return(tenantRecord("acme", domain.TierTrial, domain.StatusActive), nil)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "http://acme.tradedesk.app"+path, nil)
		return f.do(req)
	}

	rec := get("/api/v1/tenant/features")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp featuresResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.TierTrial, resp.Tier)
	assert.True(t, resp.Features[domain.FeatureSmartJotter])
	assert.False(t, resp.Features[domain.FeatureUnlimitedBookings])

	assert.Equal(t, http.StatusOK, get("/api/v1/tenant/features/smart_jotter").Code)

	rec = get("/api/v1/tenant/features/receipts")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FEATURE_UNAVAILABLE", errorCode(t, rec))
}

func TestBookings_RouteParam(t *testing.T) {
	f := newFixture(t, nil)
	tenant := tenantRecord("kwik-fix", domain.TierTrial, domain.StatusActive)
	f.dir.On("GetBySlug", mock.Anything, "kwik-fix").Return(tenant, nil)

	starts := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	f.bookings.On("List", mock.Anything, mock.MatchedBy(func(tc *domain.TenantContext) bool {
		return tc.SchemaName == "tenant_kwik_fix"
	}), 10).Return([]booking.Booking{{ID: "b-1", Title: "MOT", StartsAt: starts}}, nil)
	f.bookings.On("Create", mock.Anything, mock.Anything, booking.CreateInput{Title: "MOT", StartsAt: starts}).
		Return(&booking.Booking{ID: "b-2", Title: "MOT", StartsAt: starts, Status: "scheduled"}, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/t/kwik-fix/bookings?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/t/kwik-fix/bookings",
		strings.NewReader(`{"title":"MOT","starts_at":"2026-11-02T09:00:00Z"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/t/kwik-fix/bookings?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.bookings.AssertExpectations(t)
}

func TestBookings_PolicyErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.dir.On("GetBySlug", mock.Anything, "closed").Return(tenantRecord("closed", domain.TierPro, domain.StatusCancelled), nil)
	f.dir.On("GetBySlug", mock.Anything, "busy").Return(tenantRecord("busy", domain.TierTrial, domain.StatusActive), nil)
	f.bookings.On("List", mock.Anything, mock.Anything, 0).Return([]booking.Booking{}, nil)
	f.bookings.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrQuotaExceeded)

	body := `{"title":"Boiler","starts_at":"2026-11-02T09:00:00Z"}`

	// отмененная подписка: чтение разрешено, изменения нет
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/t/closed/bookings", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/t/closed/bookings", strings.NewReader(body)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "SUBSCRIPTION_CANCELLED", errorCode(t, rec))

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/v1/t/busy/bookings", strings.NewReader(body)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "QUOTA_EXCEEDED", errorCode(t, rec))

	f.bookings.AssertNumberOfCalls(t, "Create", 1)
}

func TestAdminDeleteTenant(t *testing.T) {
	f := newFixture(t, nil)
	const id = "4b0f2f6e-5a43-4a1f-9d0e-3c6f2f3f9a10"
	const missing = "0f8c7c55-6d2e-4f6b-8c85-2b7b1c7e0d11"
	f.prov.On("DeleteTenant", mock.Anything, id).Return(tenantRecord("acme", domain.TierPro, domain.StatusActive), nil)
	f.prov.On("DeleteTenant", mock.Anything, missing).Return(nil, domain.ErrTenantNotFound)

	token, err := middleware.IssueAdminToken(adminSecret, "ops@tradedesk", time.Hour)
	require.NoError(t, err)

	del := func(target, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/admin/v1/tenants/"+target, nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return f.do(req)
	}

	assert.Equal(t, http.StatusUnauthorized, del(id, "").Code)

	rec := del(id, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp deleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, deleteResponse{ID: id, Slug: "acme", Deleted: true}, resp)

	assert.Equal(t, http.StatusNotFound, del(missing, token).Code)
	assert.Equal(t, http.StatusBadRequest, del("not-a-uuid", token).Code)
	f.prov.AssertNumberOfCalls(t, "DeleteTenant", 2)
}

func TestLive(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestHealthEndpoints(t *testing.T) {
	checker := &pkgmocks.MockHealthChecker{}
	checker.On("Check", mock.Anything).Return(&health.HealthStatus{
		Status: health.StatusUnhealthy,
		Services: map[string]health.Status{
			"postgres": {Status: health.StatusUnhealthy, Details: "connection refused"},
		},
	})

	mux := http.NewServeMux()
	NewHandler(Deps{Health: checker}, Config{}, pkglogger.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready")
}
