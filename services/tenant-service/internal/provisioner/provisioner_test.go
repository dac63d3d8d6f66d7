package provisioner

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/events"
	"TradeDeskPlatform/services/tenant-service/internal/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

const (
	createSchema = `CREATE SCHEMA IF NOT EXISTS "tenant_acme_motors"`
	createTable  = `CREATE TABLE "tenant_acme_motors".bookings (id int)`
	listTables   = `SELECT table_name FROM information_schema.tables WHERE table_schema = $1`
)

type countingObserver struct {
	results []string
}

func (o *countingObserver) ProvisionFinished(result string, _ time.Duration) {
	o.results = append(o.results, result)
}

type fixture struct {
	p         *Provisioner
	sql       sqlmock.Sqlmock
	dir       *mocks.MockTenantDirectory
	publisher *mocks.MockPublisher
	cache     *mocks.MockCacheInvalidator
	observer  *countingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, sqlMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		sql:       sqlMock,
		dir:       &mocks.MockTenantDirectory{},
		publisher: &mocks.MockPublisher{},
		cache:     &mocks.MockCacheInvalidator{},
		observer:  &countingObserver{},
	}

	tpl := Template{
		SQL:    "CREATE SCHEMA IF NOT EXISTS {{SCHEMA}};\nCREATE TABLE {{SCHEMA}}.bookings (id int);\n",
		Tables: []string{"bookings"},
	}
	f.p, err = New(db, f.dir, Config{Template: tpl},
		WithPublisher(f.publisher),
		WithCache(f.cache),
		WithObserver(f.observer),
	)
	require.NoError(t, err)
	f.p.now = func() time.Time { return fixedNow }
	f.p.newID = func() string { return "11111111-2222-3333-4444-555555555555" }

	t.Cleanup(func() {
		f.dir.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
		f.cache.AssertExpectations(t)
	})
	return f
}

func validInput() CreateTenantInput {
	return CreateTenantInput{
		Slug:         "acme-motors",
		BusinessName: "Acme Motors",
		TradeType:    domain.TradeCarMechanic,
		OwnerUserID:  "user-1",
		Email:        "owner@acme.co.uk",
		Postcode:     "SW1A 1AA",
	}
}

func (f *fixture) expectStatement(stmt string, err error) {
	f.sql.ExpectExec("SAVEPOINT provision_stmt").WillReturnResult(sqlmock.NewResult(0, 0))
	if err == nil {
		f.sql.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
		f.sql.ExpectExec("RELEASE SAVEPOINT provision_stmt").WillReturnResult(sqlmock.NewResult(0, 0))
		return
	}
	f.sql.ExpectExec(stmt).WillReturnError(err)
}

func TestCreateTenant_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sql.ExpectBegin()
	f.dir.On("Insert", mock.Anything, mock.AnythingOfType("*sql.Tx"), mock.AnythingOfType("*domain.Tenant")).Return(nil)
	f.expectStatement(createSchema, nil)
	f.expectStatement(createTable, nil)
	f.sql.ExpectQuery(listTables).WithArgs("tenant_acme_motors").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("bookings"))
	f.sql.ExpectCommit()
	f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TenantProvisioned && e.Slug == "acme-motors"
	})).Return(nil)

	tenant, err := f.p.CreateTenant(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, f.sql.ExpectationsWereMet())

	assert.Equal(t, "tenant_acme_motors", tenant.SchemaName)
	assert.Equal(t, domain.TierTrial, tenant.SubscriptionTier)
	assert.Equal(t, domain.StatusActive, tenant.SubscriptionStatus)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour), tenant.TrialEndsAt)
	assert.Equal(t, domain.QuotasForTier(domain.TierTrial), tenant.Quotas)
	assert.True(t, tenant.ShowVehicleFields)
	assert.Equal(t, []string{ResultCreated}, f.observer.results)
}

func TestCreateTenant_ToleratesAlreadyExists(t *testing.T) {
	f := newFixture(t)

	f.sql.ExpectBegin()
	f.dir.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.expectStatement(createSchema, nil)
	f.expectStatement(createTable, &pgconn.PgError{Code: "42P07", Message: `relation "bookings" already exists`})
	f.sql.ExpectExec("ROLLBACK TO SAVEPOINT provision_stmt").WillReturnResult(sqlmock.NewResult(0, 0))
	f.sql.ExpectQuery(listTables).WithArgs("tenant_acme_motors").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("bookings"))
	f.sql.ExpectCommit()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)

	_, err := f.p.CreateTenant(context.Background(), validInput())
	require.NoError(t, err)
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestCreateTenant_FatalStatementRollsBackEverything(t *testing.T) {
	f := newFixture(t)

	f.sql.ExpectBegin()
	f.dir.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.expectStatement(createSchema, nil)
	f.expectStatement(createTable, &pgconn.PgError{Code: "42601", Message: "syntax error at or near \"int\""})
	f.sql.ExpectRollback()

	tenant, err := f.p.CreateTenant(context.Background(), validInput())
	assert.Nil(t, tenant)
	assert.ErrorIs(t, err, domain.ErrProvisioningFailed)
	assert.Contains(t, err.Error(), "statement 2 of 2")
	require.NoError(t, f.sql.ExpectationsWereMet())

	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.Equal(t, []string{ResultFailed}, f.observer.results)
}

func TestCreateTenant_SlugTaken(t *testing.T) {
	f := newFixture(t)

	f.sql.ExpectBegin()
	f.dir.On("Insert", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrSlugTaken.WithCause(&pgconn.PgError{Code: "23505"}))
	f.sql.ExpectRollback()

	_, err := f.p.CreateTenant(context.Background(), validInput())
	assert.ErrorIs(t, err, domain.ErrSlugTaken)
	require.NoError(t, f.sql.ExpectationsWereMet())
	assert.Equal(t, []string{ResultSlugTaken}, f.observer.results)
}

func TestCreateTenant_MissingTables(t *testing.T) {
	f := newFixture(t)

	f.sql.ExpectBegin()
	f.dir.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.expectStatement(createSchema, nil)
	f.expectStatement(createTable, nil)
	f.sql.ExpectQuery(listTables).WithArgs("tenant_acme_motors").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}))
	f.sql.ExpectRollback()

	_, err := f.p.CreateTenant(context.Background(), validInput())
	assert.ErrorIs(t, err, domain.ErrProvisioningFailed)
	assert.Contains(t, err.Error(), "missing tables: bookings")
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestCreateTenant_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)

	f.sql.ExpectBegin()
	f.dir.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.expectStatement(createSchema, nil)
	f.expectStatement(createTable, nil)
	f.sql.ExpectQuery(listTables).WithArgs("tenant_acme_motors").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("bookings"))
	f.sql.ExpectCommit()
	f.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	tenant, err := f.p.CreateTenant(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "acme-motors", tenant.Slug)
}

func TestCreateTenant_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateTenantInput)
	}{
		{"non-canonical slug", func(in *CreateTenantInput) { in.Slug = "Acme Motors" }},
		{"empty slug", func(in *CreateTenantInput) { in.Slug = "" }},
		{"missing business name", func(in *CreateTenantInput) { in.BusinessName = "  " }},
		{"unknown trade", func(in *CreateTenantInput) { in.TradeType = "astronaut" }},
		{"bad email", func(in *CreateTenantInput) { in.Email = "not-an-email" }},
		{"bad postcode", func(in *CreateTenantInput) { in.Postcode = "12345" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			tt.mutate(&in)

			_, err := f.p.CreateTenant(context.Background(), in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			require.NoError(t, f.sql.ExpectationsWereMet())
		})
	}
}

func TestValidate_DefaultsTrade(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.TradeType = ""

	require.NoError(t, f.p.Validate(&in))
	assert.Equal(t, domain.TradeGeneral, in.TradeType)
}

func TestDeleteTenant(t *testing.T) {
	f := newFixture(t)
	existing := f.p.NewTenant(validInput())

	f.dir.On("GetByID", mock.Anything, existing.ID).Return(existing, nil)
	f.sql.ExpectBegin()
	f.sql.ExpectExec(`DROP SCHEMA IF EXISTS "tenant_acme_motors" CASCADE`).WillReturnResult(sqlmock.NewResult(0, 0))
	f.dir.On("Delete", mock.Anything, mock.AnythingOfType("*sql.Tx"), existing.ID).Return(nil)
	f.sql.ExpectCommit()
	f.cache.On("Invalidate", mock.Anything, "acme-motors").Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TenantDeleted && e.TenantID == existing.ID
	})).Return(nil)

	deleted, err := f.p.DeleteTenant(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, existing.Slug, deleted.Slug)
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestDeleteTenant_NotFound(t *testing.T) {
	f := newFixture(t)
	f.dir.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrTenantNotFound)

	_, err := f.p.DeleteTenant(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestDeleteTenant_DropFailureKeepsRow(t *testing.T) {
	f := newFixture(t)
	existing := f.p.NewTenant(validInput())

	f.dir.On("GetByID", mock.Anything, existing.ID).Return(existing, nil)
	f.sql.ExpectBegin()
	f.sql.ExpectExec(`DROP SCHEMA IF EXISTS "tenant_acme_motors" CASCADE`).WillReturnError(errors.New("lock timeout"))
	f.sql.ExpectRollback()

	_, err := f.p.DeleteTenant(context.Background(), existing.ID)
	require.Error(t, err)
	require.NoError(t, f.sql.ExpectationsWereMet())
	f.dir.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestBootstrapRegistry(t *testing.T) {
	f := newFixture(t)

	stmts := RegistryStatements("public")
	require.NotEmpty(t, stmts)
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "public"`, stmts[0])
	assert.Contains(t, stmts, `INSERT INTO "public".slug_claims (slug, tenant_id, claimed_at)
SELECT slug, id, created_at FROM "public".tenants
ON CONFLICT (slug) DO NOTHING`)

	f.sql.ExpectBegin()
	for _, s := range stmts {
		f.sql.ExpectExec(s).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.sql.ExpectCommit()

	require.NoError(t, f.p.BootstrapRegistry(context.Background()))
	require.NoError(t, f.sql.ExpectationsWereMet())
}

func TestNew_RejectsTemplateWithoutPlaceholder(t *testing.T) {
	_, err := New(&sql.DB{}, &mocks.MockTenantDirectory{}, Config{
		Template: Template{SQL: "CREATE TABLE bookings (id int);"},
	})
	assert.Error(t, err)
}
