package provisioning

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/repo"
	"github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/domains/users/be/aggregator"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

type integrationEnv struct {
	registry    *persistence.Registry
	provisioner *DBProvisioner
	tenants     *service.Service
	admin       persistence.Executor
}

func startServer(t *testing.T) integrationEnv {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping provisioning integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hub"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString, ConnectAttempts: 5, ConnectWait: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	require.NoError(t, persistence.BootstrapHubSchema(ctx, pool))
	systems := persistence.NewSystemStore(pool)
	_, err = systems.Ensure(ctx, persistence.SystemRecord{Slug: "futebol", DisplayName: "Futebol", DisplayOrder: 1})
	require.NoError(t, err)

	registry := persistence.NewRegistry(pool, persistence.TenantCredentials{
		Host:     net.JoinHostPort(host, port.Port()),
		User:     "postgres",
		Password: "postgres",
		SSLMode:  "disable",
	})
	t.Cleanup(registry.Close)

	admin, err := registry.AdminExecutor(ctx, "")
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	provisioner := NewDBProvisioner(registry, logger)
	tenants := service.New(
		repo.NewPostgresRepository(persistence.NewTenantStore(pool), systems),
		service.ProvisioningDeps{DB: provisioner, Template: NewTemplateApplier(logger, nil), Connector: registry},
		service.Options{Logger: logger},
	)
	return integrationEnv{registry: registry, provisioner: provisioner, tenants: tenants, admin: admin}
}

func seedUsers(t *testing.T, ctx context.Context, registry *persistence.Registry, database, stmt string, args ...any) {
	t.Helper()
	conn, err := registry.ConnectTenant(ctx, "", database)
	require.NoError(t, err)
	defer func() { _ = conn.Close(ctx) }()
	_, err = conn.Exec(ctx, stmt, args...)
	require.NoError(t, err)
}

func TestProvisionAggregateTeardownIntegration(t *testing.T) {
	env := startServer(t)
	ctx := t.Context()

	copa, err := env.tenants.Provision(ctx, service.ProvisionInput{
		Slug: " Copa-Brahma ", DisplayName: "Copa Brahma", SystemSlug: "futebol", AllowRegistration: true,
	})
	require.NoError(t, err)
	require.True(t, copa.DatabaseCreated)
	require.Equal(t, "copa_brahma_db", copa.Tenant.DatabaseName)
	require.Equal(t, service.TemplateResult{Database: "copa_brahma_db", CreateTable: 4, Statements: 2, ForeignKeys: 2}, copa.Template)

	again, err := env.tenants.Provision(ctx, service.ProvisionInput{Slug: "copa-brahma", DisplayName: "Copa Brahma", SystemSlug: "futebol"})
	require.NoError(t, err)
	require.True(t, again.AlreadyProvisioned)
	require.Equal(t, copa.Tenant.ID, again.Tenant.ID)

	created, err := env.provisioner.CreateDatabase(ctx, "", "copa_brahma_db")
	require.NoError(t, err)
	require.False(t, created)

	var encoding, provider string
	require.NoError(t, env.admin.QueryRow(ctx,
		"SELECT pg_encoding_to_char(encoding), datlocprovider::text FROM pg_database WHERE datname = $1",
		"copa_brahma_db").Scan(&encoding, &provider))
	require.Equal(t, "UTF8", encoding)
	require.Equal(t, "i", provider)

	varzea, err := env.tenants.Provision(ctx, service.ProvisionInput{Slug: "varzea", DisplayName: "Varzea FC", SystemSlug: "futebol"})
	require.NoError(t, err)

	hubID := uuid.New()
	seedUsers(t, ctx, env.registry, "copa_brahma_db",
		`INSERT INTO users (fk_id_user_hub, name, email, phone, role) VALUES ($1, 'Ana', 'Ana@Example.com', '21 9999', 'admin')`, hubID)
	seedUsers(t, ctx, env.registry, "varzea_db",
		`INSERT INTO users (name, email) VALUES ('Ana V', 'ana@example.com'), ('Bia', 'bia@example.com')`)
	seedUsers(t, ctx, env.registry, "varzea_db", `UPDATE users SET is_blocked = TRUE WHERE email = 'bia@example.com'`)

	agg := aggregator.New(env.tenants, aggregator.NewPostgresFetcher(env.registry, zaptest.NewLogger(t)), aggregator.Options{})

	res, err := agg.List(ctx, aggregator.Query{SortBy: aggregator.SortByEmail})
	require.NoError(t, err)
	require.Empty(t, res.Unavailable)
	require.Equal(t, 2, res.Pagination.Total)

	ana := res.Items[0]
	require.Equal(t, "1", ana.ID)
	require.Equal(t, "Ana@Example.com", ana.Email)
	require.Equal(t, "Ana", *ana.Name)
	require.Equal(t, "21 9999", *ana.Phone)
	require.True(t, ana.IsActive)
	require.NotNil(t, ana.CreatedAt)
	require.Len(t, ana.Tenants, 2)
	require.Equal(t, "copa-brahma", ana.Tenants[0].Slug)
	require.Equal(t, "admin", ana.Tenants[0].Role)
	require.Equal(t, "Futebol", ana.Tenants[0].System)
	require.Equal(t, "varzea", ana.Tenants[1].Slug)
	require.Equal(t, "member", ana.Tenants[1].Role)

	inactive, err := agg.List(ctx, aggregator.Query{Status: aggregator.StatusInactive})
	require.NoError(t, err)
	require.Len(t, inactive.Items, 1)
	require.Equal(t, "bia@example.com", inactive.Items[0].Email)

	_, err = env.tenants.TeardownTenant(ctx, copa.Tenant.ID)
	require.NoError(t, err)
	exists, err := env.provisioner.DatabaseExists(ctx, "", "copa_brahma_db")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, env.tenants.Teardown(ctx, "", "copa_brahma_db"))

	res, err = agg.List(ctx, aggregator.Query{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Pagination.Total)
	for _, it := range res.Items {
		require.Len(t, it.Tenants, 1)
		require.Equal(t, varzea.Tenant.ID, it.Tenants[0].TenantID)
	}
}
