package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startHub(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping hub integration test in short mode")
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

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString, ConnectAttempts: 5, ConnectWait: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	// Twice: the DDL must be idempotent.
	require.NoError(t, BootstrapHubSchema(ctx, pool))
	require.NoError(t, BootstrapHubSchema(ctx, pool))
	return pool
}

func TestHubStoresIntegration(t *testing.T) {
	pool := startHub(t)
	ctx := t.Context()

	system, err := NewSystemStore(pool).Ensure(ctx, SystemRecord{Slug: " Futebol ", DisplayName: "Futebol", DisplayOrder: 1})
	require.NoError(t, err)
	require.Equal(t, "futebol", system.Slug)

	again, err := NewSystemStore(pool).Ensure(ctx, SystemRecord{Slug: "futebol", DisplayName: "Renamed"})
	require.NoError(t, err)
	require.Equal(t, system.SystemID, again.SystemID)
	require.Equal(t, "Futebol", again.DisplayName)

	tenants := NewTenantStore(pool)
	varzea, err := tenants.Create(ctx, TenantRecord{
		TenantID: uuid.New(), SystemID: system.SystemID, Slug: "varzea", DisplayName: "Varzea FC",
		DatabaseName: "varzea_db", DatabaseHost: "localhost", IsActive: true, AllowRegistration: true,
	})
	require.NoError(t, err)
	require.Equal(t, "futebol", varzea.SystemSlug)

	_, err = tenants.Create(ctx, TenantRecord{
		TenantID: uuid.New(), SystemID: system.SystemID, Slug: "varzea", DisplayName: "Dup",
		DatabaseName: "varzea2_db", DatabaseHost: "localhost", IsActive: true,
	})
	require.ErrorIs(t, err, ErrTenantConflict)

	listed, err := tenants.List(ctx, TenantFilter{SystemSlug: "futebol"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	users := NewUserStore(pool)
	ana, err := users.CreateUser(ctx, CreateUserParams{UserID: uuid.New(), Name: "Ana", Email: "ana@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, CreateUserParams{UserID: uuid.New(), Name: "Ana 2", Email: "ana@example.com", PasswordHash: "x"})
	require.ErrorIs(t, err, ErrUserConflict)

	nick := "aninha"
	updated, err := users.UpdateProfile(ctx, ana.UserID, UpdateProfileParams{Nickname: &nick})
	require.NoError(t, err)
	require.Equal(t, "aninha", *updated.Nickname)
	require.Equal(t, "Ana", updated.Name)

	require.NoError(t, users.GrantSuperAdmin(ctx, "ana@example.com"))
	isAdmin, err := users.IsSuperAdmin(ctx, " ANA@example.com ")
	require.NoError(t, err)
	require.True(t, isAdmin)

	members := NewMembershipStore(pool)
	m, err := members.Upsert(ctx, UpsertMembershipParams{UserID: ana.UserID, TenantID: varzea.TenantID, Role: "admin"})
	require.NoError(t, err)
	require.True(t, m.IsActive)

	admins, err := members.CountActiveAdmins(ctx, varzea.TenantID)
	require.NoError(t, err)
	require.Equal(t, 1, admins)

	mine, err := members.ListForUser(ctx, ana.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "varzea", mine[0].Tenant.Slug)

	bob, err := users.CreateUser(ctx, CreateUserParams{UserID: uuid.New(), Name: "Bob", Email: "bob@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	requests := NewRequestStore(pool)
	requestID, err := requests.UpsertPending(ctx, bob.UserID, varzea.TenantID, nil)
	require.NoError(t, err)

	pending, err := requests.ListPending(ctx, varzea.TenantID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "bob@example.com", pending[0].UserEmail)

	approved, err := requests.Approve(ctx, requestID, varzea.TenantID, &ana.UserID)
	require.NoError(t, err)
	require.Equal(t, bob.UserID, approved.UserID)
	require.ErrorIs(t, requests.Reject(ctx, requestID, varzea.TenantID, &ana.UserID, "late"), ErrRequestNotFound)

	sessions := NewSessionStore(pool)
	keep := uuid.New()
	require.NoError(t, sessions.Create(ctx, SessionRecord{SessionID: keep, UserID: ana.UserID, TokenHash: "h1", DeviceType: "web", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, sessions.Create(ctx, SessionRecord{UserID: ana.UserID, TokenHash: "h2", DeviceType: "mobile", ExpiresAt: time.Now().Add(time.Hour)}))

	live, err := sessions.GetActiveByHash(ctx, "h2")
	require.NoError(t, err)
	require.Equal(t, ana.UserID, live.UserID)

	revoked, err := sessions.RevokeAllForUser(ctx, ana.UserID, "password_change", &keep)
	require.NoError(t, err)
	require.EqualValues(t, 1, revoked)

	_, err = sessions.GetActiveByHash(ctx, "h2")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = sessions.GetActiveByHash(ctx, "h1")
	require.NoError(t, err)

	require.NoError(t, tenants.Delete(ctx, varzea.TenantID))
	_, err = tenants.Get(ctx, varzea.TenantID)
	require.ErrorIs(t, err, ErrNotFound)
}
