package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/zenGate-Global/seletor-hub/domains/auth/be/repo"
	"github.com/zenGate-Global/seletor-hub/domains/auth/be/service"
	memberrepo "github.com/zenGate-Global/seletor-hub/domains/memberships/be/repo"
	membersvc "github.com/zenGate-Global/seletor-hub/domains/memberships/be/service"
	tenantsvc "github.com/zenGate-Global/seletor-hub/domains/tenants/be/service"
	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	platformauth "github.com/zenGate-Global/seletor-hub/platform/go/auth"
)

const iphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"

type fixture struct {
	repo    *repo.MemoryRepository
	members *membersvc.Service
	svc     *service.Service
	varzea  tenantsvc.Tenant
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	r := repo.NewMemoryRepository()
	mr := memberrepo.NewMemoryRepository()
	members := membersvc.New(mr, logger)
	svc := service.New(r, members, platformauth.NewTokens("test-secret", time.Hour), nil, logger)
	svc.SetHashCost(bcrypt.MinCost)
	return fixture{
		repo:    r,
		members: members,
		svc:     svc,
		varzea: mr.AddTenant(tenantsvc.Tenant{
			Slug: "varzea", DisplayName: "Varzea", IsActive: true, AllowRegistration: true,
			System: tenantsvc.System{ID: uuid.New(), Slug: "futebol", Name: "Futebol"},
		}),
	}
}

func (f fixture) register(t *testing.T, email string) service.Session {
	t.Helper()
	sess, err := f.svc.Register(context.Background(), service.RegisterInput{
		Name: "Ana", Email: email, Password: "secret1",
	}, service.ClientInfo{IP: "10.0.0.1", UserAgent: iphoneUA})
	require.NoError(t, err)
	return sess
}

func TestRegisterOpensSession(t *testing.T) {
	f := newFixture(t)
	sess := f.register(t, "  Ana@Example.com ")

	require.Equal(t, "ana@example.com", sess.User.Email)
	require.NotEmpty(t, sess.Token)
	require.True(t, sess.User.IsActive)

	rec, reason, ok := f.repo.Session(platformauth.HashToken(sess.Token))
	require.True(t, ok)
	require.Empty(t, reason)
	require.Equal(t, service.DeviceMobile, rec.DeviceType)
	require.Equal(t, "10.0.0.1", *rec.IPAddress)

	_, err := f.svc.Register(context.Background(), service.RegisterInput{
		Name: "Other", Email: "ana@example.com", Password: "secret1",
	}, service.ClientInfo{})
	require.ErrorIs(t, err, service.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := []service.RegisterInput{
		{Email: "a@x.com", Password: "secret1"},
		{Name: "Ana", Password: "secret1"},
		{Name: "Ana", Email: "a@x.com"},
		{Name: "Ana", Email: "a@x.com", Password: "12345"},
	}
	for _, in := range cases {
		_, err := f.svc.Register(context.Background(), in, service.ClientInfo{})
		var verr *apperrors.ValidationError
		require.ErrorAs(t, err, &verr, "%+v", in)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "ana@example.com").User

	_, err := f.members.Join(ctx, user.ID, membersvc.TenantRef{Slug: "varzea"}, "")
	require.NoError(t, err)

	sess, err := f.svc.Login(ctx, "ANA@example.com", "secret1", service.ClientInfo{UserAgent: "curl/8"})
	require.NoError(t, err)
	require.Len(t, sess.Tenants, 1)
	require.Equal(t, "varzea", sess.Tenants[0].Tenant.Slug)

	stored, err := f.repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)

	_, err = f.svc.Login(ctx, "ana@example.com", "wrong-pass", service.ClientInfo{})
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "nobody@example.com", "secret1", service.ClientInfo{})
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "", "secret1", service.ClientInfo{})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLoginRejectsDisabledAndBlocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "ana@example.com").User

	user.IsActive = false
	f.repo.PutUser(user)
	_, err := f.svc.Login(ctx, "ana@example.com", "secret1", service.ClientInfo{})
	require.ErrorIs(t, err, service.ErrAccountDisabled)

	reason := "chargeback"
	user.IsActive = true
	user.IsBlocked = true
	user.BlockedReason = &reason
	f.repo.PutUser(user)
	_, err = f.svc.Login(ctx, "ana@example.com", "secret1", service.ClientInfo{})
	var blocked *platformauth.BlockedError
	require.ErrorAs(t, err, &blocked)
	require.Equal(t, "chargeback", *blocked.Reason)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "ana@example.com")

	id, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.User.ID, id.UserID)
	require.Equal(t, platformauth.HashToken(sess.Token), id.TokenHash)
	require.Nil(t, id.CurrentTenantID)

	_, err = f.svc.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, platformauth.ErrTokenInvalid)

	other := service.New(repo.NewMemoryRepository(), f.members, platformauth.NewTokens("test-secret", time.Hour), nil, nil)
	_, err = other.Authenticate(ctx, sess.Token)
	require.ErrorIs(t, err, platformauth.ErrSessionInvalid)

	user := sess.User
	user.IsActive = false
	f.repo.PutUser(user)
	_, err = f.svc.Authenticate(ctx, sess.Token)
	require.ErrorIs(t, err, platformauth.ErrUserInactive)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "ana@example.com")

	id, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, id))

	_, reason, _ := f.repo.Session(id.TokenHash)
	require.Equal(t, service.RevokeLogout, reason)
	_, err = f.svc.Authenticate(ctx, sess.Token)
	require.ErrorIs(t, err, platformauth.ErrSessionInvalid)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "ana@example.com")
	second, err := f.svc.Login(ctx, "ana@example.com", "secret1", service.ClientInfo{})
	require.NoError(t, err)

	id, err := f.svc.Authenticate(ctx, second.Token)
	require.NoError(t, err)
	n, err := f.svc.LogoutAll(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	for _, tok := range []string{first.Token, second.Token} {
		_, reason, _ := f.repo.Session(platformauth.HashToken(tok))
		require.Equal(t, service.RevokeLogoutAll, reason)
	}
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.register(t, "ana@example.com")
	second, err := f.svc.Login(ctx, "ana@example.com", "secret1", service.ClientInfo{})
	require.NoError(t, err)

	id, err := f.svc.Authenticate(ctx, second.Token)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.ChangePassword(ctx, id, "nope", "another1"), service.ErrWrongPassword)
	var verr *apperrors.ValidationError
	require.ErrorAs(t, f.svc.ChangePassword(ctx, id, "secret1", "abc"), &verr)

	require.NoError(t, f.svc.ChangePassword(ctx, id, "secret1", "another1"))

	_, reason, _ := f.repo.Session(platformauth.HashToken(first.Token))
	require.Equal(t, service.RevokePasswordChange, reason)
	_, err = f.svc.Authenticate(ctx, second.Token)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "ana@example.com", "another1", service.ClientInfo{})
	require.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "ana@example.com").User

	_, err := f.svc.UpdateProfile(ctx, user.ID, service.ProfileUpdate{})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)

	blank := "  "
	_, err = f.svc.UpdateProfile(ctx, user.ID, service.ProfileUpdate{Name: &blank})
	require.ErrorAs(t, err, &verr)

	nick, bio := "Aninha", "Zagueira"
	updated, err := f.svc.UpdateProfile(ctx, user.ID, service.ProfileUpdate{Nickname: &nick, Bio: &bio})
	require.NoError(t, err)
	require.Equal(t, "Ana", updated.Name)
	require.Equal(t, "Aninha", *updated.Nickname)

	updated, err = f.svc.UpdateProfile(ctx, user.ID, service.ProfileUpdate{Nickname: &blank})
	require.NoError(t, err)
	require.Nil(t, updated.Nickname)
	require.Equal(t, "Zagueira", *updated.Bio)
}

func TestSwitchTenantAndMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.register(t, "ana@example.com")
	id, err := f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)

	_, err = f.svc.SwitchTenant(ctx, id, membersvc.TenantRef{Slug: "varzea"})
	require.ErrorIs(t, err, membersvc.ErrNotMember)
	_, err = f.svc.SwitchTenant(ctx, id, membersvc.TenantRef{Slug: "missing"})
	require.ErrorIs(t, err, membersvc.ErrTenantNotFound)

	_, err = f.members.Join(ctx, id.UserID, membersvc.TenantRef{Slug: "varzea"}, "")
	require.NoError(t, err)

	ut, err := f.svc.SwitchTenant(ctx, id, membersvc.TenantRef{Slug: "varzea"})
	require.NoError(t, err)
	require.Equal(t, membersvc.RolePlayer, ut.Membership.Role)

	id, err = f.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.NotNil(t, id.CurrentTenantID)
	require.Equal(t, f.varzea.ID, *id.CurrentTenantID)

	f.repo.GrantSuperAdmin("ana@example.com")
	me, err := f.svc.Me(ctx, id)
	require.NoError(t, err)
	require.True(t, me.IsSuperAdmin)
	require.Len(t, me.Tenants, 1)
	require.Equal(t, f.varzea.ID, *me.CurrentTenantID)
}

func TestClassifyDevice(t *testing.T) {
	cases := map[string]string{
		iphoneUA:                          service.DeviceMobile,
		"Mozilla/5.0 (Linux; Android 14)": service.DeviceMobile,
		"Mozilla/5.0 (iPad; CPU OS 17_0)": service.DeviceTablet,
		"Mozilla/5.0 (X11; Linux x86_64)": service.DeviceWeb,
		"":                                service.DeviceUnknown,
	}
	for ua, want := range cases {
		require.Equal(t, want, service.ClassifyDevice(ua), ua)
	}
}

func TestLongUserAgentIsTruncated(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Register(context.Background(), service.RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "secret1",
	}, service.ClientInfo{UserAgent: strings.Repeat("a", 800)})
	require.NoError(t, err)

	rec, _, ok := f.repo.Session(platformauth.HashToken(sess.Token))
	require.True(t, ok)
	require.Len(t, *rec.UserAgent, 500)
}
