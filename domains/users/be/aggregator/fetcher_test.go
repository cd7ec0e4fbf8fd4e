package aggregator

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

type mockOpener struct {
	conn   persistence.TenantConn
	err    error
	opened []string
}

func (o *mockOpener) OpenTenant(_ context.Context, host, database string) (persistence.TenantConn, error) {
	o.opened = append(o.opened, host+"/"+database)
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

func newFetcherMock(t *testing.T) pgxmock.PgxConnIface {
	t.Helper()
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)
	return mock
}

func columnRows(names ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"column_name"})
	for _, n := range names {
		rows.AddRow(n)
	}
	return rows
}

var acme = TenantSource{
	ID:           uuid.New(),
	Slug:         "acme",
	Name:         "Acme",
	DatabaseName: "acme_db",
	DatabaseHost: "db1",
	SystemSlug:   "futebol",
	SystemName:   "Futebol",
}

func TestFetchUsersSelectsIntersectedColumns(t *testing.T) {
	mock := newFetcherMock(t)
	opener := &mockOpener{conn: mock}
	fetcher := NewPostgresFetcher(opener, zaptest.NewLogger(t))

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`information_schema\.columns`).
		WillReturnRows(columnRows("id", "email", "name", "is_admin", "created_at", "favourite_team"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "email", "name", "is_admin", "created_at" FROM users`)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "is_admin", "created_at"}).
			AddRow(int64(7), " Ana@Example.com ", "Ana", true, created).
			AddRow(int64(8), nil, "No Email", false, created).
			AddRow(int64(9), "bia@example.com", nil, nil, nil))
	mock.ExpectClose()

	users, err := fetcher.FetchUsers(context.Background(), acme)
	require.NoError(t, err)
	require.Equal(t, []string{"db1/acme_db"}, opener.opened)
	require.Len(t, users, 2)

	require.Equal(t, "7", users[0].ID)
	require.Equal(t, "Ana@Example.com", users[0].Email)
	require.Equal(t, "Ana", *users[0].Name)
	require.True(t, *users[0].IsAdmin)
	require.Equal(t, created, *users[0].CreatedAt)
	require.Nil(t, users[0].Phone)
	require.Nil(t, users[0].Role)
	require.Equal(t, acme, users[0].Source)

	require.Equal(t, "9", users[1].ID)
	require.Nil(t, users[1].Name)
	require.Nil(t, users[1].IsAdmin)
	require.Nil(t, users[1].CreatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchUsersSchemaIncompatible(t *testing.T) {
	mock := newFetcherMock(t)
	fetcher := NewPostgresFetcher(&mockOpener{conn: mock}, zaptest.NewLogger(t))

	mock.ExpectQuery(`information_schema\.columns`).WillReturnRows(columnRows("id", "name"))
	mock.ExpectClose()

	_, err := fetcher.FetchUsers(context.Background(), acme)
	var incompatible *apperrors.SchemaIncompatibleError
	require.ErrorAs(t, err, &incompatible)
	require.Equal(t, []string{"email"}, incompatible.Missing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchUsersClosesConnectionOnQueryError(t *testing.T) {
	mock := newFetcherMock(t)
	fetcher := NewPostgresFetcher(&mockOpener{conn: mock}, zaptest.NewLogger(t))

	mock.ExpectQuery(`information_schema\.columns`).WillReturnRows(columnRows("id", "email"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "id", "email" FROM users`)).WillReturnError(errors.New("permission denied for table users"))
	mock.ExpectClose()

	_, err := fetcher.FetchUsers(context.Background(), acme)
	require.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchUsersUnreachable(t *testing.T) {
	fetcher := NewPostgresFetcher(&mockOpener{err: errors.New("dial tcp: connection refused")}, zaptest.NewLogger(t))

	_, err := fetcher.FetchUsers(context.Background(), acme)
	var unreachable *apperrors.TenantUnreachableError
	require.ErrorAs(t, err, &unreachable)
	require.Equal(t, "acme", unreachable.TenantSlug)
	require.ErrorContains(t, err, "connection refused")
}

func TestCoercions(t *testing.T) {
	id := uuid.New()
	require.Equal(t, id.String(), *asString([16]byte(id)))
	require.Equal(t, "42", *asString(int32(42)))
	require.Equal(t, "x", *asString([]byte("x")))
	require.Nil(t, asString(nil))

	require.True(t, *asBool(int64(1)))
	require.False(t, *asBool("false"))
	require.Nil(t, asBool("maybe"))
	require.Nil(t, asBool(nil))

	require.Nil(t, asTime("2024-01-01"))
}
