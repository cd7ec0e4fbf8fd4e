package aggregator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
	"github.com/zenGate-Global/seletor-hub/platform/go/persistence"
)

// OptionalColumns are read from a tenant's users table when present, in this order.
var OptionalColumns = []string{
	"name", "nickname", "phone", "cpf", "cnpj", "city", "state", "avatar_url",
	"is_active", "is_blocked", "is_admin", "role", "created_at", "last_login_at", "fk_id_user_hub",
}

var requiredColumns = []string{"id", "email"}

const usersColumnsSQL = `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = 'users'`

// TenantFetcher reads the users of one tenant database.
type TenantFetcher interface {
	FetchUsers(ctx context.Context, src TenantSource) ([]RemoteUser, error)
}

// TenantOpener opens an ephemeral connection to a tenant database.
type TenantOpener interface {
	OpenTenant(ctx context.Context, host, database string) (persistence.TenantConn, error)
}

// PostgresFetcher introspects and reads a tenant's users table over a dedicated connection.
type PostgresFetcher struct {
	opener TenantOpener
	logger *zap.Logger
}

func NewPostgresFetcher(opener TenantOpener, logger *zap.Logger) *PostgresFetcher {
	if opener == nil {
		panic("postgres fetcher requires a tenant opener")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresFetcher{opener: opener, logger: logger}
}

// FetchUsers returns every row of the tenant's users table that has an email. The connection
// is closed before returning on every path.
func (f *PostgresFetcher) FetchUsers(ctx context.Context, src TenantSource) ([]RemoteUser, error) {
	conn, err := f.opener.OpenTenant(ctx, src.DatabaseHost, src.DatabaseName)
	if err != nil {
		return nil, &apperrors.TenantUnreachableError{TenantSlug: src.Slug, Database: src.DatabaseName, Err: err}
	}
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil {
			f.logger.Warn("close tenant connection", zap.String("tenant", src.Slug), zap.Error(cerr))
		}
	}()

	present, err := userColumns(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("introspect users table of %s: %w", src.Slug, err)
	}

	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &apperrors.SchemaIncompatibleError{TenantSlug: src.Slug, Missing: missing}
	}

	columns := append([]string{}, requiredColumns...)
	for _, c := range OptionalColumns {
		if present[c] {
			columns = append(columns, c)
		}
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	query, args, err := sq.Select(quoted...).From("users").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build users query: %w", err)
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read users of %s: %w", src.Slug, err)
	}
	defer rows.Close()

	var users []RemoteUser
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("decode users row of %s: %w", src.Slug, err)
		}
		u := toRemoteUser(src, columns, values)
		if u.Email == "" {
			continue
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users of %s: %w", src.Slug, err)
	}
	return users, nil
}

func userColumns(ctx context.Context, conn persistence.TenantConn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, usersColumnsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[strings.ToLower(name)] = true
	}
	return present, rows.Err()
}

func toRemoteUser(src TenantSource, columns []string, values []any) RemoteUser {
	u := RemoteUser{Source: src}
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		v := values[i]
		switch col {
		case "id":
			u.ID = deref(asString(v))
		case "email":
			u.Email = strings.TrimSpace(deref(asString(v)))
		case "name":
			u.Name = asString(v)
		case "nickname":
			u.Nickname = asString(v)
		case "phone":
			u.Phone = asString(v)
		case "cpf":
			u.CPF = asString(v)
		case "cnpj":
			u.CNPJ = asString(v)
		case "city":
			u.City = asString(v)
		case "state":
			u.State = asString(v)
		case "avatar_url":
			u.AvatarURL = asString(v)
		case "role":
			u.Role = asString(v)
		case "fk_id_user_hub":
			u.HubUserID = asString(v)
		case "is_active":
			u.IsActive = asBool(v)
		case "is_blocked":
			u.IsBlocked = asBool(v)
		case "is_admin":
			u.IsAdmin = asBool(v)
		case "created_at":
			u.CreatedAt = asTime(v)
		case "last_login_at":
			u.LastLoginAt = asTime(v)
		}
	}
	return u
}

func asString(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case []byte:
		s = string(t)
	case [16]byte:
		s = uuid.UUID(t).String()
	case uuid.UUID:
		s = t.String()
	case int64:
		s = strconv.FormatInt(t, 10)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case int:
		s = strconv.Itoa(t)
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func asBool(v any) *bool {
	var b bool
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		b = t
	case int64:
		b = t != 0
	case int32:
		b = t != 0
	case int16:
		b = t != 0
	case int:
		b = t != 0
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		b = parsed
	default:
		return nil
	}
	return &b
}

func asTime(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}
