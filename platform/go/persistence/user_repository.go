package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const UsersTable = "users"

// User represents a hub identity row.
type User struct {
	UserID        uuid.UUID  `db:"user_id"`
	Name          string     `db:"name"`
	Email         string     `db:"email"`
	PasswordHash  string     `db:"password_hash"`
	Nickname      *string    `db:"nickname"`
	Phone         *string    `db:"phone"`
	CPF           *string    `db:"cpf"`
	CNPJ          *string    `db:"cnpj"`
	City          *string    `db:"city"`
	State         *string    `db:"state"`
	AvatarURL     *string    `db:"avatar_url"`
	Bio           *string    `db:"bio"`
	IsActive      bool       `db:"is_active"`
	IsBlocked     bool       `db:"is_blocked"`
	BlockedReason *string    `db:"blocked_reason"`
	LastLoginAt   *time.Time `db:"last_login_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (e.g., duplicated email).
	ErrUserConflict = errors.New("user conflict")
)

const userColumns = `user_id, name, email, password_hash, nickname, phone, cpf, cnpj, city, state,
        avatar_url, bio, is_active, is_blocked, blocked_reason, last_login_at, created_at, updated_at`

// UserStore exposes persistence helpers for the hub users table.
type UserStore struct {
	db DB
}

// NewUserStore returns a store instance; the table is created by BootstrapHubSchema.
func NewUserStore(db DB) *UserStore {
	if db == nil {
		panic("user store: db is required")
	}
	return &UserStore{db: db}
}

// CreateUserParams captures the fields required to insert a new user record.
type CreateUserParams struct {
	UserID       uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Nickname     *string
	Phone        *string
}

// CreateUser inserts a new user and returns the persisted record.
func (s *UserStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if params.UserID == uuid.Nil {
		return User{}, errors.New("user id is required")
	}

	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, name, email, password_hash, nickname, phone)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s
    `, UsersTable, userColumns),
		params.UserID,
		strings.TrimSpace(params.Name),
		strings.ToLower(strings.TrimSpace(params.Email)),
		params.PasswordHash,
		params.Nickname,
		params.Phone,
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrUserConflict
		}
		return User{}, err
	}

	return user, nil
}

// GetUser returns a single user by identifier.
func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE user_id = $1`, userColumns, UsersTable), id)
	return scanUserOrNotFound(row)
}

// GetUserByEmail looks a user up by lower-cased email.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE email = $1`, userColumns, UsersTable),
		strings.ToLower(strings.TrimSpace(email)))
	return scanUserOrNotFound(row)
}

// TouchLastLogin stamps last_login_at with the current time.
func (s *UserStore) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET last_login_at = NOW() WHERE user_id = $1`, UsersTable), id)
	return err
}

// UpdatePasswordHash replaces the stored bcrypt hash.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`UPDATE %s SET password_hash = $1, updated_at = NOW() WHERE user_id = $2`, UsersTable), hash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateProfileParams lists profile fields to change. Nil fields are left untouched; optional
// fields set to an empty string are cleared to NULL.
type UpdateProfileParams struct {
	Name      *string
	Nickname  *string
	Phone     *string
	Bio       *string
	AvatarURL *string
}

// UpdateProfile applies the non-nil fields and returns the updated row.
func (s *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, params UpdateProfileParams) (User, error) {
	builder := psql.Update(UsersTable).Set("updated_at", sq.Expr("NOW()")).Where(sq.Eq{"user_id": id})
	if params.Name != nil {
		builder = builder.Set("name", strings.TrimSpace(*params.Name))
	}
	optional := []struct {
		column string
		value  *string
	}{
		{"nickname", params.Nickname},
		{"phone", params.Phone},
		{"bio", params.Bio},
		{"avatar_url", params.AvatarURL},
	}
	for _, f := range optional {
		if f.value != nil {
			builder = builder.Set(f.column, nullIfBlank(*f.value))
		}
	}

	query, args, err := builder.Suffix("RETURNING " + userColumns).ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build profile update: %w", err)
	}
	return scanUserOrNotFound(s.db.QueryRow(ctx, query, args...))
}

func nullIfBlank(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// IsSuperAdmin reports whether an active super_admins row exists for the email.
func (s *UserStore) IsSuperAdmin(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM super_admins WHERE email = $1 AND is_active)`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&ok)
	return ok, err
}

// GrantSuperAdmin registers an email as super administrator; repeated calls are no-ops.
func (s *UserStore) GrantSuperAdmin(ctx context.Context, email string) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO super_admins (super_admin_id, email) VALUES ($1, $2)
        ON CONFLICT (email) DO UPDATE SET is_active = TRUE`,
		uuid.New(), strings.ToLower(strings.TrimSpace(email)))
	return err
}

func scanUserOrNotFound(row pgx.Row) (User, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User

	if err := row.Scan(
		&user.UserID, &user.Name, &user.Email, &user.PasswordHash, &user.Nickname, &user.Phone,
		&user.CPF, &user.CNPJ, &user.City, &user.State, &user.AvatarURL, &user.Bio,
		&user.IsActive, &user.IsBlocked, &user.BlockedReason, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return User{}, err
	}

	return user, nil
}

// prefixed qualifies a comma separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
