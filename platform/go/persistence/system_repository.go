package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SystemRecord is a downstream product family.
type SystemRecord struct {
	SystemID     uuid.UUID
	Slug         string
	DisplayName  string
	DisplayOrder int
	Icon         *string
	Color        *string
	CreatedAt    time.Time
}

// ErrSystemNotFound indicates a missing system.
var ErrSystemNotFound = errors.New("system not found")

// SystemStore exposes the systems table.
type SystemStore struct {
	db DB
}

// NewSystemStore returns a store backed by the hub database.
func NewSystemStore(db DB) *SystemStore {
	if db == nil {
		panic("system store: db is required")
	}
	return &SystemStore{db: db}
}

// GetBySlug looks a system up by its immutable slug.
func (s *SystemStore) GetBySlug(ctx context.Context, slug string) (SystemRecord, error) {
	row := s.db.QueryRow(ctx, `
        SELECT system_id, slug, display_name, display_order, icon, color, created_at
        FROM systems WHERE slug = $1`, strings.TrimSpace(slug))
	return scanSystem(row)
}

// Ensure inserts the system when missing and returns the stored row. Existing rows keep their values.
func (s *SystemStore) Ensure(ctx context.Context, rec SystemRecord) (SystemRecord, error) {
	slug, err := NormalizeSystemSlug(rec.Slug)
	if err != nil {
		return SystemRecord{}, err
	}
	rec.Slug = slug
	if rec.SystemID == uuid.Nil {
		rec.SystemID = uuid.New()
	}
	row := s.db.QueryRow(ctx, `
        INSERT INTO systems (system_id, slug, display_name, display_order, icon, color)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
        RETURNING system_id, slug, display_name, display_order, icon, color, created_at`,
		rec.SystemID, rec.Slug, rec.DisplayName, rec.DisplayOrder, rec.Icon, rec.Color)
	return scanSystem(row)
}

func scanSystem(row pgx.Row) (SystemRecord, error) {
	var rec SystemRecord
	if err := row.Scan(&rec.SystemID, &rec.Slug, &rec.DisplayName, &rec.DisplayOrder, &rec.Icon, &rec.Color, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SystemRecord{}, ErrSystemNotFound
		}
		return SystemRecord{}, err
	}
	return rec, nil
}
