package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// ZoneStore implements storage.ZoneStore using PostgreSQL.
// Polygons are stored as JSONB vertex arrays.
type ZoneStore struct {
	pool *Pool
}

// NewZoneStore creates a new ZoneStore.
func NewZoneStore(pool *Pool) *ZoneStore {
	return &ZoneStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ZoneStore = (*ZoneStore)(nil)

const zoneColumns = `zone_id, name, kind, sub_kind, polygon, buffer_meters, rating, active, updated_at`

// Upsert inserts or replaces a zone definition.
func (s *ZoneStore) Upsert(ctx context.Context, z *domain.ZoneDefinition) error {
	if z == nil || z.ZoneID == "" {
		return storage.ErrInvalidInput
	}

	polygon, err := json.Marshal(z.Polygon)
	if err != nil {
		return fmt.Errorf("marshal polygon: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO zones (`+zoneColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (zone_id) DO UPDATE
		SET name = EXCLUDED.name,
		    kind = EXCLUDED.kind,
		    sub_kind = EXCLUDED.sub_kind,
		    polygon = EXCLUDED.polygon,
		    buffer_meters = EXCLUDED.buffer_meters,
		    rating = EXCLUDED.rating,
		    active = EXCLUDED.active,
		    updated_at = EXCLUDED.updated_at
	`,
		z.ZoneID,
		z.Name,
		string(z.Kind),
		string(z.SubKind),
		polygon,
		z.BufferMeters,
		z.Rating,
		z.Active,
		z.UpdatedAtMs,
	)
	if err != nil {
		return fmt.Errorf("upsert zone: %w", err)
	}
	return nil
}

// GetByID retrieves a zone by its ID. Returns ErrNotFound if not exists.
func (s *ZoneStore) GetByID(ctx context.Context, zoneID string) (*domain.ZoneDefinition, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+zoneColumns+` FROM zones WHERE zone_id = $1`, zoneID)
	z, err := scanZone(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get zone by id: %w", err)
	}
	return z, nil
}

// ListActive retrieves all active zones ordered by zone_id ASC.
func (s *ZoneStore) ListActive(ctx context.Context) ([]domain.ZoneDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+zoneColumns+` FROM zones WHERE active ORDER BY zone_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active zones: %w", err)
	}
	defer rows.Close()

	var zones []domain.ZoneDefinition
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		zones = append(zones, *z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zones: %w", err)
	}
	return zones, nil
}

// Deactivate marks a zone inactive. Returns ErrNotFound if not exists.
func (s *ZoneStore) Deactivate(ctx context.Context, zoneID string, atMs int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE zones SET active = FALSE, updated_at = $2 WHERE zone_id = $1`, zoneID, atMs)
	if err != nil {
		return fmt.Errorf("deactivate zone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanZone(row pgx.Row) (*domain.ZoneDefinition, error) {
	var z domain.ZoneDefinition
	var kind, subKind string
	var polygon []byte

	err := row.Scan(
		&z.ZoneID,
		&z.Name,
		&kind,
		&subKind,
		&polygon,
		&z.BufferMeters,
		&z.Rating,
		&z.Active,
		&z.UpdatedAtMs,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(polygon, &z.Polygon); err != nil {
		return nil, fmt.Errorf("decode polygon of %s: %w", z.ZoneID, err)
	}

	z.Kind = domain.ZoneKind(kind)
	z.SubKind = domain.ZoneSubKind(subKind)
	return &z, nil
}
