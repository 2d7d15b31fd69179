package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// ZoneStore implements storage.ZoneStore on SQLite.
type ZoneStore struct {
	db *DB
}

// NewZoneStore creates a new ZoneStore.
func NewZoneStore(db *DB) *ZoneStore {
	return &ZoneStore{db: db}
}

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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO zones (`+zoneColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (zone_id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			sub_kind = excluded.sub_kind,
			polygon = excluded.polygon,
			buffer_meters = excluded.buffer_meters,
			rating = excluded.rating,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, z.ZoneID, z.Name, string(z.Kind), string(z.SubKind), string(polygon), z.BufferMeters, z.Rating, z.Active, z.UpdatedAtMs)
	if err != nil {
		return fmt.Errorf("upsert zone: %w", err)
	}
	return nil
}

// GetByID retrieves a zone by its ID.
func (s *ZoneStore) GetByID(ctx context.Context, zoneID string) (*domain.ZoneDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+zoneColumns+` FROM zones WHERE zone_id = ?`, zoneID)
	z, err := scanZone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return z, nil
}

// ListActive retrieves active zones ordered by zone_id.
func (s *ZoneStore) ListActive(ctx context.Context) ([]domain.ZoneDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+zoneColumns+` FROM zones WHERE active = 1 ORDER BY zone_id`)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var out []domain.ZoneDefinition
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		out = append(out, *z)
	}
	return out, rows.Err()
}

// Deactivate marks a zone inactive.
func (s *ZoneStore) Deactivate(ctx context.Context, zoneID string, atMs int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE zones SET active = 0, updated_at = ? WHERE zone_id = ?`, atMs, zoneID)
	if err != nil {
		return fmt.Errorf("deactivate zone: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanZone(row scanner) (*domain.ZoneDefinition, error) {
	var z domain.ZoneDefinition
	var kind, subKind, polygon string
	if err := row.Scan(&z.ZoneID, &z.Name, &kind, &subKind, &polygon, &z.BufferMeters, &z.Rating, &z.Active, &z.UpdatedAtMs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(polygon), &z.Polygon); err != nil {
		return nil, fmt.Errorf("decode polygon of %s: %w", z.ZoneID, err)
	}
	z.Kind = domain.ZoneKind(kind)
	z.SubKind = domain.ZoneSubKind(subKind)
	return &z, nil
}
