package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

const alertColumns = `
	intent_id, entity_id, assessment_id, type, severity, message, description,
	latitude, longitude, zone_id, ai_confidence, auto_generated, created_at, status, updated_at
`

// Insert adds a new alert. An empty status is stored as active.
func (s *AlertStore) Insert(ctx context.Context, a *domain.AlertRecord) error {
	if a == nil || a.IntentID == "" || a.EntityID == "" {
		return storage.ErrInvalidInput
	}

	status := a.Status
	if status == "" {
		status = domain.AlertStatusActive
	}
	updated := a.UpdatedAtMs
	if updated == 0 {
		updated = a.CreatedAtMs
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		a.IntentID,
		a.EntityID,
		a.AssessmentID,
		string(a.Type),
		string(a.Severity),
		a.Message,
		a.Description,
		a.Latitude,
		a.Longitude,
		a.ZoneID,
		a.AIConfidence,
		a.AutoGenerated,
		a.CreatedAtMs,
		string(status),
		updated,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by intent ID. Returns ErrNotFound if not exists.
func (s *AlertStore) GetByID(ctx context.Context, intentID string) (*domain.AlertRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE intent_id = $1`, intentID)
	a, err := scanAlert(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get alert by id: %w", err)
	}
	return a, nil
}

// UpdateStatus moves an alert to a new status inside a row-locking transaction.
func (s *AlertStore) UpdateStatus(ctx context.Context, intentID string, status domain.AlertStatus, atMs int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM alerts WHERE intent_id = $1 FOR UPDATE`, intentID).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock alert: %w", err)
	}
	if !storage.CanTransition(domain.AlertStatus(current), status) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, current, status)
	}

	if _, err := tx.Exec(ctx, `UPDATE alerts SET status = $2, updated_at = $3 WHERE intent_id = $1`, intentID, string(status), atMs); err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit alert status: %w", err)
	}
	return nil
}

// ListOpen retrieves active and acknowledged alerts for an entity, ordered by created_at ASC.
func (s *AlertStore) ListOpen(ctx context.Context, entityID string) ([]*domain.AlertRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE entity_id = $1 AND status IN ('active', 'acknowledged')
		ORDER BY created_at ASC, intent_id ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list open alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.AlertRecord
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func scanAlert(row pgx.Row) (*domain.AlertRecord, error) {
	var a domain.AlertRecord
	var typ, severity, status string

	err := row.Scan(
		&a.IntentID,
		&a.EntityID,
		&a.AssessmentID,
		&typ,
		&severity,
		&a.Message,
		&a.Description,
		&a.Latitude,
		&a.Longitude,
		&a.ZoneID,
		&a.AIConfidence,
		&a.AutoGenerated,
		&a.CreatedAtMs,
		&status,
		&a.UpdatedAtMs,
	)
	if err != nil {
		return nil, err
	}

	a.Type = domain.AlertType(typ)
	a.Severity = domain.AlertSeverity(severity)
	a.Status = domain.AlertStatus(status)
	return &a, nil
}
