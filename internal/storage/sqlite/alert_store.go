package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

// AlertStore implements storage.AlertStore on SQLite.
type AlertStore struct {
	db *DB
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

var _ storage.AlertStore = (*AlertStore)(nil)

const alertColumns = `intent_id, entity_id, assessment_id, type, severity, message, description,
	latitude, longitude, zone_id, ai_confidence, auto_generated, created_at, status, updated_at`

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

	_, err := s.db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.IntentID, a.EntityID, a.AssessmentID, string(a.Type), string(a.Severity),
		a.Message, a.Description, a.Latitude, a.Longitude, a.ZoneID,
		a.AIConfidence, a.AutoGenerated, a.CreatedAtMs, string(status), updated,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by intent ID.
func (s *AlertStore) GetByID(ctx context.Context, intentID string) (*domain.AlertRecord, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE intent_id = ?`, intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// UpdateStatus moves an alert to a new status. The single connection
// serializes the read and the write.
func (s *AlertStore) UpdateStatus(ctx context.Context, intentID string, status domain.AlertStatus, atMs int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM alerts WHERE intent_id = ?`, intentID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read alert status: %w", err)
	}
	if !storage.CanTransition(domain.AlertStatus(current), status) {
		return fmt.Errorf("%w: %s -> %s", storage.ErrInvalidTransition, current, status)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE alerts SET status = ?, updated_at = ? WHERE intent_id = ?`, string(status), atMs, intentID); err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	return tx.Commit()
}

// ListOpen retrieves active and acknowledged alerts for an entity, oldest first.
func (s *AlertStore) ListOpen(ctx context.Context, entityID string) ([]*domain.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE entity_id = ? AND status IN ('active', 'acknowledged')
		ORDER BY created_at, intent_id`, entityID)
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
	return out, rows.Err()
}

func scanAlert(row scanner) (*domain.AlertRecord, error) {
	var a domain.AlertRecord
	var typ, severity, status string
	err := row.Scan(
		&a.IntentID, &a.EntityID, &a.AssessmentID, &typ, &severity,
		&a.Message, &a.Description, &a.Latitude, &a.Longitude, &a.ZoneID,
		&a.AIConfidence, &a.AutoGenerated, &a.CreatedAtMs, &status, &a.UpdatedAtMs,
	)
	if err != nil {
		return nil, err
	}
	a.Type = domain.AlertType(typ)
	a.Severity = domain.AlertSeverity(severity)
	a.Status = domain.AlertStatus(status)
	return &a, nil
}
