package storage

import (
	"errors"

	"tourist-safety-engine/internal/domain"
)

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when an alert status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CanTransition reports whether an alert may move from one status to another.
// Closed alerts (resolved, false_alarm) are terminal.
func CanTransition(from, to domain.AlertStatus) bool {
	switch from {
	case domain.AlertStatusActive:
		return to == domain.AlertStatusAcknowledged || to == domain.AlertStatusResolved || to == domain.AlertStatusFalseAlarm
	case domain.AlertStatusAcknowledged:
		return to == domain.AlertStatusResolved || to == domain.AlertStatusFalseAlarm
	}
	return false
}
