package repository

import (
	"context"
	"fmt"
	"time"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/platform/apperr"

	"github.com/google/uuid"
)

// CreateVisit inserts a drafted visit and returns its id.
func (r *Repository) CreateVisit(ctx context.Context, visit *domain.Visit) error {
	query := `
		INSERT INTO visits (lead_id, property_id, broker_id, scheduled_at, status, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		visit.LeadID, visit.PropertyID, visit.BrokerID,
		visit.ScheduledAt, visit.Status, visit.Notes,
	).Scan(&visit.ID, &visit.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}
	return nil
}

// RescheduleVisit moves an existing draft to a new datetime and puts it
// back into scheduled status.
func (r *Repository) RescheduleVisit(ctx context.Context, visitID uuid.UUID, scheduledAt time.Time) error {
	query := `UPDATE visits SET scheduled_at = $1, status = $2, updated_at = now() WHERE id = $3`
	tag, err := r.pool.Exec(ctx, query, scheduledAt, domain.VisitScheduled, visitID)
	if err != nil {
		return fmt.Errorf("failed to reschedule visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit not found")
	}
	return nil
}

// SetVisitStatus updates the visit lifecycle status.
func (r *Repository) SetVisitStatus(ctx context.Context, visitID uuid.UUID, status string) error {
	query := `UPDATE visits SET status = $1, updated_at = now() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, status, visitID)
	if err != nil {
		return fmt.Errorf("failed to set visit status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("visit not found")
	}
	return nil
}

// GetVisit loads a visit by id.
func (r *Repository) GetVisit(ctx context.Context, visitID uuid.UUID) (*domain.Visit, error) {
	var visit domain.Visit
	var notes *string
	query := `SELECT id, lead_id, property_id, broker_id, scheduled_at, status, notes, created_at
		FROM visits WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, visitID).Scan(
		&visit.ID, &visit.LeadID, &visit.PropertyID, &visit.BrokerID,
		&visit.ScheduledAt, &visit.Status, &notes, &visit.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, apperr.NotFound("visit not found")
		}
		return nil, fmt.Errorf("failed to load visit: %w", err)
	}
	if notes != nil {
		visit.Notes = *notes
	}
	return &visit, nil
}
