package repository

import (
	"context"
	"errors"
	"fmt"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetOrCreateLead resolves the lead for a phone number, creating it on
// first contact. The insert is an upsert-ignore so two concurrent webhook
// deliveries never produce a duplicate; the follow-up select always returns
// the surviving row.
func (r *Repository) GetOrCreateLead(ctx context.Context, phoneE164, name string) (*domain.Lead, error) {
	if name == "" {
		name = phoneE164
	}
	insert := `
		INSERT INTO leads (phone, name)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, phoneE164, name); err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	var lead domain.Lead
	var prefs *string
	query := `SELECT id, phone, name, broker_id, preferences, created_at
		FROM leads WHERE phone = $1`
	err := r.pool.QueryRow(ctx, query, phoneE164).Scan(
		&lead.ID, &lead.Phone, &lead.Name, &lead.BrokerID, &prefs, &lead.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if prefs != nil {
		lead.Preferences = *prefs
	}
	return &lead, nil
}

// AssignBroker sets the broker only when the lead has none. Returns the
// broker that owns the lead after the call, which may be a previously
// assigned one.
func (r *Repository) AssignBroker(ctx context.Context, leadID, brokerID uuid.UUID) (uuid.UUID, error) {
	update := `UPDATE leads SET broker_id = $1, updated_at = now()
		WHERE id = $2 AND broker_id IS NULL`
	if _, err := r.pool.Exec(ctx, update, brokerID, leadID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to assign broker: %w", err)
	}

	var owner *uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT broker_id FROM leads WHERE id = $1`, leadID).Scan(&owner)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read broker assignment: %w", err)
	}
	if owner == nil {
		return uuid.Nil, apperr.Internal("lead has no broker after assignment")
	}
	return *owner, nil
}

// PickBroker selects the default broker for new leads: the oldest profile
// with the broker role, falling back to the oldest admin.
func (r *Repository) PickBroker(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	query := `SELECT id FROM profiles WHERE role = 'broker' ORDER BY created_at LIMIT 1`
	err := r.pool.QueryRow(ctx, query).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		query = `SELECT id FROM profiles WHERE role = 'admin' ORDER BY created_at LIMIT 1`
		err = r.pool.QueryRow(ctx, query).Scan(&id)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperr.Internal("no broker or admin profile available")
		}
		return uuid.Nil, fmt.Errorf("failed to pick broker: %w", err)
	}
	return id, nil
}

// GetBrokerContact returns the broker's name and email for notifications.
func (r *Repository) GetBrokerContact(ctx context.Context, brokerID uuid.UUID) (name, email string, err error) {
	query := `SELECT name, email FROM profiles WHERE id = $1`
	err = r.pool.QueryRow(ctx, query, brokerID).Scan(&name, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", apperr.NotFound("broker not found")
		}
		return "", "", fmt.Errorf("failed to load broker contact: %w", err)
	}
	return name, email, nil
}

// GetLead loads a lead by id.
func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	var lead domain.Lead
	var prefs *string
	query := `SELECT id, phone, name, broker_id, preferences, created_at
		FROM leads WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&lead.ID, &lead.Phone, &lead.Name, &lead.BrokerID, &prefs, &lead.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	if prefs != nil {
		lead.Preferences = *prefs
	}
	return &lead, nil
}
