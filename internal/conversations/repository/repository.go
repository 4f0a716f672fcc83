// Package repository provides the Postgres persistence layer for
// conversations, leads, messages, visits and the property catalog reads
// the engine needs.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations for the conversation engine.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new conversations repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const conversationColumns = `id, whatsapp_id, phone, lead_id, automation_enabled,
	human_takeover_at, pending_visit_step, pending_visit_property_id,
	pending_visit_scheduled_at, pending_visit_id, pending_visit_candidates,
	last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var conv domain.Conversation
	var candidatesJSON []byte

	err := row.Scan(
		&conv.ID, &conv.WhatsAppID, &conv.Phone, &conv.LeadID,
		&conv.AutomationEnabled, &conv.HumanTakeoverAt,
		&conv.Pending.Step, &conv.Pending.PropertyID,
		&conv.Pending.ScheduledAt, &conv.Pending.VisitID, &candidatesJSON,
		&conv.LastMessageAt, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(candidatesJSON) > 0 {
		if err := json.Unmarshal(candidatesJSON, &conv.Pending.Candidates); err != nil {
			return nil, fmt.Errorf("failed to decode pending candidates: %w", err)
		}
	}
	if err := conv.Pending.Validate(); err != nil {
		return nil, fmt.Errorf("conversation %s has invalid pending state: %w", conv.ID, err)
	}
	return &conv, nil
}

// GetOrCreateConversation resolves the conversation for a WhatsApp thread,
// creating it on first contact. Safe under concurrent delivery of the same
// first message.
func (r *Repository) GetOrCreateConversation(ctx context.Context, whatsappID, phoneE164 string) (*domain.Conversation, error) {
	insert := `
		INSERT INTO conversations (whatsapp_id, phone)
		VALUES ($1, $2)
		ON CONFLICT (whatsapp_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, insert, whatsappID, phoneE164); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE whatsapp_id = $1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, whatsappID))
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

// GetConversation loads a conversation by id.
func (r *Repository) GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("conversation not found")
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns conversations ordered by recency.
func (r *Repository) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var results []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		results = append(results, *conv)
	}
	return results, rows.Err()
}

// LinkLead attaches a lead to the conversation only when none is linked.
// A later message never re-links an already linked conversation.
func (r *Repository) LinkLead(ctx context.Context, conversationID, leadID uuid.UUID) error {
	query := `UPDATE conversations SET lead_id = $1, updated_at = now()
		WHERE id = $2 AND lead_id IS NULL`
	if _, err := r.pool.Exec(ctx, query, leadID, conversationID); err != nil {
		return fmt.Errorf("failed to link lead: %w", err)
	}
	return nil
}

// UpdatePendingVisit persists the scheduling slot state.
func (r *Repository) UpdatePendingVisit(ctx context.Context, conversationID uuid.UUID, pending domain.PendingVisit) error {
	if err := pending.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid pending state: %w", err)
	}

	var candidatesJSON []byte
	if len(pending.Candidates) > 0 {
		var err error
		candidatesJSON, err = json.Marshal(pending.Candidates)
		if err != nil {
			return fmt.Errorf("failed to encode pending candidates: %w", err)
		}
	}

	query := `UPDATE conversations SET
			pending_visit_step = $1,
			pending_visit_property_id = $2,
			pending_visit_scheduled_at = $3,
			pending_visit_id = $4,
			pending_visit_candidates = $5,
			updated_at = now()
		WHERE id = $6`
	_, err := r.pool.Exec(ctx, query,
		pending.Step, pending.PropertyID, pending.ScheduledAt,
		pending.VisitID, candidatesJSON, conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pending visit state: %w", err)
	}
	return nil
}

// SetAutomation toggles the automation flag. Disabling records the takeover
// time; re-enabling clears it.
func (r *Repository) SetAutomation(ctx context.Context, conversationID uuid.UUID, enabled bool) error {
	query := `UPDATE conversations SET
			automation_enabled = $1,
			human_takeover_at = CASE WHEN $1 THEN NULL ELSE now() END,
			updated_at = now()
		WHERE id = $2`
	tag, err := r.pool.Exec(ctx, query, enabled, conversationID)
	if err != nil {
		return fmt.Errorf("failed to set automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("conversation not found")
	}
	return nil
}

// TouchLastMessage bumps the conversation recency marker.
func (r *Repository) TouchLastMessage(ctx context.Context, conversationID uuid.UUID) error {
	query := `UPDATE conversations SET last_message_at = now(), updated_at = now() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}
