package repository

import (
	"context"
	"fmt"

	"imovelhub_backend/internal/conversations/domain"

	"github.com/google/uuid"
)

const messageColumns = `id, conversation_id, COALESCE(provider_message_id, ''), direction,
	content, COALESCE(media_type, ''), COALESCE(media_url, ''), COALESCE(status, ''),
	COALESCE(transcription, ''), COALESCE(transcription_status, ''), created_at`

// InsertInbound appends an inbound message. Returns false when the provider
// message id was already stored for the conversation, which dedupes
// at-least-once webhook delivery.
func (r *Repository) InsertInbound(ctx context.Context, msg *domain.Message) (bool, error) {
	query := `
		INSERT INTO messages (conversation_id, provider_message_id, direction,
			content, media_type, media_url, transcription_status)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		ON CONFLICT (conversation_id, provider_message_id) WHERE provider_message_id IS NOT NULL
		DO NOTHING
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		msg.ConversationID, msg.ProviderMessageID, msg.Direction,
		msg.Content, msg.MediaType, msg.MediaURL, msg.TranscriptionStatus,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert inbound message: %w", err)
	}
	return true, nil
}

// InsertOutbound appends an outbound message.
func (r *Repository) InsertOutbound(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (conversation_id, provider_message_id, direction, content, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''))
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		msg.ConversationID, msg.ProviderMessageID, msg.Direction, msg.Content, msg.Status,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbound message: %w", err)
	}
	return nil
}

// UpdateDeliveryStatus records a provider delivery receipt. Unknown message
// ids are ignored.
func (r *Repository) UpdateDeliveryStatus(ctx context.Context, providerMessageID, status string) error {
	query := `UPDATE messages SET status = $1 WHERE provider_message_id = $2`
	if _, err := r.pool.Exec(ctx, query, status, providerMessageID); err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	return nil
}

// UpdateTranscription stores the STT result for an audio message.
func (r *Repository) UpdateTranscription(ctx context.Context, messageID uuid.UUID, text, status string) error {
	query := `UPDATE messages SET transcription = NULLIF($1, ''), transcription_status = $2 WHERE id = $3`
	if _, err := r.pool.Exec(ctx, query, text, status, messageID); err != nil {
		return fmt.Errorf("failed to update transcription: %w", err)
	}
	return nil
}

// ListRecentMessages returns the last n messages of a conversation in
// chronological order, oldest first.
func (r *Repository) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 30
	}
	query := `SELECT * FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var results []domain.Message
	for rows.Next() {
		var msg domain.Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.ProviderMessageID, &msg.Direction,
			&msg.Content, &msg.MediaType, &msg.MediaURL, &msg.Status,
			&msg.Transcription, &msg.TranscriptionStatus, &msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		results = append(results, msg)
	}
	return results, rows.Err()
}
