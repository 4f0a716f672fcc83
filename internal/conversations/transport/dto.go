// Package transport defines the request and response shapes of the staff
// conversation API.
package transport

import (
	"time"

	"imovelhub_backend/internal/conversations/domain"

	"github.com/google/uuid"
)

// SendMessageRequest is the body of a manual staff reply.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4096"`
}

// SetAutomationRequest toggles the bot on a conversation.
type SetAutomationRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ListQuery carries the shared pagination parameter.
type ListQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=200"`
}

// ConversationResponse is one inbox row.
type ConversationResponse struct {
	ID                uuid.UUID  `json:"id"`
	Phone             string     `json:"phone"`
	LeadID            *uuid.UUID `json:"leadId,omitempty"`
	AutomationEnabled bool       `json:"automationEnabled"`
	HumanTakeoverAt   *time.Time `json:"humanTakeoverAt,omitempty"`
	LastMessageAt     *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// MessageResponse is one conversation entry.
type MessageResponse struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Direction      string    `json:"direction"`
	Content        string    `json:"content"`
	MediaType      string    `json:"mediaType,omitempty"`
	MediaURL       string    `json:"mediaUrl,omitempty"`
	Status         string    `json:"status,omitempty"`
	Transcription  string    `json:"transcription,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FromConversation maps the domain aggregate to its API shape. The pending
// visit slots stay internal.
func FromConversation(conv *domain.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                conv.ID,
		Phone:             conv.Phone,
		LeadID:            conv.LeadID,
		AutomationEnabled: conv.AutomationEnabled,
		HumanTakeoverAt:   conv.HumanTakeoverAt,
		LastMessageAt:     conv.LastMessageAt,
		CreatedAt:         conv.CreatedAt,
	}
}

// FromMessage maps a domain message to its API shape.
func FromMessage(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Direction:      msg.Direction,
		Content:        msg.Content,
		MediaType:      msg.MediaType,
		MediaURL:       msg.MediaURL,
		Status:         msg.Status,
		Transcription:  msg.Transcription,
		CreatedAt:      msg.CreatedAt,
	}
}
