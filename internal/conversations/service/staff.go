package service

import (
	"context"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/platform/apperr"
	"imovelhub_backend/platform/logger"

	"github.com/google/uuid"
)

// StaffStore is the persistence surface the staff API needs. It never
// touches the pending visit slots; those belong to the turn engine.
type StaffStore interface {
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error)
	InsertOutbound(ctx context.Context, msg *domain.Message) error
	SetAutomation(ctx context.Context, conversationID uuid.UUID, enabled bool) error
	TouchLastMessage(ctx context.Context, conversationID uuid.UUID) error
}

// Staff serves the collaborator inbox: listing threads, manual replies and
// the automation toggle.
type Staff struct {
	store  StaffStore
	sender Sender
	bus    events.Bus
	log    *logger.Logger
}

// NewStaff builds the staff service.
func NewStaff(store StaffStore, sender Sender, bus events.Bus, log *logger.Logger) *Staff {
	return &Staff{store: store, sender: sender, bus: bus, log: log}
}

// ListConversations returns the inbox ordered by latest activity.
func (s *Staff) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	return s.store.ListConversations(ctx, limit)
}

// ListMessages returns the newest messages of one conversation, oldest
// first.
func (s *Staff) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}
	return s.store.ListRecentMessages(ctx, conversationID, limit)
}

// SendMessage delivers a manual staff reply. A manual reply is a human
// takeover, so automation pauses on the thread. Unlike automated replies a
// gateway failure surfaces to the caller; the staff member needs to know
// the message did not go out.
func (s *Staff) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (*domain.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}

	providerID, err := s.sender.SendText(ctx, conv.Phone, content)
	if err != nil {
		s.log.ExternalCallFailed("whatsapp", err)
		return nil, apperr.Unavailable("message gateway unavailable")
	}

	msg := &domain.Message{
		ConversationID:    conv.ID,
		ProviderMessageID: providerID,
		Direction:         domain.DirectionOutbound,
		Content:           content,
		Status:            "sent",
	}
	if err := s.store.InsertOutbound(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.store.TouchLastMessage(ctx, conv.ID); err != nil {
		s.log.DatabaseError("touch conversation", err)
	}

	if conv.AutomationEnabled {
		if err := s.store.SetAutomation(ctx, conv.ID, false); err != nil {
			s.log.DatabaseError("pause automation", err)
		} else {
			s.publishConversation(ctx, conv.ID, false)
		}
	}

	s.bus.Publish(ctx, events.MessageCreated{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Direction:      msg.Direction,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	})
	return msg, nil
}

// SetAutomation toggles the bot on a conversation.
func (s *Staff) SetAutomation(ctx context.Context, conversationID uuid.UUID, enabled bool) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, apperr.NotFound("conversation not found")
	}

	if err := s.store.SetAutomation(ctx, conversationID, enabled); err != nil {
		return nil, err
	}
	conv.AutomationEnabled = enabled
	s.publishConversation(ctx, conversationID, enabled)
	return conv, nil
}

func (s *Staff) publishConversation(ctx context.Context, conversationID uuid.UUID, enabled bool) {
	s.bus.Publish(ctx, events.ConversationUpdated{
		BaseEvent:         events.NewBaseEvent(),
		ConversationID:    conversationID,
		AutomationEnabled: enabled,
	})
}
