package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/platform/apperr"
	"imovelhub_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStaffStore struct {
	conversations map[uuid.UUID]*domain.Conversation
	messages      map[uuid.UUID][]domain.Message
	outbound      []*domain.Message
	automation    map[uuid.UUID]bool
}

func newFakeStaffStore() *fakeStaffStore {
	return &fakeStaffStore{
		conversations: make(map[uuid.UUID]*domain.Conversation),
		messages:      make(map[uuid.UUID][]domain.Message),
		automation:    make(map[uuid.UUID]bool),
	}
}

func (s *fakeStaffStore) ListConversations(context.Context, int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	return out, nil
}

func (s *fakeStaffStore) GetConversation(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	copied := *conv
	return &copied, nil
}

func (s *fakeStaffStore) ListRecentMessages(_ context.Context, id uuid.UUID, _ int) ([]domain.Message, error) {
	return s.messages[id], nil
}

func (s *fakeStaffStore) InsertOutbound(_ context.Context, msg *domain.Message) error {
	msg.ID = uuid.New()
	s.outbound = append(s.outbound, msg)
	return nil
}

func (s *fakeStaffStore) SetAutomation(_ context.Context, id uuid.UUID, enabled bool) error {
	s.automation[id] = enabled
	if conv, ok := s.conversations[id]; ok {
		conv.AutomationEnabled = enabled
	}
	return nil
}

func (s *fakeStaffStore) TouchLastMessage(context.Context, uuid.UUID) error { return nil }

func newStaffFixture() (*Staff, *fakeStaffStore, *fakeSender, *domain.Conversation) {
	store := newFakeStaffStore()
	sender := &fakeSender{}
	conv := &domain.Conversation{
		ID:                uuid.New(),
		WhatsAppID:        "5541999990000@s.whatsapp.net",
		Phone:             "+5541999990000",
		AutomationEnabled: true,
		Pending:           domain.None(),
	}
	store.conversations[conv.ID] = conv
	staff := NewStaff(store, sender, events.NewInMemoryBus(logger.New("test")), logger.New("test"))
	return staff, store, sender, conv
}

func TestStaffSendPausesAutomation(t *testing.T) {
	staff, store, sender, conv := newStaffFixture()

	msg, err := staff.SendMessage(context.Background(), conv.ID, "olá, aqui é a Carla")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if sender.count() != 1 {
		t.Fatalf("sent %d messages, want 1", sender.count())
	}
	if msg.Direction != domain.DirectionOutbound || msg.Status != "sent" {
		t.Errorf("message = %+v", msg)
	}
	if enabled, ok := store.automation[conv.ID]; !ok || enabled {
		t.Errorf("automation not paused after manual reply")
	}
}

func TestStaffSendGatewayFailureSurfaces(t *testing.T) {
	staff, store, sender, conv := newStaffFixture()
	sender.err = fmt.Errorf("gateway down")

	_, err := staff.SendMessage(context.Background(), conv.ID, "oi")
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error not typed: %v", err)
	}
	if len(store.outbound) != 0 {
		t.Errorf("failed send was persisted")
	}
	if _, ok := store.automation[conv.ID]; ok {
		t.Errorf("automation toggled on failed send")
	}
}

func TestStaffSendUnknownConversation(t *testing.T) {
	staff, _, _, _ := newStaffFixture()

	_, err := staff.SendMessage(context.Background(), uuid.New(), "oi")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error not typed: %v", err)
	}
}

func TestStaffSetAutomationReenables(t *testing.T) {
	staff, store, _, conv := newStaffFixture()

	if _, err := staff.SetAutomation(context.Background(), conv.ID, false); err != nil {
		t.Fatalf("SetAutomation: %v", err)
	}
	got, err := staff.SetAutomation(context.Background(), conv.ID, true)
	if err != nil {
		t.Fatalf("SetAutomation: %v", err)
	}
	if !got.AutomationEnabled {
		t.Errorf("returned conversation not updated")
	}
	if enabled := store.automation[conv.ID]; !enabled {
		t.Errorf("automation not re-enabled")
	}
}
