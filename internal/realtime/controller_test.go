package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeSyncStore struct {
	mu            sync.Mutex
	conversations []ConversationView
	messages      map[uuid.UUID][]MessageView
	fetchCalls    int
	sendHook      func()
	sendErr       error
	nextAckID     string
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{messages: make(map[uuid.UUID][]MessageView)}
}

func (s *fakeSyncStore) FetchConversations(context.Context) ([]ConversationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	out := make([]ConversationView, len(s.conversations))
	copy(out, s.conversations)
	return out, nil
}

func (s *fakeSyncStore) FetchMessages(_ context.Context, id uuid.UUID) ([]MessageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MessageView, len(s.messages[id]))
	copy(out, s.messages[id])
	return out, nil
}

func (s *fakeSyncStore) Send(_ context.Context, id uuid.UUID, text string) (MessageView, error) {
	if s.sendHook != nil {
		s.sendHook()
	}
	if s.sendErr != nil {
		return MessageView{}, s.sendErr
	}
	ackID := s.nextAckID
	if ackID == "" {
		ackID = uuid.NewString()
	}
	return MessageView{
		ID:             ackID,
		ConversationID: id,
		Direction:      domain.DirectionOutbound,
		Content:        text,
		CreatedAt:      time.Now(),
	}, nil
}

func (s *fakeSyncStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func newTestController(t *testing.T, store *fakeSyncStore) *Controller {
	t.Helper()
	c := NewController(store, Options{
		Debounce:     10 * time.Millisecond,
		PollInterval: time.Hour,
	}, logger.New("test"))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func conv(id uuid.UUID, at time.Time) ConversationView {
	return ConversationView{ID: id, Phone: "+5541999990000", Name: "Lead", LastMessageAt: at, AutomationEnabled: true}
}

func TestSendAckReplacesOptimisticInPlace(t *testing.T) {
	store := newFakeSyncStore()
	convID := uuid.New()
	store.conversations = []ConversationView{conv(convID, time.Now())}
	store.nextAckID = "srv-1"

	c := newTestController(t, store)
	if err := c.Open(context.Background(), convID); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := c.Send(context.Background(), "olá, posso ajudar?"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != "srv-1" {
		t.Errorf("id = %q, want server id", msgs[0].ID)
	}
}

func TestPushBeforeAckNeverDuplicates(t *testing.T) {
	store := newFakeSyncStore()
	convID := uuid.New()
	store.conversations = []ConversationView{conv(convID, time.Now())}
	serverID := uuid.New()
	store.nextAckID = serverID.String()

	c := newTestController(t, store)
	if err := c.Open(context.Background(), convID); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// The push for the sent message lands before the HTTP ack returns.
	store.sendHook = func() {
		c.HandleMessageCreated(events.MessageCreated{
			BaseEvent:      events.NewBaseEvent(),
			MessageID:      serverID,
			ConversationID: convID,
			Direction:      domain.DirectionOutbound,
			Content:        "confirmo a visita",
			CreatedAt:      time.Now(),
		})
	}

	if err := c.Send(context.Background(), "confirmo a visita"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != serverID.String() {
		t.Errorf("id = %q, want %q", msgs[0].ID, serverID)
	}
}

func TestSendErrorRollsBackOptimisticMessage(t *testing.T) {
	store := newFakeSyncStore()
	convID := uuid.New()
	store.conversations = []ConversationView{conv(convID, time.Now())}
	store.sendErr = fmt.Errorf("gateway down")

	c := newTestController(t, store)
	if err := c.Open(context.Background(), convID); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := c.Send(context.Background(), "oi"); err == nil {
		t.Fatal("expected error")
	}
	if msgs := c.Messages(); len(msgs) != 0 {
		t.Errorf("optimistic message not rolled back: %v", msgs)
	}
}

func TestUnreadOnlyForInboundOnClosedConversation(t *testing.T) {
	store := newFakeSyncStore()
	openID := uuid.New()
	otherID := uuid.New()
	store.conversations = []ConversationView{conv(openID, time.Now()), conv(otherID, time.Now())}

	c := newTestController(t, store)
	if err := c.Open(context.Background(), openID); err != nil {
		t.Fatalf("Open: %v", err)
	}

	push := func(convID uuid.UUID, direction string) {
		c.HandleMessageCreated(events.MessageCreated{
			BaseEvent:      events.NewBaseEvent(),
			MessageID:      uuid.New(),
			ConversationID: convID,
			Direction:      direction,
			Content:        "mensagem",
			CreatedAt:      time.Now(),
		})
	}

	push(otherID, domain.DirectionInbound)
	push(openID, domain.DirectionInbound)
	push(otherID, domain.DirectionOutbound)

	if got := c.Unread(otherID); got != 1 {
		t.Errorf("unread(other) = %d, want 1", got)
	}
	if got := c.Unread(openID); got != 0 {
		t.Errorf("unread(open) = %d, want 0", got)
	}
}

func TestUnknownConversationBurstCollapsesIntoOneRefetch(t *testing.T) {
	store := newFakeSyncStore()
	c := newTestController(t, store)

	baseline := store.calls()
	for i := 0; i < 5; i++ {
		c.HandleMessageCreated(events.MessageCreated{
			BaseEvent:      events.NewBaseEvent(),
			MessageID:      uuid.New(),
			ConversationID: uuid.New(),
			Direction:      domain.DirectionInbound,
			Content:        "oi",
			CreatedAt:      time.Now(),
		})
	}

	deadline := time.Now().Add(time.Second)
	for store.calls() == baseline && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give a second debounce window a chance to fire wrongly.
	time.Sleep(50 * time.Millisecond)

	if got := store.calls() - baseline; got != 1 {
		t.Errorf("refetches = %d, want 1", got)
	}
}

func TestConversationUpdatedReordersAndTogglesAutomation(t *testing.T) {
	store := newFakeSyncStore()
	oldID := uuid.New()
	newID := uuid.New()
	base := time.Now()
	store.conversations = []ConversationView{conv(newID, base), conv(oldID, base.Add(-time.Hour))}

	c := newTestController(t, store)

	c.HandleConversationUpdated(events.ConversationUpdated{
		BaseEvent:         events.NewBaseEvent(),
		ConversationID:    oldID,
		AutomationEnabled: false,
		LastMessageAt:     base.Add(time.Minute),
	})

	list := c.Conversations()
	if list[0].ID != oldID {
		t.Fatalf("conversation not moved to top")
	}
	if list[0].AutomationEnabled {
		t.Errorf("automation flag not applied")
	}
}

func TestFallbackPollRemergesServerState(t *testing.T) {
	store := newFakeSyncStore()
	convID := uuid.New()
	store.conversations = []ConversationView{conv(convID, time.Now())}

	c := NewController(store, Options{
		Debounce:     10 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}, logger.New("test"))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	added := uuid.New()
	store.mu.Lock()
	store.conversations = append(store.conversations, conv(added, time.Now().Add(time.Minute)))
	store.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(c.Conversations()) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("poll never picked up the new conversation")
}
