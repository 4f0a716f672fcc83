package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"imovelhub_backend/platform/logger"
)

func TestRedisBridgeRelaysEventsAcrossBuses(t *testing.T) {
	mr := miniredis.RunT(t)
	log := logger.New("test")

	workerBus := NewInMemoryBus(log)
	apiBus := NewInMemoryBus(log)

	workerClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	apiClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = workerClient.Close()
		_ = apiClient.Close()
	})

	forward := newRedisBridgeWithClient(workerClient, workerBus, log)
	forward.ForwardLocal(BridgedEventNames()...)

	consume := newRedisBridgeWithClient(apiClient, apiBus, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = consume.Run(ctx) }()

	received := make(chan Event, 8)
	apiBus.Subscribe(MessageCreated{}.EventName(), HandlerFunc(func(_ context.Context, ev Event) error {
		received <- ev
		return nil
	}))

	msgID := uuid.New()
	convID := uuid.New()
	event := MessageCreated{
		BaseEvent:      NewBaseEvent(),
		MessageID:      msgID,
		ConversationID: convID,
		Direction:      "inbound",
		Content:        "oi",
	}

	// The consume side subscribes asynchronously, so keep publishing
	// until a copy makes it across.
	deadline := time.After(2 * time.Second)
	for {
		if err := workerBus.PublishSync(ctx, event); err != nil {
			t.Fatalf("PublishSync: %v", err)
		}
		select {
		case got := <-received:
			mc, ok := got.(MessageCreated)
			if !ok {
				t.Fatalf("bridged event is %T, want value-typed MessageCreated", got)
			}
			if mc.MessageID != msgID || mc.ConversationID != convID {
				t.Errorf("ids lost in transit: %+v", mc)
			}
			if mc.Content != "oi" {
				t.Errorf("content = %q, want oi", mc.Content)
			}
			return
		case <-deadline:
			t.Fatal("bridged event never reached the api bus")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestRedisBridgeReplayIgnoresUnknownEvents(t *testing.T) {
	log := logger.New("test")
	bus := NewInMemoryBus(log)
	bridge := newRedisBridgeWithClient(nil, bus, log)

	body, err := json.Marshal(envelope{Name: "nope.event", Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	bridge.replay(context.Background(), body)

	bridge.replay(context.Background(), []byte("not json"))
}
