package scheduler

import (
	"context"
	"testing"

	"imovelhub_backend/internal/conversations/domain"

	"github.com/alicebob/miniredis/v2"
)

func TestEnqueueTurn(t *testing.T) {
	redis := miniredis.RunT(t)

	client, err := NewClient("redis://"+redis.Addr(), "turns", 3)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	in := domain.InboundMessage{
		Phone:     "5541999990000",
		Text:      "quero visitar o AP101 amanhã às 10h",
		MessageID: "m1",
		PushName:  "Maria",
	}
	if err := client.EnqueueTurn(context.Background(), in); err != nil {
		t.Fatalf("EnqueueTurn: %v", err)
	}

	// asynq stores pending task ids in <queue>:pending.
	pending, err := redis.List("asynq:{turns}:pending")
	if err != nil {
		t.Fatalf("pending list: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending tasks = %d, want 1", len(pending))
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("", "turns", 3); err == nil {
		t.Error("empty redis url accepted")
	}
	if _, err := NewClient("not-a-url", "turns", 3); err == nil {
		t.Error("malformed redis url accepted")
	}
}

func TestTurnTaskRoundTrip(t *testing.T) {
	in := domain.InboundMessage{
		Phone:     "5541999990000",
		Text:      "oi",
		MessageID: "m1",
		Media:     &domain.Media{Kind: domain.MediaAudio, URL: "https://cdn.example/a.ogg"},
	}
	task, err := NewConversationTurnTask(in)
	if err != nil {
		t.Fatalf("NewConversationTurnTask: %v", err)
	}
	if task.Type() != TaskConversationTurn {
		t.Errorf("task type = %q", task.Type())
	}
	got, err := ParseConversationTurnPayload(task)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Phone != in.Phone || got.Text != in.Text || got.MessageID != in.MessageID {
		t.Errorf("payload mismatch: %+v", got)
	}
	if got.Media == nil || got.Media.URL != in.Media.URL {
		t.Errorf("media lost in round trip")
	}
}
