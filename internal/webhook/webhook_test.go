package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"imovelhub_backend/internal/conversations/domain"
	apphttp "imovelhub_backend/internal/http"
	"imovelhub_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  rawMessage
		ok   bool
		want domain.InboundMessage
	}{
		{
			name: "plain text",
			raw:  rawMessage{From: "5541999990000@s.whatsapp.net", ID: "m1", PushName: " Maria ", Body: " oi, tudo bem? "},
			ok:   true,
			want: domain.InboundMessage{Phone: "5541999990000", Text: "oi, tudo bem?", MessageID: "m1", PushName: "Maria"},
		},
		{
			name: "nested text field",
			raw: rawMessage{Phone: "5541999990000", ID: "m2", Text: struct {
				Message string `json:"message"`
			}{Message: "olá"}},
			ok:   true,
			want: domain.InboundMessage{Phone: "5541999990000", Text: "olá", MessageID: "m2"},
		},
		{
			name: "phone too short",
			raw:  rawMessage{From: "12345", Body: "oi"},
			ok:   false,
		},
		{
			name: "phone with letters only",
			raw:  rawMessage{From: "status@broadcast", Body: "oi"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.Phone != tt.want.Phone || got.Text != tt.want.Text ||
				got.MessageID != tt.want.MessageID || got.PushName != tt.want.PushName {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeCapsText(t *testing.T) {
	raw := rawMessage{From: "5541999990000", Body: strings.Repeat("á", 5000)}
	got, ok := Normalize(raw)
	if !ok {
		t.Fatal("dropped")
	}
	if n := len([]rune(got.Text)); n != maxTextRunes {
		t.Errorf("text runes = %d, want %d", n, maxTextRunes)
	}
}

func TestNormalizeMedia(t *testing.T) {
	audio := rawMessage{From: "5541999990000", ID: "m1"}
	audio.Audio.URL = "https://cdn.example/a.ogg"
	got, ok := Normalize(audio)
	if !ok || got.Media == nil || got.Media.Kind != domain.MediaAudio {
		t.Fatalf("audio media not classified: %+v", got.Media)
	}

	image := rawMessage{From: "5541999990000", ID: "m2"}
	image.Image.URL = "ftp://cdn.example/a.jpg"
	image.Image.Caption = "olha essa casa"
	got, ok = Normalize(image)
	if !ok {
		t.Fatal("message with bad media URL dropped entirely")
	}
	if got.Media != nil {
		t.Errorf("non-http media URL kept")
	}

	doc := rawMessage{From: "5541999990000", ID: "m3"}
	doc.Document.URL = "https://cdn.example/planta.pdf"
	got, _ = Normalize(doc)
	if got.Media == nil || got.Media.Kind != domain.MediaDocument {
		t.Errorf("document media not classified")
	}
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	turns  []domain.InboundMessage
	failed bool
}

func (f *fakeEnqueuer) EnqueueTurn(_ context.Context, in domain.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, in)
	return nil
}

type fakeStatusStore struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (f *fakeStatusStore) UpdateDeliveryStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]string)
	}
	f.statuses[id] = status
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeEnqueuer, *fakeStatusStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	enqueuer := &fakeEnqueuer{}
	store := &fakeStatusStore{}
	module := NewModule(enqueuer, store, "secret", logger.New("test"))

	engine := gin.New()
	v1 := engine.Group("/api/v1")
	module.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: v1})
	return engine, enqueuer, store
}

func post(t *testing.T, engine *gin.Engine, url string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Webhook-Token", token)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadToken(t *testing.T) {
	engine, enqueuer, _ := newTestRouter(t)

	rec := post(t, engine, "/api/v1/webhook/whatsapp?type=message", rawMessage{From: "5541999990000", Body: "oi"}, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if len(enqueuer.turns) != 0 {
		t.Errorf("message enqueued despite bad token")
	}
}

func TestWebhookAcceptsQueryToken(t *testing.T) {
	engine, enqueuer, _ := newTestRouter(t)

	rec := post(t, engine, "/api/v1/webhook/whatsapp?type=message&token=secret",
		rawMessage{From: "5541999990000", ID: "m1", Body: "oi"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(enqueuer.turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(enqueuer.turns))
	}
	if enqueuer.turns[0].Phone != "5541999990000" {
		t.Errorf("phone = %q", enqueuer.turns[0].Phone)
	}
}

func TestWebhookDropsInvalidPhoneWith200(t *testing.T) {
	engine, enqueuer, _ := newTestRouter(t)

	rec := post(t, engine, "/api/v1/webhook/whatsapp?type=message",
		rawMessage{From: "abc", Body: "oi"}, "secret")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 on silent drop", rec.Code)
	}
	if len(enqueuer.turns) != 0 {
		t.Errorf("invalid phone enqueued")
	}
}

func TestWebhookMalformedBodyStill200(t *testing.T) {
	engine, enqueuer, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/whatsapp?type=message", strings.NewReader("{not json"))
	req.Header.Set("X-Webhook-Token", "secret")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(enqueuer.turns) != 0 {
		t.Errorf("malformed payload enqueued")
	}
}

func TestWebhookDeliveryStatus(t *testing.T) {
	engine, _, store := newTestRouter(t)

	rec := post(t, engine, "/api/v1/webhook/whatsapp?type=message-status",
		rawStatus{ID: "m1", Status: "read"}, "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.statuses["m1"] != "read" {
		t.Errorf("delivery status not recorded")
	}
}

func TestWebhookLifecycleEvents(t *testing.T) {
	engine, enqueuer, _ := newTestRouter(t)

	for _, eventType := range []string{"presence", "connected", "disconnected", "mystery"} {
		rec := post(t, engine, "/api/v1/webhook/whatsapp?type="+eventType, gin.H{}, "secret")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", eventType, rec.Code)
		}
	}
	if len(enqueuer.turns) != 0 {
		t.Errorf("lifecycle events enqueued turns")
	}
}
