package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"imovelhub_backend/platform/logger"
)

func TestSendText(t *testing.T) {
	var captured sendRequest
	var gotAuth, gotDevice string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/message" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotDevice = r.Header.Get("X-Device-Id")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": map[string]any{"message_id": "prov-123"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "key", DeviceID: "dev1"}, logger.New("test"))

	id, err := client.SendText(context.Background(), "+55 (41) 99999-0000", "olá!")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != "prov-123" {
		t.Errorf("message id = %q", id)
	}
	if captured.Phone != "5541999990000" {
		t.Errorf("phone = %q, want digits only without plus", captured.Phone)
	}
	if captured.Message != "olá!" {
		t.Errorf("message = %q", captured.Message)
	}
	if gotAuth == "" {
		t.Errorf("authorization header missing")
	}
	if gotDevice != "dev1" {
		t.Errorf("device header = %q", gotDevice)
	}
}

func TestSendTextGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device offline", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, logger.New("test"))
	if _, err := client.SendText(context.Background(), "5541999990000", "oi"); err == nil {
		t.Fatal("expected error from gateway failure")
	}
}

func TestNilClient(t *testing.T) {
	var client *Client
	if _, err := client.SendText(context.Background(), "5541999990000", "oi"); err == nil {
		t.Fatal("nil client should fail sends")
	}
}
