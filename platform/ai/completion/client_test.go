package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/genai"
)

func testClient(url string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: url, Model: "test-model"})
}

func userContent(text string) []*genai.Content {
	return []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(text)},
	}}
}

func TestGenerateText(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Posso agendar uma visita."}}]}`))
	}))
	defer srv.Close()

	content, err := testClient(srv.URL).Generate(context.Background(), "persona", userContent("oi"), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(content.Parts) != 1 || content.Parts[0].Text != "Posso agendar uma visita." {
		t.Fatalf("parts = %+v", content.Parts)
	}
	if content.Role != genai.RoleModel {
		t.Errorf("role = %q", content.Role)
	}

	messages, _ := captured["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(messages))
	}
	first, _ := messages[0].(map[string]interface{})
	if first["role"] != "system" || first["content"] != "persona" {
		t.Errorf("system message = %v", first)
	}
	if _, ok := captured["tools"]; ok {
		t.Errorf("tools sent without declarations")
	}
}

func TestGenerateToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["tool_choice"] != "auto" {
			t.Errorf("tool_choice = %v", req["tool_choice"])
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[
			{"id":"call-1","type":"function","function":{"name":"schedule_visit","arguments":"{\"property_code\":\"AP101\"}"}}
		]}}]}`))
	}))
	defer srv.Close()

	tools := []*genai.FunctionDeclaration{{
		Name:                 "schedule_visit",
		ParametersJsonSchema: map[string]interface{}{"type": "object"},
	}}
	content, err := testClient(srv.URL).Generate(context.Background(), "persona", userContent("quero ver o AP101"), tools)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(content.Parts) != 1 || content.Parts[0].FunctionCall == nil {
		t.Fatalf("parts = %+v", content.Parts)
	}
	call := content.Parts[0].FunctionCall
	if call.Name != "schedule_visit" {
		t.Errorf("tool name = %q", call.Name)
	}
	if call.Args["property_code"] != "AP101" {
		t.Errorf("args = %v", call.Args)
	}
}

func TestGenerateStatusSentinels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"payment required", http.StatusPaymentRequired, ErrPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Generate(context.Background(), "", userContent("oi"), nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerateServerErrorIsNotSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Generate(context.Background(), "", userContent("oi"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrPaymentRequired) {
		t.Errorf("500 mapped to a sentinel: %v", err)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Generate(context.Background(), "", userContent("oi"), nil); err == nil {
		t.Fatal("expected error on empty choices")
	}
}
