package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"imovelhub_backend/platform/logger"
)

func TestTranscribe(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fake-ogg-bytes"))
	}))
	defer media.Close()

	var gotLanguage string
	var gotFilename string
	stt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotLanguage = r.FormValue("language")
		if _, header, err := r.FormFile("file"); err == nil {
			gotFilename = header.Filename
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " quero visitar o ap101 "})
	}))
	defer stt.Close()

	client := NewClient(Config{BaseURL: stt.URL, APIKey: "k", Language: "pt"}, logger.New("test"))

	text, err := client.Transcribe(context.Background(), media.URL+"/media/voice.ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "quero visitar o ap101" {
		t.Errorf("text = %q", text)
	}
	if gotLanguage != "pt" {
		t.Errorf("language = %q", gotLanguage)
	}
	if gotFilename != "voice.ogg" {
		t.Errorf("filename = %q", gotFilename)
	}
}

func TestTranscribeRejectsNonHTTP(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://stt.example"}, logger.New("test"))
	if _, err := client.Transcribe(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("non-http media url accepted")
	}
}

func TestTranscribeProviderFailure(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("bytes"))
	}))
	defer media.Close()

	stt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer stt.Close()

	client := NewClient(Config{BaseURL: stt.URL}, logger.New("test"))
	if _, err := client.Transcribe(context.Background(), media.URL+"/a.ogg"); err == nil {
		t.Fatal("provider failure not surfaced")
	}
}

func TestTranscribeEmptyText(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("bytes"))
	}))
	defer media.Close()

	stt := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  "})
	}))
	defer stt.Close()

	client := NewClient(Config{BaseURL: stt.URL}, logger.New("test"))
	if _, err := client.Transcribe(context.Background(), media.URL+"/a.ogg"); err == nil {
		t.Fatal("empty transcript not treated as failure")
	}
}
