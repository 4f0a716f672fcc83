// Package transcription converts WhatsApp voice notes to text through a
// remote speech-to-text provider.
package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"imovelhub_backend/platform/logger"
)

// Config for the STT provider.
type Config struct {
	BaseURL  string
	APIKey   string
	Language string
}

// Client downloads the audio and forwards it to the provider as a
// multipart upload.
type Client struct {
	config Config
	http   *http.Client
	log    *logger.Logger
}

// NewClient creates a transcription client. Returns nil when no provider
// is configured; a nil client fails every transcription.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	if cfg.Language == "" {
		cfg.Language = "pt"
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

const maxAudioBytes = 25 << 20

// Transcribe fetches the audio at mediaURL and returns the provider's
// transcript.
func (c *Client) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("transcription provider not configured")
	}

	audio, filename, err := c.download(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	body := &strings.Builder{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := writer.WriteField("language", c.config.Language); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/transcriptions", strings.NewReader(body.String()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}

	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", fmt.Errorf("transcription provider returned empty text")
	}
	c.log.Info("audio transcribed", "bytes", len(audio), "chars", len(text))
	return text, nil
}

// download fetches the media file. Only http and https URLs are accepted;
// anything else was already filtered at the webhook but the check is
// repeated here because the URL crosses a queue in between.
func (c *Client) download(ctx context.Context, mediaURL string) ([]byte, string, error) {
	parsed, err := url.Parse(mediaURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", fmt.Errorf("unsupported media url scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media download failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download returned %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, "", fmt.Errorf("media download failed: %w", err)
	}

	filename := "audio.ogg"
	if base := strings.TrimSpace(parsed.Path); base != "" {
		if idx := strings.LastIndexByte(base, '/'); idx >= 0 && idx+1 < len(base) {
			filename = base[idx+1:]
		}
	}
	return audio, filename, nil
}
