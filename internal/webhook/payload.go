package webhook

import (
	"net/url"

	"imovelhub_backend/internal/conversations/domain"
)

// rawMessage is the provider's inbound message payload. Only the fields
// the normalizer reads are declared.
type rawMessage struct {
	From     string `json:"from"`
	Phone    string `json:"phone"`
	FromMe   bool   `json:"fromMe"`
	ID       string `json:"id"`
	PushName string `json:"pushName"`
	Body     string `json:"body"`
	Text     struct {
		Message string `json:"message"`
	} `json:"text"`
	Image struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	} `json:"image"`
	Audio struct {
		URL string `json:"url"`
	} `json:"audio"`
	Video struct {
		URL     string `json:"url"`
		Caption string `json:"caption"`
	} `json:"video"`
	Document struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
	} `json:"document"`
}

// rawStatus is the provider's delivery receipt payload.
type rawStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// classifyMedia picks the attachment kind from the payload shape. Exactly
// one of the media blocks is populated per message; the first non-empty
// one wins. URLs that do not parse as http or https are dropped while the
// message itself is kept.
func classifyMedia(raw rawMessage) *domain.Media {
	type option struct {
		kind string
		url  string
	}
	options := []option{
		{domain.MediaImage, raw.Image.URL},
		{domain.MediaAudio, raw.Audio.URL},
		{domain.MediaVideo, raw.Video.URL},
		{domain.MediaDocument, raw.Document.URL},
	}
	for _, opt := range options {
		if opt.url == "" {
			continue
		}
		if !validMediaURL(opt.url) {
			return nil
		}
		return &domain.Media{Kind: opt.kind, URL: opt.url}
	}
	return nil
}

func validMediaURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
