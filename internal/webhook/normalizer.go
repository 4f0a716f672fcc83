// Package webhook receives the WhatsApp provider's callbacks, normalizes
// them into provider-independent messages and hands them to the turn
// queue. The webhook itself stores nothing.
package webhook

import (
	"strings"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/platform/phone"
)

const maxTextRunes = 4096

// Normalize converts a raw provider message into the engine's inbound
// shape. Returns false when the message must be dropped: an invalid phone
// is the only drop reason, and drops are silent towards the provider.
func Normalize(raw rawMessage) (domain.InboundMessage, bool) {
	number := raw.Phone
	if number == "" {
		number = raw.From
	}
	number = digitsOnly(number)
	if !phone.ValidWebhookPhone(number) {
		return domain.InboundMessage{}, false
	}

	text := raw.Body
	if text == "" {
		text = raw.Text.Message
	}
	media := classifyMedia(raw)
	if text == "" && media != nil {
		switch media.Kind {
		case domain.MediaImage:
			text = raw.Image.Caption
		case domain.MediaVideo:
			text = raw.Video.Caption
		}
	}
	text = capRunes(strings.TrimSpace(text), maxTextRunes)

	return domain.InboundMessage{
		Phone:     number,
		Text:      text,
		Media:     media,
		FromMe:    raw.FromMe,
		MessageID: raw.ID,
		PushName:  strings.TrimSpace(raw.PushName),
	}, true
}

// digitsOnly strips the provider's JID suffix ("@s.whatsapp.net") and any
// formatting, keeping digits.
func digitsOnly(input string) string {
	if at := strings.IndexByte(input, '@'); at >= 0 {
		input = input[:at]
	}
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func capRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
