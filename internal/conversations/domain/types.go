// Package domain holds the conversation aggregate types and the pending
// visit state machine. Everything here is pure: no I/O, no clock reads.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is one WhatsApp thread with a lead.
type Conversation struct {
	ID                uuid.UUID
	WhatsAppID        string
	Phone             string
	LeadID            *uuid.UUID
	AutomationEnabled bool
	HumanTakeoverAt   *time.Time
	Pending           PendingVisit
	LastMessageAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Lead is a prospective buyer identified by phone.
type Lead struct {
	ID          uuid.UUID
	Phone       string
	Name        string
	BrokerID    *uuid.UUID
	Preferences string
	CreatedAt   time.Time
}

// Message direction values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Transcription status values for audio messages.
const (
	TranscriptionPending = "pending"
	TranscriptionDone    = "done"
	TranscriptionError   = "error"
)

// Message is one immutable entry in the conversation log.
type Message struct {
	ID                  uuid.UUID
	ConversationID      uuid.UUID
	ProviderMessageID   string
	Direction           string
	Content             string
	MediaType           string
	MediaURL            string
	Status              string
	Transcription       string
	TranscriptionStatus string
	CreatedAt           time.Time
}

// Visit status values.
const (
	VisitScheduled = "scheduled"
	VisitConfirmed = "confirmed"
	VisitCancelled = "cancelled"
)

// Visit is a scheduled property visit.
type Visit struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	PropertyID  uuid.UUID
	BrokerID    uuid.UUID
	ScheduledAt time.Time
	Status      string
	Notes       string
	CreatedAt   time.Time
}

// Property is a listing as seen by the conversation engine.
type Property struct {
	ID           uuid.UUID
	Code         string
	Title        string
	Description  string
	Status       string
	Street       string
	Neighborhood string
	City         string
	Price        float64
	Bedrooms     int
	AreaM2       float64
}

// PropertyCandidate is a disambiguation option offered to the lead.
type PropertyCandidate struct {
	ID      uuid.UUID `json:"id"`
	Code    string    `json:"code"`
	Title   string    `json:"title"`
	Address string    `json:"address"`
}

// CandidateFromProperty builds the candidate shown in a numbered list.
func CandidateFromProperty(p Property) PropertyCandidate {
	address := p.Street
	if p.Neighborhood != "" {
		if address != "" {
			address += ", "
		}
		address += p.Neighborhood
	}
	if p.City != "" {
		if address != "" {
			address += " - "
		}
		address += p.City
	}
	return PropertyCandidate{ID: p.ID, Code: p.Code, Title: p.Title, Address: address}
}

// Media kind values for inbound attachments.
const (
	MediaImage    = "image"
	MediaAudio    = "audio"
	MediaVideo    = "video"
	MediaDocument = "document"
)

// Media is a normalized inbound attachment reference.
type Media struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// InboundMessage is the provider-independent shape of one received
// WhatsApp message, produced by the webhook normalizer and consumed by the
// turn worker.
type InboundMessage struct {
	Phone     string `json:"phone"`
	Text      string `json:"text"`
	Media     *Media `json:"media,omitempty"`
	FromMe    bool   `json:"fromMe"`
	MessageID string `json:"messageId"`
	PushName  string `json:"pushName"`
}
