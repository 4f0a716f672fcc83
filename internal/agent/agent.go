// Package agent is the AI fallback for conversation turns the
// deterministic extractors could not advance. It grounds the model on the
// available listings and exposes a single scheduling tool whose calls are
// treated as requests, never applied directly.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/platform/ai/completion"

	"google.golang.org/genai"
)

// ScheduleVisitRequest is the model's scheduling intent. Every field is
// optional; the engine re-runs resolution and disambiguation over it.
type ScheduleVisitRequest struct {
	PropertyID      string `json:"property_id,omitempty"`
	PropertyCode    string `json:"property_code,omitempty"`
	PropertyAddress string `json:"property_address,omitempty"`
	ScheduledAtISO  string `json:"scheduled_at_iso,omitempty"`
	ScheduledAtText string `json:"scheduled_at_text,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Result is one agent turn: free text, a tool call, or both.
type Result struct {
	Text     string
	ToolCall *ScheduleVisitRequest
}

// Completer is the slice of the completion client the agent needs.
type Completer interface {
	Generate(ctx context.Context, system string, contents []*genai.Content, tools []*genai.FunctionDeclaration) (*genai.Content, error)
}

// Agent produces fallback replies grounded on the listing catalog.
type Agent struct {
	completer Completer
}

// New creates an agent on top of a completion client.
func New(completer Completer) *Agent {
	return &Agent{completer: completer}
}

var scheduleVisitTool = &genai.FunctionDeclaration{
	Name:        "schedule_visit",
	Description: "Registra o interesse do cliente em visitar um imóvel em um dia e horário. Use sempre que o cliente indicar imóvel e/ou horário. O sistema valida e pede confirmação ao cliente.",
	ParametersJsonSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"property_id":       map[string]any{"type": "string", "description": "UUID do imóvel, se conhecido"},
			"property_code":     map[string]any{"type": "string", "description": "Código do anúncio, ex: AP101"},
			"property_address":  map[string]any{"type": "string", "description": "Endereço ou bairro citado pelo cliente"},
			"scheduled_at_iso":  map[string]any{"type": "string", "description": "Data e hora em ISO 8601 com offset, ex: 2026-01-24T17:00:00-03:00"},
			"scheduled_at_text": map[string]any{"type": "string", "description": "Data e hora exatamente como o cliente escreveu"},
			"timezone":          map[string]any{"type": "string", "description": "Fuso horário IANA, ex: America/Sao_Paulo"},
			"notes":             map[string]any{"type": "string", "description": "Observações relevantes do cliente"},
		},
	},
}

// Reply runs one fallback turn. History must be in chronological order,
// oldest first. Sentinel errors from the completion client pass through
// untouched so the caller can retry or hand off.
func (a *Agent) Reply(ctx context.Context, properties []domain.Property, history []domain.Message) (*Result, error) {
	system := BuildSystemPrompt(properties)
	contents := buildContents(history)

	reply, err := a.completer.Generate(ctx, system, contents, []*genai.FunctionDeclaration{scheduleVisitTool})
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var texts []string
	for _, part := range reply.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil && part.FunctionCall.Name == scheduleVisitTool.Name {
			call, err := decodeScheduleVisit(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to decode schedule_visit call: %w", err)
			}
			result.ToolCall = call
			continue
		}
		if strings.TrimSpace(part.Text) != "" {
			texts = append(texts, part.Text)
		}
	}
	result.Text = strings.TrimSpace(strings.Join(texts, "\n"))

	if result.Text == "" && result.ToolCall == nil {
		return nil, fmt.Errorf("completion returned neither text nor tool call")
	}
	return result, nil
}

// buildContents maps the message log onto model roles: inbound becomes
// user, outbound becomes model. Audio messages contribute their
// transcription when present.
func buildContents(history []domain.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		text := msg.Content
		if msg.MediaType == domain.MediaAudio && msg.Transcription != "" {
			text = msg.Transcription
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		role := genai.RoleUser
		if msg.Direction == domain.DirectionOutbound {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(text)},
		})
	}
	return contents
}

func decodeScheduleVisit(args map[string]any) (*ScheduleVisitRequest, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var call ScheduleVisitRequest
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// Sentinel re-exports so engine code does not import the completion
// package directly.
var (
	ErrRateLimited     = completion.ErrRateLimited
	ErrPaymentRequired = completion.ErrPaymentRequired
)
