// Package service orchestrates conversation turns: resolution, the
// deterministic scheduling flow, the AI fallback and outbound delivery.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"imovelhub_backend/internal/agent"
	"imovelhub_backend/internal/conversations/domain"
	"imovelhub_backend/internal/events"
	"imovelhub_backend/internal/scheduling"
	"imovelhub_backend/platform/logger"
	"imovelhub_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the persistence surface the engine needs.
type Store interface {
	AcquireTurnLock(ctx context.Context, whatsappID string) (func(), error)

	GetOrCreateConversation(ctx context.Context, whatsappID, phoneE164 string) (*domain.Conversation, error)
	LinkLead(ctx context.Context, conversationID, leadID uuid.UUID) error
	UpdatePendingVisit(ctx context.Context, conversationID uuid.UUID, pending domain.PendingVisit) error
	SetAutomation(ctx context.Context, conversationID uuid.UUID, enabled bool) error
	TouchLastMessage(ctx context.Context, conversationID uuid.UUID) error

	GetOrCreateLead(ctx context.Context, phoneE164, name string) (*domain.Lead, error)
	AssignBroker(ctx context.Context, leadID, brokerID uuid.UUID) (uuid.UUID, error)
	PickBroker(ctx context.Context) (uuid.UUID, error)

	InsertInbound(ctx context.Context, msg *domain.Message) (bool, error)
	InsertOutbound(ctx context.Context, msg *domain.Message) error
	UpdateTranscription(ctx context.Context, messageID uuid.UUID, text, status string) error
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error)

	CreateVisit(ctx context.Context, visit *domain.Visit) error
	RescheduleVisit(ctx context.Context, visitID uuid.UUID, scheduledAt time.Time) error
	SetVisitStatus(ctx context.Context, visitID uuid.UUID, status string) error

	GetAvailableByID(ctx context.Context, id uuid.UUID) (*domain.Property, error)
	GetAvailableByCode(ctx context.Context, code string) (*domain.Property, error)
	SearchAvailable(ctx context.Context, fragment string) ([]domain.Property, error)
	ListAvailable(ctx context.Context, limit int) ([]domain.Property, error)
}

// Sender delivers outbound WhatsApp messages.
type Sender interface {
	SendText(ctx context.Context, phoneE164, text string) (providerMessageID string, err error)
}

// Responder is the AI fallback.
type Responder interface {
	Reply(ctx context.Context, properties []domain.Property, history []domain.Message) (*agent.Result, error)
}

// Transcriber converts an audio media URL into text.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

const (
	historyLimit   = 30
	groundingLimit = 5
)

// Engine processes one inbound turn end to end.
type Engine struct {
	store       Store
	sender      Sender
	responder   Responder
	transcriber Transcriber
	bus         events.Bus
	log         *logger.Logger
	now         func() time.Time
}

// NewEngine wires the turn engine.
func NewEngine(store Store, sender Sender, responder Responder, transcriber Transcriber, bus events.Bus, log *logger.Logger) *Engine {
	return &Engine{
		store:       store,
		sender:      sender,
		responder:   responder,
		transcriber: transcriber,
		bus:         bus,
		log:         log,
		now:         time.Now,
	}
}

// BindBus subscribes the engine to abandoned-turn events so threads the
// queue gave up on are handed to staff instead of staying automated.
func (e *Engine) BindBus(bus events.Bus) {
	bus.Subscribe(events.TurnAbandoned{}.EventName(), events.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		abandoned, ok := ev.(events.TurnAbandoned)
		if !ok {
			return nil
		}
		return e.handleTurnAbandoned(ctx, abandoned)
	}))
}

// handleTurnAbandoned pauses automation on a conversation whose turn
// exhausted its retries so staff pick the thread up.
func (e *Engine) handleTurnAbandoned(ctx context.Context, ev events.TurnAbandoned) error {
	log := e.log.WithConversation(ev.Phone)
	conv, err := e.store.GetOrCreateConversation(ctx, ev.Phone, phone.NormalizeE164(ev.Phone))
	if err != nil {
		return err
	}
	if !conv.AutomationEnabled {
		return nil
	}
	if err := e.store.SetAutomation(ctx, conv.ID, false); err != nil {
		return err
	}
	e.publishConversation(ctx, conv.ID, false)
	log.Info("turn abandoned, conversation flagged for human follow-up", "reason", ev.Reason)
	return nil
}

// ProcessTurn handles one normalized inbound message. A non-nil return
// means the turn is retryable; everything the turn already persisted is
// protected by the message dedupe on replay.
func (e *Engine) ProcessTurn(ctx context.Context, in domain.InboundMessage) error {
	release, err := e.store.AcquireTurnLock(ctx, in.Phone)
	if err != nil {
		return fmt.Errorf("turn lock: %w", err)
	}
	defer release()

	log := e.log.WithConversation(in.Phone)
	phoneE164 := phone.NormalizeE164(in.Phone)

	conv, err := e.store.GetOrCreateConversation(ctx, in.Phone, phoneE164)
	if err != nil {
		return err
	}

	if in.FromMe {
		return e.handleStaffReply(ctx, conv, in, log)
	}

	lead, err := e.store.GetOrCreateLead(ctx, phoneE164, in.PushName)
	if err != nil {
		return err
	}
	if conv.LeadID == nil {
		if err := e.store.LinkLead(ctx, conv.ID, lead.ID); err != nil {
			return err
		}
		conv.LeadID = &lead.ID
	}

	msg := &domain.Message{
		ConversationID:    conv.ID,
		ProviderMessageID: in.MessageID,
		Direction:         domain.DirectionInbound,
		Content:           in.Text,
	}
	if in.Media != nil {
		msg.MediaType = in.Media.Kind
		msg.MediaURL = in.Media.URL
		if in.Media.Kind == domain.MediaAudio {
			msg.TranscriptionStatus = domain.TranscriptionPending
		}
	}
	inserted, err := e.store.InsertInbound(ctx, msg)
	if err != nil {
		return err
	}
	if !inserted {
		log.Info("duplicate inbound message ignored", "providerMessageId", in.MessageID)
		return nil
	}
	if err := e.store.TouchLastMessage(ctx, conv.ID); err != nil {
		log.DatabaseError("touch conversation", err)
	}
	e.publishMessage(ctx, msg)

	text := in.Text
	if msg.TranscriptionStatus == domain.TranscriptionPending {
		transcript, err := e.transcriber.Transcribe(ctx, msg.MediaURL)
		if err != nil {
			log.ExternalCallFailed("transcription", err)
			if uerr := e.store.UpdateTranscription(ctx, msg.ID, "", domain.TranscriptionError); uerr != nil {
				log.DatabaseError("update transcription", uerr)
			}
		} else {
			if uerr := e.store.UpdateTranscription(ctx, msg.ID, transcript, domain.TranscriptionDone); uerr != nil {
				log.DatabaseError("update transcription", uerr)
			}
			text = transcript
		}
	}

	if !conv.AutomationEnabled {
		log.Info("automation disabled, message stored for staff")
		return nil
	}

	return e.runAutomation(ctx, conv, lead, text, log)
}

// handleStaffReply records a message the staff sent from the business
// phone itself and pauses automation for the thread.
func (e *Engine) handleStaffReply(ctx context.Context, conv *domain.Conversation, in domain.InboundMessage, log *logger.Logger) error {
	msg := &domain.Message{
		ConversationID:    conv.ID,
		ProviderMessageID: in.MessageID,
		Direction:         domain.DirectionOutbound,
		Content:           in.Text,
		Status:            "sent",
	}
	if err := e.store.InsertOutbound(ctx, msg); err != nil {
		return err
	}
	if conv.AutomationEnabled {
		if err := e.store.SetAutomation(ctx, conv.ID, false); err != nil {
			return err
		}
		log.Info("human takeover detected, automation paused")
	}
	if err := e.store.TouchLastMessage(ctx, conv.ID); err != nil {
		log.DatabaseError("touch conversation", err)
	}
	e.publishMessage(ctx, msg)
	e.publishConversation(ctx, conv.ID, false)
	return nil
}

// runAutomation is the deterministic extraction pass plus the AI fallback.
func (e *Engine) runAutomation(ctx context.Context, conv *domain.Conversation, lead *domain.Lead, text string, log *logger.Logger) error {
	now := e.now()
	pending := conv.Pending

	// Confirmation replies are matched before anything else and without
	// any model involvement. Outside awaiting_confirmation an affirmative
	// changes nothing; the message falls through to extraction and, when
	// that finds no slot either, to the conversational fallback.
	if pending.Step == domain.StepAwaitingConfirmation {
		switch scheduling.ParseConfirmation(text) {
		case scheduling.SentimentAffirmative:
			return e.confirmVisit(ctx, conv, lead, log)
		case scheduling.SentimentNegative:
			return e.declineVisit(ctx, conv, log)
		}
	}

	outcome, err := e.extractSlots(ctx, pending, text, now)
	if err != nil {
		return err
	}
	if outcome.progressed {
		return e.applyTransition(ctx, conv, lead, outcome.transition, log)
	}

	return e.fallbackTurn(ctx, conv, lead, log)
}

type extraction struct {
	transition domain.Transition
	progressed bool
}

// extractSlots applies every slot the message carries: a candidate choice,
// a datetime, a property reference. Later slots build on the state the
// earlier ones produced.
func (e *Engine) extractSlots(ctx context.Context, pending domain.PendingVisit, text string, now time.Time) (extraction, error) {
	var out extraction
	state := pending

	if tr, ok := state.ChooseCandidate(text); ok {
		out = extraction{transition: tr, progressed: true}
		state = tr.Next
	}

	if at, ok := scheduling.ParseDateTime(text, now); ok {
		tr := state.WithDateTime(at, now)
		out = extraction{transition: tr, progressed: true}
		if tr.Action == domain.ActionRejectStaleDateTime {
			return out, nil
		}
		state = tr.Next
	}

	tr, resolved, err := e.resolveProperty(ctx, state, text)
	if err != nil {
		return extraction{}, err
	}
	if resolved {
		out = extraction{transition: tr, progressed: true}
	}

	return out, nil
}

// Short cue-less texts like "Moema" or "Edifício Aurora" are tried as
// fuzzy fragments; longer texts without a cue are left to the fallback.
const maxBareFragmentWords = 4

// resolveProperty classifies and resolves a property reference against the
// available catalog. One match fills the slot, several become a candidate
// list, none leaves the state untouched. A text that carries no cue but is
// short enough to plausibly be a bare neighborhood or building name is
// retried as a whole-text fragment.
func (e *Engine) resolveProperty(ctx context.Context, state domain.PendingVisit, text string) (domain.Transition, bool, error) {
	ref := scheduling.ClassifyPropertyRef(text)
	if ref.Kind == scheduling.RefNone && bareFragmentCandidate(text) {
		ref = scheduling.FragmentRef(text)
	}
	return e.resolveRef(ctx, state, ref)
}

// bareFragmentCandidate filters the texts worth a cue-less search. Purely
// numeric replies are candidate-list choices, never property names.
func bareFragmentCandidate(text string) bool {
	if len(strings.Fields(text)) > maxBareFragmentWords {
		return false
	}
	return strings.ContainsFunc(text, unicode.IsLetter)
}

// resolveRef resolves an already-classified reference.
func (e *Engine) resolveRef(ctx context.Context, state domain.PendingVisit, ref scheduling.PropertyRef) (domain.Transition, bool, error) {
	switch ref.Kind {
	case scheduling.RefID:
		property, err := e.store.GetAvailableByID(ctx, ref.ID)
		if err != nil {
			return domain.Transition{}, false, err
		}
		if property == nil {
			return domain.Transition{}, false, nil
		}
		return state.WithProperty(property.ID), true, nil

	case scheduling.RefCode:
		property, err := e.store.GetAvailableByCode(ctx, ref.Code)
		if err != nil {
			return domain.Transition{}, false, err
		}
		if property == nil {
			return domain.Transition{}, false, nil
		}
		return state.WithProperty(property.ID), true, nil

	case scheduling.RefFragment:
		matches, err := e.store.SearchAvailable(ctx, ref.Fragment)
		if err != nil {
			return domain.Transition{}, false, err
		}
		switch len(matches) {
		case 0:
			return domain.Transition{}, false, nil
		case 1:
			return state.WithProperty(matches[0].ID), true, nil
		default:
			candidates := make([]domain.PropertyCandidate, 0, len(matches))
			for _, m := range matches {
				candidates = append(candidates, domain.CandidateFromProperty(m))
			}
			return state.WithCandidates(candidates), true, nil
		}
	}

	return domain.Transition{}, false, nil
}

// applyTransition persists the new slot state and sends the reply the
// action calls for. Drafting a visit inserts or reschedules the visit row
// before the slot state is written, so a failed insert leaves the previous
// state intact.
func (e *Engine) applyTransition(ctx context.Context, conv *domain.Conversation, lead *domain.Lead, tr domain.Transition, log *logger.Logger) error {
	switch tr.Action {
	case domain.ActionDraftVisit:
		return e.draftVisit(ctx, conv, lead, tr.Next, log)

	case domain.ActionAskProperty:
		if err := e.store.UpdatePendingVisit(ctx, conv.ID, tr.Next); err != nil {
			return err
		}
		e.reply(ctx, conv, replyAskProperty, log)
		return nil

	case domain.ActionAskDateTime:
		if err := e.store.UpdatePendingVisit(ctx, conv.ID, tr.Next); err != nil {
			return err
		}
		e.reply(ctx, conv, replyAskDateTime, log)
		return nil

	case domain.ActionAskCandidateChoice:
		if err := e.store.UpdatePendingVisit(ctx, conv.ID, tr.Next); err != nil {
			return err
		}
		e.reply(ctx, conv, replyCandidateChoice(tr.Next.Candidates), log)
		return nil

	case domain.ActionRejectStaleDateTime:
		if err := e.store.UpdatePendingVisit(ctx, conv.ID, tr.Next); err != nil {
			return err
		}
		e.reply(ctx, conv, replyStaleDateTime, log)
		return nil
	}

	return fmt.Errorf("unhandled transition action %d", tr.Action)
}

// draftVisit makes sure the lead has a broker, writes the visit row and
// moves the conversation to awaiting_confirmation.
func (e *Engine) draftVisit(ctx context.Context, conv *domain.Conversation, lead *domain.Lead, next domain.PendingVisit, log *logger.Logger) error {
	if next.PropertyID == nil || next.ScheduledAt == nil {
		return fmt.Errorf("draft requested with incomplete slots")
	}

	property, err := e.store.GetAvailableByID(ctx, *next.PropertyID)
	if err != nil {
		return err
	}
	if property == nil {
		// Sold or delisted between extraction and draft.
		cleared := next
		cleared.PropertyID = nil
		cleared.Step = domain.StepAwaitingProperty
		if err := e.store.UpdatePendingVisit(ctx, conv.ID, cleared); err != nil {
			return err
		}
		e.reply(ctx, conv, replyAskProperty, log)
		return nil
	}

	brokerID := uuid.Nil
	if lead.BrokerID != nil {
		brokerID = *lead.BrokerID
	} else {
		picked, err := e.store.PickBroker(ctx)
		if err != nil {
			return err
		}
		brokerID, err = e.store.AssignBroker(ctx, lead.ID, picked)
		if err != nil {
			return err
		}
		lead.BrokerID = &brokerID
	}

	var visitID uuid.UUID
	if next.VisitID != nil {
		// A declined draft keeps its visit row; move it instead of
		// creating a second one.
		if err := e.store.RescheduleVisit(ctx, *next.VisitID, *next.ScheduledAt); err != nil {
			return err
		}
		visitID = *next.VisitID
	} else {
		visit := &domain.Visit{
			LeadID:      lead.ID,
			PropertyID:  property.ID,
			BrokerID:    brokerID,
			ScheduledAt: *next.ScheduledAt,
			Status:      domain.VisitScheduled,
		}
		if err := e.store.CreateVisit(ctx, visit); err != nil {
			return err
		}
		visitID = visit.ID
	}

	confirmed := domain.AwaitingConfirmation(visitID, property.ID, *next.ScheduledAt)
	if err := e.store.UpdatePendingVisit(ctx, conv.ID, confirmed); err != nil {
		return err
	}

	e.reply(ctx, conv, replyDraft(property, *next.ScheduledAt), log)
	return nil
}

func (e *Engine) confirmVisit(ctx context.Context, conv *domain.Conversation, lead *domain.Lead, log *logger.Logger) error {
	tr, ok := conv.Pending.Confirm()
	if !ok {
		return nil
	}

	visitID := *conv.Pending.VisitID
	if err := e.store.SetVisitStatus(ctx, visitID, domain.VisitConfirmed); err != nil {
		return err
	}
	if err := e.store.UpdatePendingVisit(ctx, conv.ID, tr.Next); err != nil {
		return err
	}

	property, err := e.store.GetAvailableByID(ctx, *conv.Pending.PropertyID)
	if err != nil || property == nil {
		property = &domain.Property{ID: *conv.Pending.PropertyID, Title: "imóvel"}
	}
	e.reply(ctx, conv, replyConfirmed(property, *conv.Pending.ScheduledAt), log)

	brokerID := uuid.Nil
	if lead.BrokerID != nil {
		brokerID = *lead.BrokerID
	}
	e.bus.Publish(ctx, events.VisitConfirmed{
		BaseEvent:   events.NewBaseEvent(),
		VisitID:     visitID,
		LeadID:      lead.ID,
		PropertyID:  *conv.Pending.PropertyID,
		BrokerID:    brokerID,
		ScheduledAt: *conv.Pending.ScheduledAt,
	})
	return nil
}

func (e *Engine) declineVisit(ctx context.Context, conv *domain.Conversation, log *logger.Logger) error {
	tr, ok := conv.Pending.Decline()
	if !ok {
		return nil
	}
	if err := e.store.UpdatePendingVisit(ctx, conv.ID, tr.Next); err != nil {
		return err
	}
	e.reply(ctx, conv, replyDeclined, log)
	return nil
}

// fallbackTurn hands the message to the AI agent. Rate limiting is
// returned as-is so the task queue retries the turn; payment failures
// pause automation and hand the thread to staff.
func (e *Engine) fallbackTurn(ctx context.Context, conv *domain.Conversation, lead *domain.Lead, log *logger.Logger) error {
	properties, err := e.store.ListAvailable(ctx, groundingLimit)
	if err != nil {
		return err
	}
	history, err := e.store.ListRecentMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		return err
	}

	result, err := e.responder.Reply(ctx, properties, history)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrRateLimited):
			log.RateLimitExceeded("", "completion")
			return err
		case errors.Is(err, agent.ErrPaymentRequired):
			log.ExternalCallFailed("completion", err)
			if serr := e.store.SetAutomation(ctx, conv.ID, false); serr != nil {
				return serr
			}
			e.publishConversation(ctx, conv.ID, false)
			e.reply(ctx, conv, replyFallback, log)
			return nil
		default:
			log.ExternalCallFailed("completion", err)
			e.reply(ctx, conv, replyFallback, log)
			return nil
		}
	}

	if result.ToolCall != nil {
		return e.applyToolCall(ctx, conv, lead, result, log)
	}

	e.reply(ctx, conv, result.Text, log)
	return nil
}

// applyToolCall runs the model's scheduling request through the same
// resolution and state machine path as plain text. The tool never applies
// anything directly.
func (e *Engine) applyToolCall(ctx context.Context, conv *domain.Conversation, lead *domain.Lead, result *agent.Result, log *logger.Logger) error {
	call := result.ToolCall
	now := e.now()
	state := conv.Pending
	var out extraction

	if at, ok := parseToolDateTime(call, now); ok {
		tr := state.WithDateTime(at, now)
		out = extraction{transition: tr, progressed: true}
		if tr.Action == domain.ActionRejectStaleDateTime {
			return e.applyTransition(ctx, conv, lead, tr, log)
		}
		state = tr.Next
	}

	// The address argument is a property reference by construction, so it
	// skips cue anchoring and goes straight to the fuzzy search.
	ref := scheduling.ClassifyPropertyRef(firstNonEmpty(call.PropertyID, call.PropertyCode))
	if ref.Kind == scheduling.RefNone && call.PropertyAddress != "" {
		ref = scheduling.FragmentRef(call.PropertyAddress)
	}
	if ref.Kind != scheduling.RefNone {
		tr, resolved, err := e.resolveRef(ctx, state, ref)
		if err != nil {
			return err
		}
		if resolved {
			out = extraction{transition: tr, progressed: true}
		}
	}

	if out.progressed {
		return e.applyTransition(ctx, conv, lead, out.transition, log)
	}

	// Nothing in the call was resolvable. Fall back to the model's own
	// text, or nudge for the missing slot.
	if result.Text != "" {
		e.reply(ctx, conv, result.Text, log)
		return nil
	}
	if state.PropertyID == nil {
		e.reply(ctx, conv, replyAskProperty, log)
	} else {
		e.reply(ctx, conv, replyAskDateTime, log)
	}
	return nil
}

// parseToolDateTime prefers the ISO field and falls back to parsing the
// verbatim text the lead wrote.
func parseToolDateTime(call *agent.ScheduleVisitRequest, now time.Time) (time.Time, bool) {
	if call.ScheduledAtISO != "" {
		if at, err := time.Parse(time.RFC3339, call.ScheduledAtISO); err == nil {
			return at.In(scheduling.Location), true
		}
	}
	if call.ScheduledAtText != "" {
		return scheduling.ParseDateTime(call.ScheduledAtText, now)
	}
	return time.Time{}, false
}

// reply sends and records an outbound message. Delivery failures are
// logged and swallowed: the turn already persisted its state and a retry
// of the whole turn would be deduped anyway.
func (e *Engine) reply(ctx context.Context, conv *domain.Conversation, text string, log *logger.Logger) {
	if text == "" {
		return
	}
	providerID, err := e.sender.SendText(ctx, conv.Phone, text)
	status := "sent"
	if err != nil {
		log.ExternalCallFailed("whatsapp", err)
		status = "error"
	}

	msg := &domain.Message{
		ConversationID:    conv.ID,
		ProviderMessageID: providerID,
		Direction:         domain.DirectionOutbound,
		Content:           text,
		Status:            status,
	}
	if err := e.store.InsertOutbound(ctx, msg); err != nil {
		log.DatabaseError("insert outbound message", err)
		return
	}
	if err := e.store.TouchLastMessage(ctx, conv.ID); err != nil {
		log.DatabaseError("touch conversation", err)
	}
	e.publishMessage(ctx, msg)
}

func (e *Engine) publishMessage(ctx context.Context, msg *domain.Message) {
	e.bus.Publish(ctx, events.MessageCreated{
		BaseEvent:      events.NewBaseEvent(),
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Direction:      msg.Direction,
		Content:        msg.Content,
		MediaType:      msg.MediaType,
		CreatedAt:      msg.CreatedAt,
	})
}

func (e *Engine) publishConversation(ctx context.Context, conversationID uuid.UUID, automationEnabled bool) {
	e.bus.Publish(ctx, events.ConversationUpdated{
		BaseEvent:         events.NewBaseEvent(),
		ConversationID:    conversationID,
		AutomationEnabled: automationEnabled,
		LastMessageAt:     e.now(),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
