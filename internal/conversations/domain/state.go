package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Step identifies what the scheduling flow is waiting for.
type Step string

const (
	StepNone                    Step = "none"
	StepAwaitingProperty        Step = "awaiting_property"
	StepAwaitingDateTime        Step = "awaiting_datetime"
	StepAwaitingCandidateChoice Step = "awaiting_candidate_choice"
	StepAwaitingConfirmation    Step = "awaiting_confirmation"
)

// Action tells the engine what reply the transition calls for.
type Action int

const (
	ActionNone Action = iota
	ActionAskProperty
	ActionAskDateTime
	ActionAskCandidateChoice
	ActionDraftVisit
	ActionConfirmVisit
	ActionRescheduleVisit
	ActionRejectStaleDateTime
)

// PastGrace is how far in the past a proposed datetime may lie before it is
// rejected. Covers clock skew and typing delay.
const PastGrace = 5 * time.Minute

// PendingVisit is the per-conversation scheduling slot state.
// The zero value is not valid; use None().
type PendingVisit struct {
	Step        Step
	PropertyID  *uuid.UUID
	ScheduledAt *time.Time
	VisitID     *uuid.UUID
	Candidates  []PropertyCandidate
}

// None is the idle slot state.
func None() PendingVisit {
	return PendingVisit{Step: StepNone}
}

// AwaitingConfirmation builds the only state allowed to confirm a visit.
// All three identifiers are required, which keeps the confirm path unable
// to reference a half-drafted visit.
func AwaitingConfirmation(visitID, propertyID uuid.UUID, at time.Time) PendingVisit {
	return PendingVisit{
		Step:        StepAwaitingConfirmation,
		PropertyID:  &propertyID,
		ScheduledAt: &at,
		VisitID:     &visitID,
	}
}

// Validate checks invariants on state loaded from storage.
func (p PendingVisit) Validate() error {
	switch p.Step {
	case StepNone, StepAwaitingProperty, StepAwaitingDateTime:
		return nil
	case StepAwaitingCandidateChoice:
		if len(p.Candidates) == 0 {
			return fmt.Errorf("awaiting_candidate_choice with no candidates")
		}
		return nil
	case StepAwaitingConfirmation:
		if p.VisitID == nil || p.PropertyID == nil || p.ScheduledAt == nil {
			return fmt.Errorf("awaiting_confirmation missing visit or slots")
		}
		return nil
	default:
		return fmt.Errorf("unknown step %q", p.Step)
	}
}

// Transition is the result of applying one piece of extracted information.
type Transition struct {
	Next   PendingVisit
	Action Action
}

// WithDateTime applies a newly extracted datetime. Datetimes older than
// now minus PastGrace are rejected and the slot cleared.
func (p PendingVisit) WithDateTime(at time.Time, now time.Time) Transition {
	if at.Before(now.Add(-PastGrace)) {
		next := p
		next.ScheduledAt = nil
		next.Step = StepAwaitingDateTime
		return Transition{Next: next, Action: ActionRejectStaleDateTime}
	}

	next := p
	next.ScheduledAt = &at
	if next.PropertyID == nil {
		next.Step = StepAwaitingProperty
		return Transition{Next: next, Action: ActionAskProperty}
	}
	return Transition{Next: next, Action: ActionDraftVisit}
}

// WithProperty applies a resolved property. Any open candidate list is
// dropped since the ambiguity is gone.
func (p PendingVisit) WithProperty(propertyID uuid.UUID) Transition {
	next := p
	next.PropertyID = &propertyID
	next.Candidates = nil
	if next.ScheduledAt == nil {
		next.Step = StepAwaitingDateTime
		return Transition{Next: next, Action: ActionAskDateTime}
	}
	return Transition{Next: next, Action: ActionDraftVisit}
}

// WithCandidates records an ambiguous property reference. The caller must
// pass at least one candidate.
func (p PendingVisit) WithCandidates(candidates []PropertyCandidate) Transition {
	next := p
	next.Candidates = candidates
	next.Step = StepAwaitingCandidateChoice
	return Transition{Next: next, Action: ActionAskCandidateChoice}
}

// ChooseCandidate resolves a candidate-choice reply, either a list index
// ("1".."3") or a property code. Returns false when the reply matches
// nothing, leaving the state untouched.
func (p PendingVisit) ChooseCandidate(text string) (Transition, bool) {
	if p.Step != StepAwaitingCandidateChoice || len(p.Candidates) == 0 {
		return Transition{}, false
	}
	trimmed := strings.TrimSpace(text)
	if n, err := strconv.Atoi(trimmed); err == nil {
		if n >= 1 && n <= len(p.Candidates) {
			return p.WithProperty(p.Candidates[n-1].ID), true
		}
		return Transition{}, false
	}
	for _, candidate := range p.Candidates {
		if candidate.Code != "" && strings.EqualFold(candidate.Code, trimmed) {
			return p.WithProperty(candidate.ID), true
		}
	}
	return Transition{}, false
}

// Confirm applies an affirmative reply. Outside awaiting_confirmation it is
// a no-op, which makes a replayed "sim" harmless.
func (p PendingVisit) Confirm() (Transition, bool) {
	if p.Step != StepAwaitingConfirmation || p.VisitID == nil {
		return Transition{}, false
	}
	return Transition{Next: None(), Action: ActionConfirmVisit}, true
}

// Decline applies a negative reply to a drafted visit. The property and the
// visit row are kept; only the datetime slot is cleared so the lead can
// propose another time.
func (p PendingVisit) Decline() (Transition, bool) {
	if p.Step != StepAwaitingConfirmation || p.VisitID == nil {
		return Transition{}, false
	}
	next := p
	next.ScheduledAt = nil
	next.Step = StepAwaitingDateTime
	return Transition{Next: next, Action: ActionRescheduleVisit}, true
}

// ReadyForDraft reports whether both slots are filled and a visit can be
// drafted for confirmation.
func (p PendingVisit) ReadyForDraft() bool {
	return p.PropertyID != nil && p.ScheduledAt != nil &&
		p.Step != StepAwaitingConfirmation
}
