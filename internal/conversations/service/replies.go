package service

import (
	"fmt"
	"strings"
	"time"

	"imovelhub_backend/internal/conversations/domain"
)

// Canned pt-BR replies for the deterministic scheduling flow. The AI agent
// never produces these; they come straight from the state machine so the
// confirmation dialogue stays predictable.

const (
	replyAskProperty = "Perfeito! Qual imóvel você gostaria de visitar? Pode me mandar o código do anúncio ou o endereço."

	replyAskDateTime = "Ótima escolha! Qual dia e horário ficam bons para a visita? Por exemplo: \"dia 24 às 17h\"."

	replyStaleDateTime = "Esse horário já passou. Consegue me passar um dia e horário a partir de agora?"

	replyDeclined = "Sem problemas! Qual outro dia e horário ficam melhores para você?"

	replyFallback = "Recebi sua mensagem! Um de nossos consultores vai te responder em breve."

	replyCandidateFooter = "Responda com o número da opção ou o código do imóvel."
)

func replyCandidateChoice(candidates []domain.PropertyCandidate) string {
	var b strings.Builder
	b.WriteString("Encontrei mais de um imóvel parecido com esse. Qual deles você quer visitar?\n")
	for i, candidate := range candidates {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, candidate.Title))
		if candidate.Address != "" {
			b.WriteString(" - " + candidate.Address)
		}
		if candidate.Code != "" {
			b.WriteString(" (" + candidate.Code + ")")
		}
		b.WriteString("\n")
	}
	b.WriteString(replyCandidateFooter)
	return b.String()
}

func replyDraft(property *domain.Property, at time.Time) string {
	return fmt.Sprintf(
		"Visita ao %s (%s) no dia %s. Posso confirmar? (sim/não)",
		property.Title, property.Code, formatDateTime(at),
	)
}

func replyConfirmed(property *domain.Property, at time.Time) string {
	return fmt.Sprintf(
		"Visita confirmada! Te esperamos no %s no dia %s. Qualquer imprevisto é só avisar por aqui.",
		property.Title, formatDateTime(at),
	)
}

func formatDateTime(at time.Time) string {
	return at.Format("02/01/2006 às 15h04")
}
