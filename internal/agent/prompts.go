package agent

import (
	"fmt"
	"strings"

	"imovelhub_backend/internal/conversations/domain"
)

const personaPrompt = `Você é a Lia, consultora virtual da imobiliária. Você conversa com clientes pelo WhatsApp.

Regras:
- Responda sempre em português do Brasil, em tom simpático e direto.
- Seu objetivo é ajudar o cliente a agendar uma visita a um imóvel.
- Fale apenas sobre os imóveis listados abaixo. Nunca invente imóveis, preços ou endereços.
- Quando o cliente demonstrar interesse em visitar um imóvel e indicar dia e horário, use a ferramenta schedule_visit. Não confirme a visita por conta própria.
- Se o cliente pedir algo fora do seu alcance (financiamento, documentação, negociação de preço), diga que um consultor vai ajudá-lo.
- Mensagens curtas, no máximo três frases.`

// BuildSystemPrompt joins the fixed persona with the grounding block of
// available listings.
func BuildSystemPrompt(properties []domain.Property) string {
	if len(properties) == 0 {
		return personaPrompt + "\n\nNo momento não há imóveis disponíveis. Informe o cliente e ofereça avisar quando houver novidades."
	}

	var b strings.Builder
	b.WriteString(personaPrompt)
	b.WriteString("\n\nImóveis disponíveis:\n")
	for _, p := range properties {
		b.WriteString(formatProperty(p))
		b.WriteString("\n")
	}
	return b.String()
}

func formatProperty(p domain.Property) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] %s", p.Code, p.Title)
	address := joinNonEmpty(", ", p.Street, p.Neighborhood, p.City)
	if address != "" {
		fmt.Fprintf(&b, " | %s", address)
	}
	if p.Bedrooms > 0 {
		fmt.Fprintf(&b, " | %d quartos", p.Bedrooms)
	}
	if p.AreaM2 > 0 {
		fmt.Fprintf(&b, " | %.0f m²", p.AreaM2)
	}
	if p.Price > 0 {
		fmt.Fprintf(&b, " | R$ %.2f", p.Price)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, " | %s", p.Description)
	}
	return b.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}
