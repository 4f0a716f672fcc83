package scheduling

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sentiment is the deterministic reading of a confirmation reply.
type Sentiment int

const (
	SentimentUnknown Sentiment = iota
	SentimentAffirmative
	SentimentNegative
)

// Vocabulary is fixed. Matching is anchored at the start of the normalized
// reply so "sim, pode ser" confirms but "eu acho que sim talvez" does not
// short-circuit the model.
var (
	affirmatives = []string{
		"sim", "s", "ok", "claro", "confirmo", "confirmado", "pode ser",
		"pode sim", "isso", "beleza", "perfeito", "fechado", "combinado",
		"bora", "vamos", "aceito",
	}
	negatives = []string{
		"nao", "n", "negativo", "nao posso", "nao da", "nao consigo",
		"remarcar", "outro dia", "outro horario", "melhor nao", "cancela",
	}
)

var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and collapses whitespace.
func Normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	stripped, _, err := transform.String(stripDiacritics, lowered)
	if err != nil {
		stripped = lowered
	}
	return strings.Join(strings.Fields(stripped), " ")
}

// ParseConfirmation reads an affirmative or negative reply. Anything
// outside the fixed vocabulary is Unknown; the caller decides what to do
// with it. This never calls a model.
func ParseConfirmation(text string) Sentiment {
	normalized := Normalize(text)
	if normalized == "" {
		return SentimentUnknown
	}

	// Negatives first: "nao pode ser" must not match the affirmative
	// "pode ser" by prefix.
	for _, word := range negatives {
		if matchesAnchored(normalized, word) {
			return SentimentNegative
		}
	}
	for _, word := range affirmatives {
		if matchesAnchored(normalized, word) {
			return SentimentAffirmative
		}
	}
	return SentimentUnknown
}

// matchesAnchored requires the vocabulary entry at the start of the reply,
// followed by a word boundary.
func matchesAnchored(normalized, word string) bool {
	if normalized == word {
		return true
	}
	if !strings.HasPrefix(normalized, word) {
		return false
	}
	rest := normalized[len(word):]
	return strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, ",") ||
		strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "!")
}
