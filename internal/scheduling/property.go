package scheduling

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// RefKind classifies how a lead referred to a property.
type RefKind int

const (
	RefNone RefKind = iota
	RefID
	RefCode
	RefFragment
)

// PropertyRef is the classified reference extracted from free text.
type PropertyRef struct {
	Kind     RefKind
	ID       uuid.UUID
	Code     string
	Fragment string
}

// Listing codes look like "AP101" or "CA2045": letters then digits.
var reCode = regexp.MustCompile(`(?i)\b([a-z]{2,4}\d{2,6})\b`)

// Location cues anchor an address-like fragment. The fragment starts at
// the cue so the fuzzy query carries "rua das flores", not the whole
// sentence around it.
var locationCues = []string{
	"rua ", "avenida ", "av. ", "bairro ", "centro", "jardim ",
	"condominio ", "condomínio ", "praia ", "vila ",
}

const maxFragmentLen = 120

// ClassifyPropertyRef extracts a property reference from the message text.
// Priority: UUID, then listing code, then an address-like fragment anchored
// at a location cue.
func ClassifyPropertyRef(text string) PropertyRef {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return PropertyRef{Kind: RefNone}
	}

	for _, token := range strings.Fields(trimmed) {
		if id, err := uuid.Parse(strings.Trim(token, ".,;:!?")); err == nil {
			return PropertyRef{Kind: RefID, ID: id}
		}
	}

	if m := reCode.FindStringSubmatch(trimmed); m != nil {
		return PropertyRef{Kind: RefCode, Code: strings.ToUpper(m[1])}
	}

	// Lowercase only; ILIKE handles case and the stored accents must be
	// preserved for the pattern to match them.
	lower := strings.ToLower(trimmed)
	for _, cue := range locationCues {
		idx := strings.Index(lower, cue)
		if idx < 0 {
			continue
		}
		fragment := lower[idx:]
		if introducerCues[cue] {
			fragment = fragment[len(cue):]
		}
		// The fragment ends at the first punctuation after the cue.
		if cut := strings.IndexAny(fragment, ",.?!;"); cut >= 0 {
			fragment = fragment[:cut]
		}
		fragment = strings.TrimSpace(fragment)
		if runes := []rune(fragment); len(runes) > maxFragmentLen {
			fragment = string(runes[:maxFragmentLen])
		}
		if fragment == "" {
			continue
		}
		return PropertyRef{Kind: RefFragment, Fragment: fragment}
	}

	return PropertyRef{Kind: RefNone}
}

// FragmentRef treats the whole text as a fuzzy property reference without
// requiring a location cue. Bare place or building names ("Moema",
// "Edifício Aurora") carry no cue but still name a listing; callers use
// this when the text is already known to refer to a property, such as the
// agent's address argument or a short reply to a property prompt.
func FragmentRef(text string) PropertyRef {
	fragment := strings.ToLower(strings.TrimSpace(text))
	fragment = strings.TrimRight(fragment, ".,;:!? ")
	if runes := []rune(fragment); len(runes) > maxFragmentLen {
		fragment = string(runes[:maxFragmentLen])
	}
	if fragment == "" {
		return PropertyRef{Kind: RefNone}
	}
	return PropertyRef{Kind: RefFragment, Fragment: fragment}
}

// introducerCues name the thing that follows them rather than being part
// of the address value itself.
var introducerCues = map[string]bool{
	"bairro ":     true,
	"condominio ": true,
	"condomínio ": true,
}

// EscapeLike escapes ILIKE wildcards in a user-supplied fragment so it is
// matched literally.
func EscapeLike(fragment string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(fragment)
}
