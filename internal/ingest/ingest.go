// Package ingest turns raw conversation text into semantic events. It is a
// structural fallback, not language understanding: keyword tables and shape
// heuristics produce atoms, and simple positional rules produce
// relationships. Richer extraction is expected to come from an upstream
// model; the engine only requires that events arrive in this shape.
package ingest

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/memory"
)

var entityWords = []string{
	"http", "api", "url", "server", "client", "request", "response", "python",
	"code", "library", "function", "variable", "error", "endpoint", "method", "status",
}

var actionWords = []string{
	"call", "get", "post", "request", "check", "verify", "test", "debug",
	"fix", "solve", "create", "update", "delete",
}

var outcomeWords = []string{
	"error", "success", "failure", "404", "500", "200", "timeout",
	"exception", "crash", "bug", "issue", "problem",
}

// Conversation converts one utterance into a semantic event. Actions link
// causally to outcomes at strength 0.7 and consecutive atoms link
// temporally at 0.5.
func Conversation(text string) *memory.SemanticEvent {
	var atoms []memory.SemanticAtom
	var relationships []memory.Relationship

	words := strings.Fields(text)
	var actionIdx, outcomeIdx []int

	for i, word := range words {
		clean := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(clean) < 2 {
			continue
		}
		lower := strings.ToLower(clean)

		if i == 0 && unicode.IsUpper([]rune(word)[0]) && allLetters(clean) {
			atoms = append(atoms, memory.SemanticAtom{
				AtomType: memory.AtomPerson,
				Content:  map[string]string{"key": lower},
			})
		}

		if matchesAny(lower, entityWords) {
			content := map[string]string{"name": lower}
			if i+1 < len(words) {
				content["property"] = words[i+1]
			}
			atoms = append(atoms, memory.SemanticAtom{AtomType: memory.AtomEntity, Content: content})
		}
		if matchesAny(lower, actionWords) {
			atoms = append(atoms, memory.SemanticAtom{
				AtomType: memory.AtomAction,
				Content:  map[string]string{"action": lower},
			})
			actionIdx = append(actionIdx, len(atoms)-1)
		}
		if matchesAny(lower, outcomeWords) {
			atoms = append(atoms, memory.SemanticAtom{
				AtomType: memory.AtomOutcome,
				Content:  map[string]string{"outcome": lower},
			})
			outcomeIdx = append(outcomeIdx, len(atoms)-1)
		}
		if allNumeric(clean) {
			atoms = append(atoms, memory.SemanticAtom{
				AtomType: memory.AtomQuantity,
				Content:  map[string]string{"value": clean},
			})
		}
		if strings.ContainsRune(clean, ':') || (strings.ContainsRune(word, ':') && containsDigit(word)) {
			atoms = append(atoms, memory.SemanticAtom{
				AtomType: memory.AtomTime,
				Content:  map[string]string{"time_expression": clean},
			})
		}
	}

	for _, a := range actionIdx {
		for _, o := range outcomeIdx {
			relationships = append(relationships, memory.Relationship{
				FromAtom: a, ToAtom: o, RelationType: memory.RelCausal, Strength: 0.7,
			})
		}
	}
	for i := 0; i+1 < len(atoms); i++ {
		relationships = append(relationships, memory.Relationship{
			FromAtom: i, ToAtom: i + 1, RelationType: memory.RelTemporal, Strength: 0.5,
		})
	}

	return &memory.SemanticEvent{
		ID:              uuid.New(),
		Timestamp:       time.Now(),
		EventType:       memory.EventConversation,
		Atoms:           atoms,
		Relationships:   relationships,
		Salience:        1.0,
		EmotionalWeight: emotionalWeight(text),
	}
}

// emotionalWeight scores the utterance's tone: trouble words read as mild
// negative arousal, frustration stronger, resolution as relief.
func emotionalWeight(text string) float64 {
	lower := strings.ToLower(text)
	weight := 0.0
	if strings.Contains(lower, "error") || strings.Contains(lower, "problem") || strings.Contains(lower, "issue") {
		weight = 0.4
	}
	if strings.Contains(lower, "frustrated") || strings.Contains(lower, "stuck") {
		weight = 0.6
	}
	if strings.Contains(lower, "success") || strings.Contains(lower, "solved") {
		weight = -0.3
	}
	return weight
}

func matchesAny(word string, table []string) bool {
	for _, entry := range table {
		if strings.Contains(word, entry) || strings.Contains(entry, word) {
			return true
		}
	}
	return false
}

func allLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}

func allNumeric(s string) bool {
	hasDigit := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			hasDigit = true
			continue
		}
		if r != '.' && r != ',' {
			return false
		}
	}
	return hasDigit
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
