package agent

import (
	"strings"

	"github.com/nidhogg/engram/internal/memory"
)

// Intent is a coarse classification of one utterance, derived from the
// extracted event plus the raw text. The pattern string doubles as the goal
// of the compiled context.
type Intent struct {
	Pattern    string
	Confidence float64
}

var questionStarters = []string{
	"what", "who", "where", "when", "why", "how", "which", "whose",
	"whats", "what's", "whos", "who's", "wheres", "where's",
	"is", "are", "was", "were", "do", "does", "did", "can", "could",
	"will", "would", "should", "may", "might", "must", "have", "has", "had",
}

// classifyIntent decides whether an utterance is a greeting, a query or a
// statement, refined by which atom types appear. Preference statements such
// as "i like cheese" look interrogative to the starter check ("is" prefix of
// nothing here, but incomplete atoms often are) and get overridden first.
func classifyIntent(event *memory.SemanticEvent, text string) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	words := strings.Fields(lower)

	hasStarter := false
	for _, starter := range questionStarters {
		if lower == starter || strings.HasPrefix(lower, starter+" ") {
			hasStarter = true
			break
		}
	}

	hasIncomplete := false
	hasPerson := false
	hasLocation := false
	hasAction := false
	onlyPersons := len(event.Atoms) > 0
	genericKeysOnly := true
	for _, atom := range event.Atoms {
		switch atom.AtomType {
		case memory.AtomPerson:
			hasPerson = true
		case memory.AtomLocation:
			hasLocation = true
			onlyPersons = false
		case memory.AtomAction:
			hasAction = true
			onlyPersons = false
		default:
			onlyPersons = false
		}
		for _, v := range atom.Content {
			if v == "" || v == "unknown" {
				hasIncomplete = true
			}
		}
		if len(atom.Content) != 1 || atom.Content["key"] == "" || len(atom.Content["key"]) > 10 {
			genericKeysOnly = false
		}
	}

	isQuestion := hasStarter || hasIncomplete || strings.HasSuffix(lower, "?")

	if len(words) <= 3 && onlyPersons && genericKeysOnly && !hasStarter {
		return Intent{Pattern: "greeting", Confidence: event.Salience}
	}

	if isPreferenceStatement(event) {
		if hasPerson {
			return Intent{Pattern: "store_person_info", Confidence: event.Salience}
		}
		return Intent{Pattern: "store_general", Confidence: event.Salience}
	}

	if isQuestion {
		switch {
		case hasPerson:
			return Intent{Pattern: "query_person_info", Confidence: event.Salience}
		case hasLocation:
			return Intent{Pattern: "query_location_info", Confidence: event.Salience}
		default:
			return Intent{Pattern: "query_general", Confidence: event.Salience}
		}
	}

	switch {
	case hasAction && hasPerson:
		return Intent{Pattern: "store_person_info", Confidence: event.Salience}
	case hasAction && hasLocation:
		return Intent{Pattern: "store_location_info", Confidence: event.Salience}
	case hasAction:
		return Intent{Pattern: "store_general", Confidence: event.Salience}
	default:
		return Intent{Pattern: "store_fact", Confidence: event.Salience}
	}
}

// isPreferenceStatement detects "person likes/owns thing" shapes: an action
// or ownership relationship whose target atom carries a real value.
func isPreferenceStatement(event *memory.SemanticEvent) bool {
	for _, rel := range event.Relationships {
		if rel.FromAtom < 0 || rel.FromAtom >= len(event.Atoms) ||
			rel.ToAtom < 0 || rel.ToAtom >= len(event.Atoms) {
			continue
		}
		from := event.Atoms[rel.FromAtom]
		to := event.Atoms[rel.ToAtom]

		sourceOK := from.AtomType == memory.AtomAction ||
			from.AtomType == memory.AtomPerson && rel.RelationType == memory.RelOwnership ||
			rel.RelationType == memory.RelLikes
		if !sourceOK {
			continue
		}
		if to.AtomType != memory.AtomObject && to.AtomType != memory.AtomEntity && to.AtomType != memory.AtomConcept {
			continue
		}
		for k, v := range to.Content {
			if v == "" || v == "unknown" || v == "key" || len(v) <= 2 {
				continue
			}
			if len(to.Content) == 1 && k == "key" {
				continue
			}
			return true
		}
	}
	return false
}
