// Package provider wraps LLM backends behind a small interface: semantic
// extraction from raw text and response formatting from memory data. The
// engine core never imports this package; extraction failures always degrade
// to the structural ingestion path.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/memory"
)

// Provider is one LLM backend.
type Provider interface {
	ID() string
	Name() string
	ExtractSemantics(ctx context.Context, text string) (*memory.SemanticEvent, error)
	FormatResponse(ctx context.Context, query string, data *MemoryData) (string, error)
	HealthCheck(ctx context.Context) error
}

// Config holds configuration for a provider instance.
type Config struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Name     string        `json:"name"`
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// FragmentData is the provider-facing view of one activated atom fragment.
type FragmentData struct {
	AtomType string            `json:"atom_type"`
	Content  map[string]string `json:"content"`
}

// MemoryData carries what the executor activated, flattened for prompt
// assembly.
type MemoryData struct {
	Fragments  []FragmentData `json:"fragments"`
	Query      string         `json:"query"`
	Confidence float64        `json:"confidence"`
}

// CollectMemoryData pulls the atom fragments named by an execution trace out
// of the graph.
func CollectMemoryData(trace []uuid.UUID, g *memory.Graph, query string, confidence float64) *MemoryData {
	data := &MemoryData{Query: query, Confidence: confidence}
	for _, id := range trace {
		f, ok := g.Fragments[id]
		if !ok {
			continue
		}
		if atom, ok := f.Content.(memory.SemanticAtomContent); ok {
			data.Fragments = append(data.Fragments, FragmentData{
				AtomType: string(atom.AtomType),
				Content:  atom.Content,
			})
		}
	}
	return data
}

// CompactString renders the memory data in the terse brace format prompts
// embed. Bare short "key" entries carry no information and are dropped.
func (d *MemoryData) CompactString() string {
	if len(d.Fragments) == 0 {
		return "{}"
	}
	var frags []string
	for _, f := range d.Fragments {
		var pairs []string
		keys := make([]string, 0, len(f.Content))
		for k := range f.Content {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := f.Content[k]
			if v == "" || v == "unknown" {
				continue
			}
			if k == "key" && (len(v) <= 2 || v == "key") {
				continue
			}
			pairs = append(pairs, k+":"+v)
		}
		frags = append(frags, fmt.Sprintf("{type:%s,data:%s}", f.AtomType, strings.Join(pairs, ",")))
	}
	return fmt.Sprintf("{fragments:[%s],query:%s}", strings.Join(frags, "|"), d.Query)
}

// extractedEvent is the wire shape the extraction prompt requests.
type extractedEvent struct {
	EventType string `json:"event_type"`
	Atoms     []struct {
		AtomType string            `json:"atom_type"`
		Content  map[string]string `json:"content"`
	} `json:"atoms"`
	Relationships []struct {
		FromAtom     int     `json:"from_atom"`
		ToAtom       int     `json:"to_atom"`
		RelationType string  `json:"relation_type"`
		Strength     float64 `json:"strength"`
	} `json:"relationships"`
	Salience        float64 `json:"salience"`
	EmotionalWeight float64 `json:"emotional_weight"`
}

// parseEventJSON turns a model's JSON reply into a semantic event. Markdown
// fences are stripped first; unknown atom or relation types collapse onto
// entity and semantic.
func parseEventJSON(raw string) (*memory.SemanticEvent, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var wire extractedEvent
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, fmt.Errorf("parse extraction: %w", err)
	}

	event := &memory.SemanticEvent{
		ID:              uuid.New(),
		Timestamp:       time.Now(),
		EventType:       normalizeEventType(wire.EventType),
		Salience:        wire.Salience,
		EmotionalWeight: wire.EmotionalWeight,
	}
	if event.Salience == 0 {
		event.Salience = 1.0
	}
	for _, a := range wire.Atoms {
		event.Atoms = append(event.Atoms, memory.SemanticAtom{
			AtomType: normalizeAtomType(a.AtomType),
			Content:  a.Content,
		})
	}
	for _, r := range wire.Relationships {
		if r.FromAtom < 0 || r.FromAtom >= len(event.Atoms) ||
			r.ToAtom < 0 || r.ToAtom >= len(event.Atoms) {
			continue
		}
		event.Relationships = append(event.Relationships, memory.Relationship{
			FromAtom:     r.FromAtom,
			ToAtom:       r.ToAtom,
			RelationType: normalizeRelationType(r.RelationType),
			Strength:     r.Strength,
		})
	}
	return event, nil
}

func normalizeEventType(s string) memory.EventType {
	switch memory.EventType(strings.ToLower(s)) {
	case memory.EventObservation:
		return memory.EventObservation
	case memory.EventAction:
		return memory.EventAction
	case memory.EventOutcome:
		return memory.EventOutcome
	default:
		return memory.EventConversation
	}
}

var atomTypes = map[memory.AtomType]bool{
	memory.AtomEntity: true, memory.AtomAction: true, memory.AtomCondition: true,
	memory.AtomOutcome: true, memory.AtomProperty: true, memory.AtomPerson: true,
	memory.AtomLocation: true, memory.AtomTime: true, memory.AtomQuantity: true,
	memory.AtomConcept: true, memory.AtomObject: true, memory.AtomEvent: true,
	memory.AtomAttribute: true, memory.AtomState: true, memory.AtomResource: true,
}

func normalizeAtomType(s string) memory.AtomType {
	t := memory.AtomType(strings.ToLower(s))
	if atomTypes[t] {
		return t
	}
	return memory.AtomEntity
}

var relationTypes = map[memory.RelationType]bool{
	memory.RelCausal: true, memory.RelTemporal: true, memory.RelSemantic: true,
	memory.RelSpatial: true, memory.RelOwnership: true, memory.RelPartOf: true,
	memory.RelSimilarTo: true, memory.RelCauses: true, memory.RelPrevents: true,
	memory.RelEnables: true, memory.RelRequires: true, memory.RelLocatedAt: true,
	memory.RelOccursAt: true, memory.RelParticipatesIn: true, memory.RelKnows: true,
	memory.RelLikes: true, memory.RelDislikes: true, memory.RelRelatedTo: true,
	memory.RelHierarchical: true, memory.RelBefore: true, memory.RelAfter: true,
	memory.RelDuring: true, memory.RelSimultaneous: true,
}

func normalizeRelationType(s string) memory.RelationType {
	t := memory.RelationType(strings.ToLower(s))
	if relationTypes[t] {
		return t
	}
	return memory.RelSemantic
}

const extractionSystemPrompt = "You are a semantic parser that extracts structured information " +
	"from text using grammatical analysis. Verbs are action atoms, nouns are object or entity " +
	"atoms, pronouns are person atoms. Return only valid JSON matching the requested structure, " +
	"no explanations or markdown."

func extractionPrompt(text string) string {
	return fmt.Sprintf(`Extract semantic atoms and relationships from this text.

Text: %q

Return a JSON object with this exact structure:
{
  "event_type": "conversation" | "observation" | "action" | "outcome",
  "atoms": [
    {"atom_type": "entity"|"action"|"condition"|"outcome"|"property"|"person"|"location"|"time"|"quantity"|"concept"|"object"|"event"|"attribute"|"state"|"resource",
     "content": {"key": "value"}}
  ],
  "relationships": [
    {"from_atom": 0, "to_atom": 1,
     "relation_type": "causal"|"temporal"|"semantic"|"spatial"|"ownership"|"part_of"|"causes"|"likes"|"knows"|"related_to"|"before"|"after",
     "strength": 0.8}
  ],
  "salience": 1.0,
  "emotional_weight": 0.0
}

Return ONLY valid JSON.`, text)
}

const formatSystemPrompt = "You are a helpful assistant answering from the structured memory " +
	"provided. Answer naturally and briefly. If the memory holds nothing relevant, say you do " +
	"not have that information."

func formatPrompt(query string, data *MemoryData) string {
	return fmt.Sprintf("The user asked: %q\n\nRelevant memory (confidence %.2f):\n%s\n\nAnswer the user from this memory.",
		query, data.Confidence, data.CompactString())
}
