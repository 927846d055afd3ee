package memory

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies the origin of a semantic event.
type EventType string

const (
	EventConversation EventType = "conversation"
	EventObservation  EventType = "observation"
	EventAction       EventType = "action"
	EventOutcome      EventType = "outcome"
)

// AtomType classifies a semantic atom produced by the ingestion layer.
type AtomType string

const (
	AtomEntity    AtomType = "entity"
	AtomAction    AtomType = "action"
	AtomCondition AtomType = "condition"
	AtomOutcome   AtomType = "outcome"
	AtomProperty  AtomType = "property"
	AtomPerson    AtomType = "person"
	AtomLocation  AtomType = "location"
	AtomTime      AtomType = "time"
	AtomQuantity  AtomType = "quantity"
	AtomConcept   AtomType = "concept"
	AtomObject    AtomType = "object"
	AtomEvent     AtomType = "event"
	AtomAttribute AtomType = "attribute"
	AtomState     AtomType = "state"
	AtomResource  AtomType = "resource"
)

// RelationType classifies a relationship between two atoms.
type RelationType string

const (
	RelCausal         RelationType = "causal"
	RelTemporal       RelationType = "temporal"
	RelSemantic       RelationType = "semantic"
	RelSpatial        RelationType = "spatial"
	RelOwnership      RelationType = "ownership"
	RelPartOf         RelationType = "part_of"
	RelSimilarTo      RelationType = "similar_to"
	RelCauses         RelationType = "causes"
	RelPrevents       RelationType = "prevents"
	RelEnables        RelationType = "enables"
	RelRequires       RelationType = "requires"
	RelLocatedAt      RelationType = "located_at"
	RelOccursAt       RelationType = "occurs_at"
	RelParticipatesIn RelationType = "participates_in"
	RelKnows          RelationType = "knows"
	RelLikes          RelationType = "likes"
	RelDislikes       RelationType = "dislikes"
	RelRelatedTo      RelationType = "related_to"
	RelHierarchical   RelationType = "hierarchical"
	RelBefore         RelationType = "before"
	RelAfter          RelationType = "after"
	RelDuring         RelationType = "during"
	RelSimultaneous   RelationType = "simultaneous"
)

// SemanticAtom is one typed unit extracted from raw input. The core never
// parses text; atoms arrive pre-extracted.
type SemanticAtom struct {
	AtomType AtomType          `json:"atom_type"`
	Content  map[string]string `json:"content"`
}

// Relationship links two atoms by index within the same event.
type Relationship struct {
	FromAtom     int          `json:"from_atom"`
	ToAtom       int          `json:"to_atom"`
	RelationType RelationType `json:"relation_type"`
	Strength     float64      `json:"strength"`
}

// SemanticEvent is the unit the ingestion layer hands to the engine.
type SemanticEvent struct {
	ID              uuid.UUID         `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	EventType       EventType         `json:"event_type"`
	Atoms           []SemanticAtom    `json:"atoms"`
	Relationships   []Relationship    `json:"relationships"`
	Salience        float64           `json:"salience"`
	EmotionalWeight float64           `json:"emotional_weight"`
	SourceContext   map[string]string `json:"source_context,omitempty"`
}
