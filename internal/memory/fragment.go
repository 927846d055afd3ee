package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FragmentKind identifies the concrete content variant of a fragment.
type FragmentKind string

const (
	KindEntityRelation       FragmentKind = "entity_relation"
	KindCausalRule           FragmentKind = "causal_rule"
	KindGoalStrategy         FragmentKind = "goal_strategy"
	KindConstraint           FragmentKind = "constraint"
	KindPreference           FragmentKind = "preference"
	KindContextSignature     FragmentKind = "context_signature"
	KindPersonalFact         FragmentKind = "personal_fact"
	KindTemporalEvent        FragmentKind = "temporal_event"
	KindSpatialRelation      FragmentKind = "spatial_relation"
	KindQuantitativeFact     FragmentKind = "quantitative_fact"
	KindHierarchicalRelation FragmentKind = "hierarchical_relation"
	KindSocialRelation       FragmentKind = "social_relation"
	KindOwnershipRelation    FragmentKind = "ownership_relation"
	KindStateTransition      FragmentKind = "state_transition"
	KindCapability           FragmentKind = "capability"
	KindBelief               FragmentKind = "belief"
	KindSemanticAtom         FragmentKind = "semantic_atom"
)

// FragmentContent is the closed set of typed fragment payloads. Every
// consumer (indexing, interpretation, formatting) switches exhaustively over
// the concrete types so that adding a variant breaks loudly, not silently.
type FragmentContent interface {
	Kind() FragmentKind
}

// EntityRelation states that entity stands in relation to target.
type EntityRelation struct {
	Entity   string `json:"entity"`
	Relation string `json:"relation"`
	Target   string `json:"target"`
}

// CausalRule links a condition to an observed outcome.
type CausalRule struct {
	Condition  string  `json:"condition"`
	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence"`
}

// GoalStrategy records a strategy that worked for a goal.
type GoalStrategy struct {
	Goal        string  `json:"goal"`
	Strategy    string  `json:"strategy"`
	SuccessRate float64 `json:"success_rate"`
}

// Constraint is a restriction that applies in some context.
type Constraint struct {
	Constraint string  `json:"constraint"`
	Context    string  `json:"context"`
	Severity   float64 `json:"severity"`
}

// Preference is a weighted liking or disliking in a context.
type Preference struct {
	Preference string  `json:"preference"`
	Weight     float64 `json:"weight"`
	Context    string  `json:"context"`
}

// ContextSignature names a recurring context and the fragments it tends to
// activate.
type ContextSignature struct {
	Pattern            string      `json:"pattern"`
	TypicalActivations []uuid.UUID `json:"typical_activations"`
}

// PersonalFact is a keyed fact about a person.
type PersonalFact struct {
	Person     string  `json:"person"`
	FactType   string  `json:"fact_type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// TemporalEvent anchors an event to a time expression.
type TemporalEvent struct {
	Event          string  `json:"event"`
	TimeExpression string  `json:"time_expression"`
	Duration       string  `json:"duration,omitempty"`
	Frequency      string  `json:"frequency,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// SpatialRelation places an entity at a location.
type SpatialRelation struct {
	Entity       string  `json:"entity"`
	Location     string  `json:"location"`
	RelationType string  `json:"relation_type"`
	Distance     string  `json:"distance,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// QuantitativeFact attaches a number to an entity.
type QuantitativeFact struct {
	Entity     string  `json:"entity"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit,omitempty"`
	Comparison string  `json:"comparison,omitempty"`
	Reference  string  `json:"reference,omitempty"`
	Confidence float64 `json:"confidence"`
}

// HierarchicalRelation nests a child under a parent.
type HierarchicalRelation struct {
	Parent       string  `json:"parent"`
	Child        string  `json:"child"`
	RelationType string  `json:"relation_type"`
	Level        int     `json:"level,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// SocialRelation connects two people.
type SocialRelation struct {
	Person1      string  `json:"person1"`
	Person2      string  `json:"person2"`
	RelationType string  `json:"relation_type"`
	Strength     float64 `json:"strength"`
	Context      string  `json:"context,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// OwnershipRelation records that owner owns owned.
type OwnershipRelation struct {
	Owner        string  `json:"owner"`
	Owned        string  `json:"owned"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
}

// StateTransition records an entity moving between states.
type StateTransition struct {
	Entity     string  `json:"entity"`
	FromState  string  `json:"from_state"`
	ToState    string  `json:"to_state"`
	Condition  string  `json:"condition,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Capability records what an entity can do.
type Capability struct {
	Entity     string  `json:"entity"`
	Capability string  `json:"capability"`
	Level      float64 `json:"level,omitempty"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Belief records something an entity holds to be true.
type Belief struct {
	Entity          string  `json:"entity"`
	Belief          string  `json:"belief"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Evidence        string  `json:"evidence,omitempty"`
	Context         string  `json:"context,omitempty"`
}

// SemanticAtomContent is a raw atom kept verbatim when no richer variant
// applies.
type SemanticAtomContent struct {
	AtomType AtomType          `json:"atom_type"`
	Content  map[string]string `json:"content"`
}

func (EntityRelation) Kind() FragmentKind       { return KindEntityRelation }
func (CausalRule) Kind() FragmentKind           { return KindCausalRule }
func (GoalStrategy) Kind() FragmentKind         { return KindGoalStrategy }
func (Constraint) Kind() FragmentKind           { return KindConstraint }
func (Preference) Kind() FragmentKind           { return KindPreference }
func (ContextSignature) Kind() FragmentKind     { return KindContextSignature }
func (PersonalFact) Kind() FragmentKind         { return KindPersonalFact }
func (TemporalEvent) Kind() FragmentKind        { return KindTemporalEvent }
func (SpatialRelation) Kind() FragmentKind      { return KindSpatialRelation }
func (QuantitativeFact) Kind() FragmentKind     { return KindQuantitativeFact }
func (HierarchicalRelation) Kind() FragmentKind { return KindHierarchicalRelation }
func (SocialRelation) Kind() FragmentKind       { return KindSocialRelation }
func (OwnershipRelation) Kind() FragmentKind    { return KindOwnershipRelation }
func (StateTransition) Kind() FragmentKind      { return KindStateTransition }
func (Capability) Kind() FragmentKind           { return KindCapability }
func (Belief) Kind() FragmentKind               { return KindBelief }
func (SemanticAtomContent) Kind() FragmentKind  { return KindSemanticAtom }

// Fragment is the atomic unit of remembered knowledge. Confidence and
// salience stay clamped to [0,1]; ReinforcementCount never decreases.
type Fragment struct {
	ID                 uuid.UUID
	Content            FragmentContent
	Confidence         float64
	Salience           float64
	EmotionalTag       float64
	ReinforcementCount int
	LastActivated      time.Time
	ActivationHistory  []time.Time
	CreatedAt          time.Time
	DecayRate          float64
}

// NewFragment builds a fragment with a fresh id and defaults matching the
// ingestion path.
func NewFragment(content FragmentContent, confidence, salience, emotionalTag float64) *Fragment {
	return &Fragment{
		ID:           uuid.New(),
		Content:      content,
		Confidence:   clamp01(confidence),
		Salience:     clamp01(salience),
		EmotionalTag: emotionalTag,
		CreatedAt:    time.Now(),
		DecayRate:    0.001,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type fragmentJSON struct {
	ID                 uuid.UUID       `json:"id"`
	Kind               FragmentKind    `json:"kind"`
	Content            json.RawMessage `json:"content"`
	Confidence         float64         `json:"confidence"`
	Salience           float64         `json:"salience"`
	EmotionalTag       float64         `json:"emotional_tag"`
	ReinforcementCount int             `json:"reinforcement_count"`
	LastActivated      time.Time       `json:"last_activated"`
	ActivationHistory  []time.Time     `json:"activation_history,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	DecayRate          float64         `json:"decay_rate"`
}

// MarshalJSON encodes the fragment with a kind tag so the content variant
// survives round-trips.
func (f *Fragment) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(f.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fragmentJSON{
		ID:                 f.ID,
		Kind:               f.Content.Kind(),
		Content:            content,
		Confidence:         f.Confidence,
		Salience:           f.Salience,
		EmotionalTag:       f.EmotionalTag,
		ReinforcementCount: f.ReinforcementCount,
		LastActivated:      f.LastActivated,
		ActivationHistory:  f.ActivationHistory,
		CreatedAt:          f.CreatedAt,
		DecayRate:          f.DecayRate,
	})
}

// UnmarshalJSON decodes a tagged fragment.
func (f *Fragment) UnmarshalJSON(data []byte) error {
	var raw fragmentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	content, err := decodeContent(raw.Kind, raw.Content)
	if err != nil {
		return err
	}
	f.ID = raw.ID
	f.Content = content
	f.Confidence = raw.Confidence
	f.Salience = raw.Salience
	f.EmotionalTag = raw.EmotionalTag
	f.ReinforcementCount = raw.ReinforcementCount
	f.LastActivated = raw.LastActivated
	f.ActivationHistory = raw.ActivationHistory
	f.CreatedAt = raw.CreatedAt
	f.DecayRate = raw.DecayRate
	return nil
}

func decodeContent(kind FragmentKind, data json.RawMessage) (FragmentContent, error) {
	unmarshal := func(v FragmentContent) (FragmentContent, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, err
		}
		return v, nil
	}
	switch kind {
	case KindEntityRelation:
		c, err := unmarshal(&EntityRelation{})
		return deref(c), err
	case KindCausalRule:
		c, err := unmarshal(&CausalRule{})
		return deref(c), err
	case KindGoalStrategy:
		c, err := unmarshal(&GoalStrategy{})
		return deref(c), err
	case KindConstraint:
		c, err := unmarshal(&Constraint{})
		return deref(c), err
	case KindPreference:
		c, err := unmarshal(&Preference{})
		return deref(c), err
	case KindContextSignature:
		c, err := unmarshal(&ContextSignature{})
		return deref(c), err
	case KindPersonalFact:
		c, err := unmarshal(&PersonalFact{})
		return deref(c), err
	case KindTemporalEvent:
		c, err := unmarshal(&TemporalEvent{})
		return deref(c), err
	case KindSpatialRelation:
		c, err := unmarshal(&SpatialRelation{})
		return deref(c), err
	case KindQuantitativeFact:
		c, err := unmarshal(&QuantitativeFact{})
		return deref(c), err
	case KindHierarchicalRelation:
		c, err := unmarshal(&HierarchicalRelation{})
		return deref(c), err
	case KindSocialRelation:
		c, err := unmarshal(&SocialRelation{})
		return deref(c), err
	case KindOwnershipRelation:
		c, err := unmarshal(&OwnershipRelation{})
		return deref(c), err
	case KindStateTransition:
		c, err := unmarshal(&StateTransition{})
		return deref(c), err
	case KindCapability:
		c, err := unmarshal(&Capability{})
		return deref(c), err
	case KindBelief:
		c, err := unmarshal(&Belief{})
		return deref(c), err
	case KindSemanticAtom:
		c, err := unmarshal(&SemanticAtomContent{})
		return deref(c), err
	default:
		return nil, fmt.Errorf("unknown fragment kind %q", kind)
	}
}

// deref flattens the pointer produced during decoding back to the value form
// used everywhere else.
func deref(c FragmentContent) FragmentContent {
	switch v := c.(type) {
	case *EntityRelation:
		return *v
	case *CausalRule:
		return *v
	case *GoalStrategy:
		return *v
	case *Constraint:
		return *v
	case *Preference:
		return *v
	case *ContextSignature:
		return *v
	case *PersonalFact:
		return *v
	case *TemporalEvent:
		return *v
	case *SpatialRelation:
		return *v
	case *QuantitativeFact:
		return *v
	case *HierarchicalRelation:
		return *v
	case *SocialRelation:
		return *v
	case *OwnershipRelation:
		return *v
	case *StateTransition:
		return *v
	case *Capability:
		return *v
	case *Belief:
		return *v
	case *SemanticAtomContent:
		return *v
	case nil:
		return nil
	default:
		return c
	}
}
