// Package distill converts semantic events into memory fragments and edges.
// Every atom becomes a raw atom fragment; recognizable structures
// additionally yield typed fragments (personal facts, temporal events,
// spatial, quantitative, hierarchical, social and ownership relations).
package distill

import (
	"strconv"
	"time"

	"github.com/nidhogg/engram/internal/memory"
)

// Distilled is the product of distilling one event. AtomFragments is
// index-aligned with the event's atoms so relationship edges can be
// resolved; TypedFragments carry the structured extractions.
type Distilled struct {
	AtomFragments  []*memory.Fragment
	TypedFragments []*memory.Fragment
	Edges          []*memory.Edge
}

// Fragments returns all fragments, atoms first.
func (d *Distilled) Fragments() []*memory.Fragment {
	out := make([]*memory.Fragment, 0, len(d.AtomFragments)+len(d.TypedFragments))
	out = append(out, d.AtomFragments...)
	out = append(out, d.TypedFragments...)
	return out
}

// DistillEvent lowers a semantic event into fragments and edges. Confidence
// and salience of new fragments both come from the event's salience; the
// emotional tag carries over from the event's emotional weight.
func DistillEvent(event *memory.SemanticEvent) *Distilled {
	d := &Distilled{}

	for _, atom := range event.Atoms {
		d.AtomFragments = append(d.AtomFragments, newFragment(event, memory.SemanticAtomContent{
			AtomType: atom.AtomType,
			Content:  atom.Content,
		}))
	}

	d.TypedFragments = append(d.TypedFragments, extractPersonalFacts(event)...)
	d.TypedFragments = append(d.TypedFragments, extractTemporalEvents(event)...)
	d.TypedFragments = append(d.TypedFragments, extractSpatialRelations(event)...)
	d.TypedFragments = append(d.TypedFragments, extractQuantitativeFacts(event)...)
	d.TypedFragments = append(d.TypedFragments, extractRelationshipFragments(event)...)

	d.Edges = edgesFromRelationships(event, d.AtomFragments)
	return d
}

func newFragment(event *memory.SemanticEvent, content memory.FragmentContent) *memory.Fragment {
	f := memory.NewFragment(content, event.Salience, event.Salience, event.EmotionalWeight)
	return f
}

// edgesFromRelationships wires atom fragments along the event's
// relationships. Relation types collapse onto the four edge types; anything
// unrecognized is semantic.
func edgesFromRelationships(event *memory.SemanticEvent, atomFragments []*memory.Fragment) []*memory.Edge {
	now := time.Now()
	var edges []*memory.Edge
	for _, rel := range event.Relationships {
		if rel.FromAtom < 0 || rel.FromAtom >= len(atomFragments) ||
			rel.ToAtom < 0 || rel.ToAtom >= len(atomFragments) {
			continue
		}
		edges = append(edges, &memory.Edge{
			From:           atomFragments[rel.FromAtom].ID,
			To:             atomFragments[rel.ToAtom].ID,
			EdgeType:       edgeTypeFor(rel.RelationType),
			Strength:       rel.Strength,
			LastReinforced: now,
			CreatedAt:      now,
			DecayRate:      0.001,
		})
	}
	return edges
}

func edgeTypeFor(rel memory.RelationType) memory.EdgeType {
	switch rel {
	case memory.RelCausal, memory.RelCauses:
		return memory.EdgeCausal
	case memory.RelTemporal, memory.RelBefore, memory.RelAfter, memory.RelDuring, memory.RelSimultaneous:
		return memory.EdgeTemporal
	default:
		return memory.EdgeSemantic
	}
}

func atomValue(atom memory.SemanticAtom, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := atom.Content[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func firstAtomName(event *memory.SemanticEvent, types ...memory.AtomType) string {
	for _, atom := range event.Atoms {
		for _, t := range types {
			if atom.AtomType == t {
				if name, ok := atomValue(atom, "name", "key"); ok {
					return name
				}
			}
		}
	}
	return "unknown"
}

// extractPersonalFacts derives personal facts from person atoms: one fact
// for the declared name plus one per additional content key.
func extractPersonalFacts(event *memory.SemanticEvent) []*memory.Fragment {
	var fragments []*memory.Fragment
	for _, atom := range event.Atoms {
		if atom.AtomType != memory.AtomPerson {
			continue
		}
		name, ok := atomValue(atom, "name", "key")
		if !ok {
			continue
		}
		factType := "name"
		if ft, ok := atomValue(atom, "fact_type"); ok {
			factType = ft
		}
		value := name
		if v, ok := atomValue(atom, "value", "fact", "preference"); ok {
			value = v
		}
		fragments = append(fragments, newFragment(event, memory.PersonalFact{
			Person:     name,
			FactType:   factType,
			Value:      value,
			Confidence: event.Salience,
		}))

		for key, v := range atom.Content {
			if key == "name" || key == "key" || key == "fact_type" || v == "" {
				continue
			}
			fragments = append(fragments, newFragment(event, memory.PersonalFact{
				Person:     name,
				FactType:   key,
				Value:      v,
				Confidence: event.Salience,
			}))
		}
	}
	return fragments
}

func extractTemporalEvents(event *memory.SemanticEvent) []*memory.Fragment {
	var fragments []*memory.Fragment
	for _, atom := range event.Atoms {
		if atom.AtomType != memory.AtomTime {
			continue
		}
		expr, ok := atomValue(atom, "time_expression", "duration", "frequency")
		if !ok {
			continue
		}
		fragments = append(fragments, newFragment(event, memory.TemporalEvent{
			Event:          "temporal_event",
			TimeExpression: expr,
			Duration:       atom.Content["duration"],
			Frequency:      atom.Content["frequency"],
			Confidence:     event.Salience,
		}))
	}
	return fragments
}

func extractSpatialRelations(event *memory.SemanticEvent) []*memory.Fragment {
	var fragments []*memory.Fragment
	for _, atom := range event.Atoms {
		if atom.AtomType != memory.AtomLocation {
			continue
		}
		location, ok := atomValue(atom, "location_keyword", "direction")
		if !ok {
			continue
		}
		fragments = append(fragments, newFragment(event, memory.SpatialRelation{
			Entity:       firstAtomName(event, memory.AtomEntity, memory.AtomPerson, memory.AtomObject),
			Location:     location,
			RelationType: "located_at",
			Confidence:   event.Salience,
		}))
	}
	return fragments
}

func extractQuantitativeFacts(event *memory.SemanticEvent) []*memory.Fragment {
	var fragments []*memory.Fragment
	for _, atom := range event.Atoms {
		if atom.AtomType != memory.AtomQuantity {
			continue
		}
		comparison, ok := atomValue(atom, "comparison")
		if !ok {
			continue
		}
		quantity, _ := strconv.ParseFloat(atom.Content["quantity"], 64)
		fragments = append(fragments, newFragment(event, memory.QuantitativeFact{
			Entity:     firstAtomName(event, memory.AtomEntity, memory.AtomObject),
			Quantity:   quantity,
			Unit:       atom.Content["unit"],
			Comparison: comparison,
			Confidence: event.Salience,
		}))
	}
	return fragments
}

// extractRelationshipFragments lifts hierarchical, social and ownership
// relationships into their typed fragment forms. Typed relationship
// fragments inherit confidence scaled by relationship strength.
func extractRelationshipFragments(event *memory.SemanticEvent) []*memory.Fragment {
	var fragments []*memory.Fragment
	for _, rel := range event.Relationships {
		if rel.FromAtom < 0 || rel.FromAtom >= len(event.Atoms) ||
			rel.ToAtom < 0 || rel.ToAtom >= len(event.Atoms) {
			continue
		}
		from := event.Atoms[rel.FromAtom]
		to := event.Atoms[rel.ToAtom]
		confidence := rel.Strength * event.Salience

		switch rel.RelationType {
		case memory.RelPartOf, memory.RelHierarchical:
			parent, _ := atomValue(from, "name", "hierarchical_marker")
			child, _ := atomValue(to, "name", "hierarchical_marker")
			if parent == "" {
				parent = "unknown"
			}
			if child == "" {
				child = "unknown"
			}
			f := memory.NewFragment(memory.HierarchicalRelation{
				Parent:       parent,
				Child:        child,
				RelationType: string(rel.RelationType),
				Confidence:   confidence,
			}, confidence, event.Salience, event.EmotionalWeight)
			fragments = append(fragments, f)

		case memory.RelKnows, memory.RelParticipatesIn, memory.RelRelatedTo:
			if from.AtomType != memory.AtomPerson || to.AtomType != memory.AtomPerson {
				continue
			}
			person1, _ := atomValue(from, "name", "social_marker")
			person2, _ := atomValue(to, "name", "social_marker")
			if person1 == "" || person2 == "" {
				continue
			}
			f := memory.NewFragment(memory.SocialRelation{
				Person1:      person1,
				Person2:      person2,
				RelationType: string(rel.RelationType),
				Strength:     rel.Strength,
				Confidence:   confidence,
			}, confidence, event.Salience, event.EmotionalWeight)
			fragments = append(fragments, f)

		case memory.RelOwnership:
			owner, _ := atomValue(from, "name", "ownership_marker")
			owned, _ := atomValue(to, "name", "ownership_marker")
			if owner == "" {
				owner = "unknown"
			}
			if owned == "" {
				owned = "unknown"
			}
			f := memory.NewFragment(memory.OwnershipRelation{
				Owner:        owner,
				Owned:        owned,
				RelationType: "owns",
				Confidence:   confidence,
			}, confidence, event.Salience, event.EmotionalWeight)
			fragments = append(fragments, f)
		}
	}
	return fragments
}
