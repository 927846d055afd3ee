package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EdgeType classifies a directed edge between fragments.
type EdgeType string

const (
	EdgeCausal     EdgeType = "causal"
	EdgeTemporal   EdgeType = "temporal"
	EdgeSemantic   EdgeType = "semantic"
	EdgeContextual EdgeType = "contextual"
)

// EdgeKey addresses an edge by its ordered endpoint pair. At most one edge
// exists per key; later inserts replace earlier ones.
type EdgeKey struct {
	From uuid.UUID
	To   uuid.UUID
}

// Edge is a directed, weighted link between two fragments.
type Edge struct {
	From           uuid.UUID `json:"from"`
	To             uuid.UUID `json:"to"`
	EdgeType       EdgeType  `json:"edge_type"`
	Strength       float64   `json:"strength"`
	LastReinforced time.Time `json:"last_reinforced"`
	CreatedAt      time.Time `json:"created_at"`
	DecayRate      float64   `json:"decay_rate"`
}

// Key returns the map key for this edge.
func (e *Edge) Key() EdgeKey { return EdgeKey{From: e.From, To: e.To} }

// idSet is a set of fragment ids.
type idSet map[uuid.UUID]struct{}

func (s idSet) add(id uuid.UUID) { s[id] = struct{}{} }

func (s idSet) has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// ActivationIndex holds three inverted maps from lookup keys to fragment id
// sets. It is supplementary and non-authoritative: eviction does not scrub
// it, so lookups must tolerate dangling ids.
type ActivationIndex struct {
	ByGoal    map[string]idSet
	ByDomain  map[string]idSet
	ByKeyword map[string]idSet
}

func newActivationIndex() *ActivationIndex {
	return &ActivationIndex{
		ByGoal:    make(map[string]idSet),
		ByDomain:  make(map[string]idSet),
		ByKeyword: make(map[string]idSet),
	}
}

func (ix *ActivationIndex) addGoal(key string, id uuid.UUID) {
	if ix.ByGoal[key] == nil {
		ix.ByGoal[key] = make(idSet)
	}
	ix.ByGoal[key].add(id)
}

func (ix *ActivationIndex) addDomain(key string, id uuid.UUID) {
	if ix.ByDomain[key] == nil {
		ix.ByDomain[key] = make(idSet)
	}
	ix.ByDomain[key].add(id)
}

func (ix *ActivationIndex) addKeyword(key string, id uuid.UUID) {
	if key == "" {
		return
	}
	if ix.ByKeyword[key] == nil {
		ix.ByKeyword[key] = make(idSet)
	}
	ix.ByKeyword[key].add(id)
}

// CoActivationPattern tracks a set of fragments that fire together.
type CoActivationPattern struct {
	FragmentIDs       []uuid.UUID `json:"fragment_ids"`
	ActivationCount   int         `json:"activation_count"`
	AverageConfidence float64     `json:"average_confidence"`
	LastActivated     time.Time   `json:"last_activated"`
}

// Graph owns all fragments, edges, the activation index, compiled modules and
// co-activation patterns for one agent. It is a single mutable aggregate:
// callers needing concurrent access must add their own synchronization.
type Graph struct {
	Fragments     map[uuid.UUID]*Fragment
	Edges         map[EdgeKey]*Edge
	Index         *ActivationIndex
	Modules       []*CompiledModule
	CoActivations []*CoActivationPattern
	Version       int

	logger *zap.Logger
}

// NewGraph creates an empty memory graph.
func NewGraph(logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		Fragments: make(map[uuid.UUID]*Fragment),
		Edges:     make(map[EdgeKey]*Edge),
		Index:     newActivationIndex(),
		Version:   1,
		logger:    logger,
	}
}

// SetLogger attaches a logger, typically after a snapshot load.
func (g *Graph) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g.logger = logger
}

// InsertFragment stores the fragment, derives its index entries and installs
// the given edges. Edges overwrite any previous edge for the same ordered
// pair.
func (g *Graph) InsertFragment(f *Fragment, edges []*Edge) {
	g.Fragments[f.ID] = f
	g.indexFragment(f)
	for _, e := range edges {
		g.Edges[e.Key()] = e
	}
	g.logger.Debug("fragment inserted",
		zap.String("id", f.ID.String()),
		zap.String("kind", string(f.Content.Kind())),
		zap.Int("edges", len(edges)))
}

// indexFragment derives inverted-index entries from the content variant's
// own fields. Each variant chooses its own key set.
func (g *Graph) indexFragment(f *Fragment) {
	key := func(s string) {
		g.Index.addKeyword(s, f.ID)
		g.Index.addKeyword(strings.ToLower(s), f.ID)
	}
	switch c := f.Content.(type) {
	case EntityRelation:
		key(c.Entity)
	case CausalRule:
		key(c.Condition)
		key(c.Outcome)
	case GoalStrategy:
		for _, p := range ExtractGoalPatterns(c.Goal) {
			g.Index.addGoal(p, f.ID)
		}
	case Constraint:
		key(c.Constraint)
		key(c.Context)
	case Preference:
		key(c.Preference)
		key(c.Context)
	case ContextSignature:
		key(c.Pattern)
	case PersonalFact:
		key(c.Person)
		key(c.FactType)
		key(c.Value)
	case TemporalEvent:
		key(c.Event)
		key(c.TimeExpression)
	case SpatialRelation:
		key(c.Entity)
		key(c.Location)
	case QuantitativeFact:
		key(c.Entity)
	case HierarchicalRelation:
		key(c.Parent)
		key(c.Child)
	case SocialRelation:
		key(c.Person1)
		key(c.Person2)
		key(c.RelationType)
	case OwnershipRelation:
		key(c.Owner)
		key(c.Owned)
	case StateTransition:
		key(c.Entity)
		key(c.ToState)
	case Capability:
		key(c.Entity)
		key(c.Capability)
	case Belief:
		key(c.Entity)
		key(c.Belief)
	case SemanticAtomContent:
		for k, v := range c.Content {
			key(k)
			if len(v) >= 2 {
				key(v)
			}
		}
	}
}

// RecordCoActivation canonicalizes the id set and updates or creates the
// matching co-activation pattern with an incrementally averaged confidence.
func (g *Graph) RecordCoActivation(ids []uuid.UUID) {
	if len(ids) < 2 {
		return
	}
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].String(), sorted[j].String()) < 0
	})

	var total float64
	for _, id := range ids {
		if f, ok := g.Fragments[id]; ok {
			total += f.Confidence
		}
	}
	mean := total / float64(len(ids))
	now := time.Now()

	for _, p := range g.CoActivations {
		if sameIDs(p.FragmentIDs, sorted) {
			p.ActivationCount++
			p.LastActivated = now
			p.AverageConfidence = (p.AverageConfidence + mean) / 2
			return
		}
	}
	g.CoActivations = append(g.CoActivations, &CoActivationPattern{
		FragmentIDs:       sorted,
		ActivationCount:   1,
		AverageConfidence: mean,
		LastActivated:     now,
	})
}

func sameIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AddModule registers a compiled module for fast-path compilation.
func (g *Graph) AddModule(m *CompiledModule) {
	g.Modules = append(g.Modules, m)
	g.logger.Info("compiled module registered",
		zap.String("id", m.ID.String()),
		zap.String("type", string(m.ModuleType)),
		zap.Float64("confidence", m.Confidence))
}

// MemoryStats summarizes graph size for the external response layer.
type MemoryStats struct {
	Fragments         int `json:"fragments"`
	Edges             int `json:"edges"`
	CompiledModules   int `json:"compiled_modules"`
	ConversationTurns int `json:"conversation_turns"`
}

// Stats reports current sizes. ConversationTurns is filled by the session
// that owns the graph.
func (g *Graph) Stats() MemoryStats {
	return MemoryStats{
		Fragments:       len(g.Fragments),
		Edges:           len(g.Edges),
		CompiledModules: len(g.Modules),
	}
}
