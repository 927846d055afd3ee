package compiler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/memory"
)

// Compiler builds execution graphs from a memory graph.
type Compiler struct {
	logger *zap.Logger
}

// New creates a compiler.
func New(logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{logger: logger}
}

// CompileThought runs the full pipeline against the graph's own module
// registry.
func (c *Compiler) CompileThought(ctx *memory.ContextVector, g *memory.Graph) *EEG {
	return c.CompileThoughtWithModules(ctx, g, g.Modules)
}

// CompileThoughtWithModules compiles a context into an EEG. When a fossilized
// module matches the context the pipeline short-circuits into a single action
// node; otherwise activation, conflict resolution, gap filling, ordering,
// branching, pruning and construction run in sequence.
func (c *Compiler) CompileThoughtWithModules(ctx *memory.ContextVector, g *memory.Graph, modules []*memory.CompiledModule) *EEG {
	if m := FindApplicableModule(ctx, modules); m != nil {
		c.logger.Debug("module fast path",
			zap.String("module_id", m.ID.String()),
			zap.String("goal", ctx.Goal.Description))
		return eegFromModule(m)
	}

	activated := g.ActivateFragments(ctx)
	if len(activated) == 0 {
		return emptyEEG()
	}

	resolved := c.resolveConflicts(activated, g)
	filled := fillGaps(resolved, g)
	ordered := orderByConfidence(filled, g)
	branched := addBranching(ordered, g)
	pruned := pruneForResources(branched, ctx)
	eeg := constructEEG(pruned, g)

	c.logger.Debug("thought compiled",
		zap.Int("activated", len(activated)),
		zap.Int("nodes", len(eeg.Nodes)),
		zap.Float64("confidence", eeg.Metadata.Confidence))
	return eeg
}

// FindApplicableModule returns the first module whose context pattern admits
// the context, or nil.
func FindApplicableModule(ctx *memory.ContextVector, modules []*memory.CompiledModule) *memory.CompiledModule {
	for _, m := range modules {
		if m.Pattern.MatchesContext(ctx) {
			return m
		}
	}
	return nil
}

// eegFromModule wraps a fossilized module into a one-node graph with a cheap
// execution cost.
func eegFromModule(m *memory.CompiledModule) *EEG {
	id := uuid.New()
	node := &Node{
		ID: id,
		Content: Action{
			ActionType: fmt.Sprintf("compiled_module_%s", m.ModuleType),
			Parameters: map[string]string{"module_id": m.ID.String()},
		},
		Confidence:      m.Confidence,
		SourceFragments: m.CreatedFrom,
		ExecutionCost:   0.1,
	}
	return &EEG{
		Nodes: map[uuid.UUID]*Node{id: node},
		Entry: id,
		Exits: []uuid.UUID{id},
		Metadata: Metadata{
			CompiledAt:     time.Now(),
			FragmentCount:  1,
			EstimatedSteps: 0.1,
			Confidence:     m.Confidence,
		},
	}
}

// emptyEEG is the fallback for a context no memory covers: a single gap-fill
// node so the executor always has something to walk.
func emptyEEG() *EEG {
	id := uuid.New()
	node := &Node{
		ID: id,
		Content: GapFill{
			Description:         "No relevant memory",
			EstimatedConfidence: 0.3,
		},
		Confidence:    0.3,
		ExecutionCost: 1.0,
	}
	return &EEG{
		Nodes: map[uuid.UUID]*Node{id: node},
		Entry: id,
		Exits: []uuid.UUID{id},
		Metadata: Metadata{
			CompiledAt:     time.Now(),
			FragmentCount:  0,
			EstimatedSteps: 1.0,
			Confidence:     0.3,
		},
	}
}

// plannedNode is an intermediate pipeline entry before EEG construction.
type plannedNode struct {
	id         uuid.UUID
	kind       NodeKind
	confidence float64
}

// resolveConflicts detects contradicting fragment pairs. Resolution admits
// every fragment regardless; detected conflicts only inform logging until
// reinforcement data can arbitrate between the sides.
func (c *Compiler) resolveConflicts(activated map[uuid.UUID]struct{}, g *memory.Graph) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(activated))
	for id := range activated {
		if _, ok := g.Fragments[id]; ok {
			ids = append(ids, id)
		}
	}

	conflicts := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if fragmentsConflict(g.Fragments[ids[i]], g.Fragments[ids[j]]) {
				conflicts++
			}
		}
	}
	if conflicts > 0 {
		c.logger.Debug("conflicting fragments activated", zap.Int("pairs", conflicts))
	}
	return ids
}

// fragmentsConflict reports whether two fragments contradict: same entity and
// relation with different targets, or same causal condition with different
// outcomes.
func fragmentsConflict(a, b *memory.Fragment) bool {
	switch c1 := a.Content.(type) {
	case memory.EntityRelation:
		if c2, ok := b.Content.(memory.EntityRelation); ok {
			return c1.Entity == c2.Entity && c1.Relation == c2.Relation && c1.Target != c2.Target
		}
	case memory.CausalRule:
		if c2, ok := b.Content.(memory.CausalRule); ok {
			return c1.Condition == c2.Condition && c1.Outcome != c2.Outcome
		}
	}
	return false
}

// fillGaps lifts fragment ids to planned nodes and pads thin graphs with a
// gap-fill node so downstream stages always see a minimal chain.
func fillGaps(resolved []uuid.UUID, g *memory.Graph) []plannedNode {
	nodes := make([]plannedNode, 0, len(resolved)+1)
	for _, id := range resolved {
		f, ok := g.Fragments[id]
		if !ok {
			continue
		}
		nodes = append(nodes, plannedNode{id: id, kind: NodeFragment, confidence: f.Confidence})
	}
	if len(nodes) < 3 {
		nodes = append(nodes, plannedNode{id: uuid.New(), kind: NodeGapFill, confidence: 0.5})
	}
	return nodes
}

// orderByConfidence sorts planned nodes by live fragment confidence,
// descending. Synthetic nodes keep their own confidence.
func orderByConfidence(nodes []plannedNode, g *memory.Graph) []plannedNode {
	out := make([]plannedNode, len(nodes))
	copy(out, nodes)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && nodeConfidence(out[j], g) > nodeConfidence(out[j-1], g); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func nodeConfidence(n plannedNode, g *memory.Graph) float64 {
	if f, ok := g.Fragments[n.id]; ok {
		return f.Confidence
	}
	return n.confidence
}

// addBranching inserts a decision node after every causal-rule fragment.
func addBranching(ordered []plannedNode, g *memory.Graph) []plannedNode {
	branched := make([]plannedNode, 0, len(ordered))
	for _, n := range ordered {
		branched = append(branched, n)
		if n.kind != NodeFragment {
			continue
		}
		f, ok := g.Fragments[n.id]
		if !ok {
			continue
		}
		if _, isCausal := f.Content.(memory.CausalRule); isCausal {
			branched = append(branched, plannedNode{id: uuid.New(), kind: NodeDecision, confidence: 0.8})
		}
	}
	return branched
}

// pruneForResources drops nodes below the effective threshold. Time pressure
// raises the bar so urgent contexts compile leaner graphs.
func pruneForResources(branched []plannedNode, ctx *memory.ContextVector) []plannedNode {
	threshold := ctx.ConfidenceThreshold + ctx.TimePressure*0.2
	pruned := make([]plannedNode, 0, len(branched))
	for _, n := range branched {
		if n.confidence >= threshold {
			pruned = append(pruned, n)
		}
	}
	return pruned
}

// constructEEG materializes planned nodes into an EEG chained with causal
// edges. The first node is the entry, the last the sole exit.
func constructEEG(pruned []plannedNode, g *memory.Graph) *EEG {
	if len(pruned) == 0 {
		return emptyEEG()
	}

	nodes := make(map[uuid.UUID]*Node, len(pruned))
	kept := make([]plannedNode, 0, len(pruned))
	var confidenceSum float64

	for _, n := range pruned {
		var node *Node
		switch n.kind {
		case NodeFragment:
			f, ok := g.Fragments[n.id]
			if !ok {
				continue
			}
			node = &Node{
				ID: n.id,
				Content: FragmentRef{
					FragmentID:     n.id,
					Interpretation: string(f.Content.Kind()),
				},
				Confidence:      f.Confidence,
				SourceFragments: []uuid.UUID{n.id},
				ExecutionCost:   1.0,
			}
		case NodeGapFill:
			node = &Node{
				ID:            n.id,
				Content:       GapFill{Description: "Missing link", EstimatedConfidence: 0.5},
				Confidence:    0.5,
				ExecutionCost: 1.0,
			}
		case NodeDecision:
			node = &Node{
				ID:            n.id,
				Content:       Decision{Condition: "check_condition"},
				Confidence:    0.8,
				ExecutionCost: 1.0,
			}
		default:
			continue
		}
		nodes[n.id] = node
		kept = append(kept, n)
		confidenceSum += node.Confidence
	}

	if len(kept) == 0 {
		return emptyEEG()
	}

	edges := make([]*Edge, 0, len(kept)-1)
	for i := 0; i+1 < len(kept); i++ {
		edges = append(edges, &Edge{
			From:     kept[i].id,
			To:       kept[i+1].id,
			EdgeType: memory.EdgeCausal,
			Weight:   1.0,
		})
	}

	return &EEG{
		Nodes: nodes,
		Edges: edges,
		Entry: kept[0].id,
		Exits: []uuid.UUID{kept[len(kept)-1].id},
		Metadata: Metadata{
			CompiledAt:     time.Now(),
			FragmentCount:  len(kept),
			EstimatedSteps: float64(len(kept)),
			Confidence:     confidenceSum / float64(len(kept)),
		},
	}
}
