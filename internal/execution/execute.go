package execution

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/compiler"
	"github.com/nidhogg/engram/internal/memory"
)

// Executor walks execution graphs against a memory graph.
type Executor struct {
	logger *zap.Logger
}

// New creates an executor.
func New(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// ExecuteEEG walks the graph from its entry point. A visited set guarantees
// termination on cyclic input: a node is interpreted at most once and a
// revisit ends the walk. Fragment nodes are interpreted against live memory,
// decisions follow their first branch, conflicts jump to the selected
// fragment, and everything else follows the first outgoing edge.
func (x *Executor) ExecuteEEG(eeg *compiler.EEG, g *memory.Graph) *Result {
	start := time.Now()
	var trace []uuid.UUID
	var signals []ReinforcementSignal
	var fragmentOutcomes []memory.Outcome
	branchDecisions := make(map[uuid.UUID]uuid.UUID)

	visited := make(map[uuid.UUID]struct{})
	current := eeg.Entry

	for {
		node, ok := eeg.Nodes[current]
		if !ok {
			break
		}
		if _, seen := visited[current]; seen {
			break
		}
		visited[current] = struct{}{}
		trace = append(trace, current)

		jumped := false
		switch content := node.Content.(type) {
		case compiler.FragmentRef:
			if f, ok := g.Fragments[content.FragmentID]; ok {
				outcome := interpretFragment(f)
				fragmentOutcomes = append(fragmentOutcomes, outcome)
				if outcome.OutcomeType == memory.OutcomeSuccess {
					signals = append(signals, ReinforcementSignal{
						FragmentID: content.FragmentID,
						SignalType: SignalPositive,
						Strength:   0.8,
						Reason:     "Successful execution",
					})
				}
			}
		case compiler.Decision:
			if len(content.Branches) > 0 {
				target := content.Branches[0].TargetNode
				branchDecisions[current] = target
				current = target
				jumped = true
			}
		case compiler.ConflictContent:
			if content.SelectedFragment != nil {
				current = *content.SelectedFragment
				jumped = true
			}
		case compiler.GapFill, compiler.Action:
			// Nothing to interpret; fall through to the edge walk.
		}
		if jumped {
			continue
		}

		next, ok := firstOutgoingEdge(eeg, current)
		if !ok {
			break
		}
		current = next
	}

	elapsed := time.Since(start)
	result := &Result{
		Outcome:         combineOutcomes(fragmentOutcomes, trace, eeg.Metadata.Confidence),
		Trace:           trace,
		BranchDecisions: branchDecisions,
		Confidence:      eeg.Metadata.Confidence,
		TimeTaken:       elapsed,
		Signals:         signals,
	}

	x.logger.Debug("execution finished",
		zap.Int("steps", len(trace)),
		zap.String("outcome", string(result.Outcome.OutcomeType)),
		zap.Duration("elapsed", elapsed))
	return result
}

// TraceOf packages a result as a linter trace keyed by the graph's compile
// timestamp.
func TraceOf(eeg *compiler.EEG, ctx *memory.ContextVector, result *Result) *Trace {
	return &Trace{
		ID:              uuid.New(),
		Context:         ctx,
		NodeSequence:    result.Trace,
		BranchDecisions: result.BranchDecisions,
		ExecutionTime:   result.TimeTaken,
		Timestamp:       eeg.Metadata.CompiledAt,
	}
}

func firstOutgoingEdge(eeg *compiler.EEG, from uuid.UUID) (uuid.UUID, bool) {
	for _, e := range eeg.Edges {
		if e.From == from {
			return e.To, true
		}
	}
	return uuid.UUID{}, false
}

// combineOutcomes folds per-fragment outcomes into the run outcome. A run
// with fragment outcomes and more than one step succeeds; a single-step run
// is only partial.
func combineOutcomes(fragmentOutcomes []memory.Outcome, trace []uuid.UUID, confidence float64) memory.Outcome {
	if len(fragmentOutcomes) > 0 {
		results := make([]string, len(fragmentOutcomes))
		for i, o := range fragmentOutcomes {
			results[i] = o.Result
		}
		outcomeType := memory.OutcomePartial
		if len(trace) > 1 {
			outcomeType = memory.OutcomeSuccess
		}
		return memory.Outcome{
			OutcomeType: outcomeType,
			Result:      strings.Join(results, "; "),
			Explanation: fmt.Sprintf("Executed %d fragments", len(fragmentOutcomes)),
			Confidence:  confidence,
		}
	}
	if len(trace) > 1 {
		return memory.Outcome{
			OutcomeType: memory.OutcomeSuccess,
			Result:      fmt.Sprintf("Executed %d nodes", len(trace)),
			Explanation: "Execution completed successfully",
			Confidence:  confidence,
		}
	}
	return memory.Outcome{
		OutcomeType: memory.OutcomePartial,
		Result:      "Minimal execution",
		Explanation: "Limited execution path",
		Confidence:  0.5,
	}
}

// interpretFragment renders one fragment as an execution outcome. Every
// variant interprets successfully; failure only enters through external
// feedback.
func interpretFragment(f *memory.Fragment) memory.Outcome {
	success := func(result, explanation string) memory.Outcome {
		return memory.Outcome{
			OutcomeType: memory.OutcomeSuccess,
			Result:      result,
			Explanation: explanation,
			Confidence:  f.Confidence,
		}
	}
	switch c := f.Content.(type) {
	case memory.EntityRelation:
		return success(fmt.Sprintf("%s %s %s", c.Entity, c.Relation, c.Target), "Entity relation identified")
	case memory.CausalRule:
		return success(fmt.Sprintf("%s -> %s", c.Condition, c.Outcome), "Causal rule applied")
	case memory.GoalStrategy:
		return success(fmt.Sprintf("Goal: %s, Strategy: %s", c.Goal, c.Strategy), "Goal-strategy pair identified")
	case memory.Constraint:
		return success(c.Constraint, "Constraint identified")
	case memory.Preference:
		return success(c.Preference, "Preference identified")
	case memory.ContextSignature:
		return success(c.Pattern, "Context signature identified")
	case memory.PersonalFact:
		return success(fmt.Sprintf("%s %s %s", c.Person, c.FactType, c.Value), "Personal fact identified")
	case memory.TemporalEvent:
		return success(fmt.Sprintf("%s at %s", c.Event, c.TimeExpression), "Temporal event identified")
	case memory.SpatialRelation:
		return success(fmt.Sprintf("%s at %s", c.Entity, c.Location), "Spatial relation identified")
	case memory.QuantitativeFact:
		return success(strings.TrimSpace(fmt.Sprintf("%s: %v %s", c.Entity, c.Quantity, c.Unit)), "Quantitative fact identified")
	case memory.HierarchicalRelation:
		return success(fmt.Sprintf("%s contains %s", c.Parent, c.Child), "Hierarchical relation identified")
	case memory.SocialRelation:
		return success(fmt.Sprintf("%s %s %s", c.Person1, c.RelationType, c.Person2), "Social relation identified")
	case memory.OwnershipRelation:
		return success(fmt.Sprintf("%s owns %s", c.Owner, c.Owned), "Ownership relation identified")
	case memory.StateTransition:
		return success(fmt.Sprintf("%s: %s -> %s", c.Entity, c.FromState, c.ToState), "State transition identified")
	case memory.Capability:
		return success(fmt.Sprintf("%s can %s", c.Entity, c.Capability), "Capability identified")
	case memory.Belief:
		return success(fmt.Sprintf("%s believes %s", c.Entity, c.Belief), "Belief identified")
	case memory.SemanticAtomContent:
		pairs := make([]string, 0, len(c.Content))
		for k, v := range c.Content {
			pairs = append(pairs, fmt.Sprintf("%s: %s", k, v))
		}
		sort.Strings(pairs)
		return success(
			fmt.Sprintf("Atom type: %s, Content: %s", c.AtomType, strings.Join(pairs, ", ")),
			"Semantic atom identified")
	default:
		return memory.Outcome{
			OutcomeType: memory.OutcomeUncertain,
			Result:      "Unrecognized fragment content",
			Confidence:  f.Confidence,
		}
	}
}
