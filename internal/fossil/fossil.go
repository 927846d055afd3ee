// Package fossil compiles mined reasoning patterns into byte-coded modules.
// A fossilized module short-circuits compilation for the contexts it covers:
// the compiler routes matching contexts straight to the module instead of
// re-deriving the reasoning chain from fragments.
package fossil

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/compiler"
	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/linter"
	"github.com/nidhogg/engram/internal/memory"
)

// Config gates which lint candidates become modules.
type Config struct {
	MinRepetition      int               `json:"min_repetition"`
	MinConfidence      float64           `json:"min_confidence"`
	MaxContextVariance float64           `json:"max_context_variance"`
	MinRewardCorr      float64           `json:"min_reward_correlation"`
	MinSpeedup         float64           `json:"min_speedup"`
	MaxPerRun          int               `json:"max_candidates_per_run"`
	TargetType         memory.ModuleType `json:"target_type"`
}

// DefaultConfig returns the shipping gates. Fossilization is deliberately
// stricter than candidate detection.
func DefaultConfig() Config {
	return Config{
		MinRepetition:      10,
		MinConfidence:      0.8,
		MaxContextVariance: 0.3,
		MinRewardCorr:      0.7,
		MinSpeedup:         2.0,
		MaxPerRun:          5,
		TargetType:         memory.ModuleFSM,
	}
}

// EdgePair addresses one structural edge.
type EdgePair struct {
	From uuid.UUID
	To   uuid.UUID
}

// PatternStructure is the node-and-edge skeleton of an extracted pattern.
type PatternStructure struct {
	Nodes     []uuid.UUID
	Edges     []EdgePair
	NodeKinds map[uuid.UUID]compiler.NodeKind
	EdgeTypes map[EdgePair]memory.EdgeType
}

// ExtractedPattern is a pattern lifted out of the trace corpus with the
// signatures and activation condition inferred from its instances.
type ExtractedPattern struct {
	PatternType linter.PatternType
	Structure   PatternStructure
	Input       memory.InputSignature
	Output      memory.OutputSignature
	Activation  memory.ContextPattern
	Confidence  float64
}

// Fossilizer turns lint candidates into compiled modules.
type Fossilizer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a fossilizer.
func New(cfg Config, logger *zap.Logger) *Fossilizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fossilizer{cfg: cfg, logger: logger}
}

// SelectCandidates filters a lint report's candidates through the
// fossilization gates, ranks by priority and truncates to the per-run cap.
func (fz *Fossilizer) SelectCandidates(report *linter.Report) []linter.Candidate {
	var selected []linter.Candidate
	for _, c := range report.Candidates {
		if c.RepetitionCount >= fz.cfg.MinRepetition &&
			c.AverageConfidence >= fz.cfg.MinConfidence &&
			c.ContextVariance <= fz.cfg.MaxContextVariance &&
			c.RewardCorrelation >= fz.cfg.MinRewardCorr &&
			c.EstimatedSpeedup >= fz.cfg.MinSpeedup {
			selected = append(selected, c)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority > selected[j].Priority
	})
	if fz.cfg.MaxPerRun > 0 && len(selected) > fz.cfg.MaxPerRun {
		selected = selected[:fz.cfg.MaxPerRun]
	}
	return selected
}

// Fossilize runs the full pipeline: select, extract, compile. Candidates
// whose pattern cannot be extracted are skipped.
func (fz *Fossilizer) Fossilize(report *linter.Report, eegs []*compiler.EEG, traces []*execution.Trace) []*memory.CompiledModule {
	var modules []*memory.CompiledModule
	for _, candidate := range fz.SelectCandidates(report) {
		extracted := fz.ExtractPattern(&candidate, eegs, traces)
		if extracted == nil {
			continue
		}
		var module *memory.CompiledModule
		switch fz.cfg.TargetType {
		case memory.ModuleDecisionTable:
			module = CompileToDecisionTable(extracted)
		default:
			module = CompileToFSM(extracted)
		}
		modules = append(modules, module)
		fz.logger.Info("pattern fossilized",
			zap.String("module_id", module.ID.String()),
			zap.String("pattern_type", string(candidate.PatternType)),
			zap.Int("code_bytes", len(module.Code)),
			zap.Float64("confidence", module.Confidence))
	}
	return modules
}

// ExtractPattern lifts the candidate's source pattern into a structure with
// inferred signatures. Returns nil when the candidate carries no source.
func (fz *Fossilizer) ExtractPattern(candidate *linter.Candidate, eegs []*compiler.EEG, traces []*execution.Trace) *ExtractedPattern {
	switch {
	case candidate.SourcePath != nil:
		return extractPathPattern(candidate.SourcePath, eegs, traces)
	case candidate.SourceBranch != nil:
		return extractBranchPattern(candidate.SourceBranch, eegs, traces)
	default:
		return nil
	}
}

type instance struct {
	eeg   *compiler.EEG
	trace *execution.Trace
}

func joinEEG(eegs []*compiler.EEG, trace *execution.Trace) *compiler.EEG {
	for _, eeg := range eegs {
		if eeg.Metadata.CompiledAt.Equal(trace.Timestamp) {
			return eeg
		}
	}
	return nil
}

func extractPathPattern(p *linter.PathPattern, eegs []*compiler.EEG, traces []*execution.Trace) *ExtractedPattern {
	var instances []instance
	for _, trace := range traces {
		if !pathMatchesTrace(p.Path, trace.NodeSequence) {
			continue
		}
		if eeg := joinEEG(eegs, trace); eeg != nil {
			instances = append(instances, instance{eeg: eeg, trace: trace})
		}
	}

	structure := PatternStructure{
		Nodes:     p.Path,
		NodeKinds: make(map[uuid.UUID]compiler.NodeKind),
		EdgeTypes: make(map[EdgePair]memory.EdgeType),
	}
	for i := 0; i+1 < len(p.Path); i++ {
		structure.Edges = append(structure.Edges, EdgePair{From: p.Path[i], To: p.Path[i+1]})
	}
	if len(instances) > 0 {
		eeg := instances[0].eeg
		for _, id := range p.Path {
			if node, ok := eeg.Nodes[id]; ok {
				structure.NodeKinds[id] = node.Content.NodeKind()
			}
		}
		for _, pair := range structure.Edges {
			for _, e := range eeg.Edges {
				if e.From == pair.From && e.To == pair.To {
					structure.EdgeTypes[pair] = e.EdgeType
					break
				}
			}
		}
	}

	return &ExtractedPattern{
		PatternType: linter.PatternPath,
		Structure:   structure,
		Input:       inferInputSignature(instances),
		Output:      inferOutputSignature(),
		Activation:  inferActivation(p.Contexts),
		Confidence:  p.AverageConfidence,
	}
}

func extractBranchPattern(b *linter.BranchPattern, eegs []*compiler.EEG, traces []*execution.Trace) *ExtractedPattern {
	var instances []instance
	for _, trace := range traces {
		if chosen, ok := trace.BranchDecisions[b.DecisionNode]; ok && chosen == b.DominantBranch {
			if eeg := joinEEG(eegs, trace); eeg != nil {
				instances = append(instances, instance{eeg: eeg, trace: trace})
			}
		}
	}

	structure := PatternStructure{
		Nodes:     []uuid.UUID{b.DecisionNode, b.DominantBranch},
		Edges:     []EdgePair{{From: b.DecisionNode, To: b.DominantBranch}},
		NodeKinds: make(map[uuid.UUID]compiler.NodeKind),
		EdgeTypes: make(map[EdgePair]memory.EdgeType),
	}

	return &ExtractedPattern{
		PatternType: linter.PatternBranch,
		Structure:   structure,
		Input:       inferInputSignature(instances),
		Output:      inferOutputSignature(),
		Activation:  inferActivation(b.Contexts),
		Confidence:  b.AverageConfidence,
	}
}

// pathMatchesTrace reports whether path appears in sequence as an ordered
// subsequence.
func pathMatchesTrace(path, sequence []uuid.UUID) bool {
	i := 0
	for _, id := range sequence {
		if i < len(path) && path[i] == id {
			i++
		}
	}
	return i == len(path)
}

// inferInputSignature derives module parameters from the first instance's
// driving context.
func inferInputSignature(instances []instance) memory.InputSignature {
	var sig memory.InputSignature
	if len(instances) == 0 {
		return sig
	}
	ctx := instances[0].trace.Context
	goal := strings.ToLower(ctx.Goal.Description)
	if strings.Contains(goal, "http") {
		sig.Parameters = append(sig.Parameters, "http_request")
	}
	if strings.Contains(goal, "api") {
		sig.Parameters = append(sig.Parameters, "api_call")
	}
	if strings.Contains(goal, "error") {
		sig.Parameters = append(sig.Parameters, "error_code")
	}
	sig.ContextRequirements = append(sig.ContextRequirements, ctx.DomainHint.Domain)
	tags := make([]string, 0, len(ctx.DomainHint.Tags))
	for tag := range ctx.DomainHint.Tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	sig.ContextRequirements = append(sig.ContextRequirements, tags...)
	return sig
}

func inferOutputSignature() memory.OutputSignature {
	return memory.OutputSignature{
		ReturnType:  "Outcome",
		SideEffects: []string{"memory_update"},
	}
}

// inferActivation folds the instance contexts into one gating pattern. The
// threshold is the mean of the contexts' own thresholds.
func inferActivation(contexts []*memory.ContextVector) memory.ContextPattern {
	var pattern memory.ContextPattern
	if len(contexts) == 0 {
		return pattern
	}

	seenGoal := make(map[string]struct{})
	seenDomain := make(map[string]struct{})
	var thresholdSum float64
	for _, ctx := range contexts {
		goal := strings.ToLower(ctx.Goal.Description)
		for _, marker := range []string{"http", "api", "error"} {
			if strings.Contains(goal, marker) {
				if _, ok := seenGoal[marker]; !ok {
					seenGoal[marker] = struct{}{}
					pattern.GoalPatterns = append(pattern.GoalPatterns, marker)
				}
			}
		}
		if _, ok := seenDomain[ctx.DomainHint.Domain]; !ok {
			seenDomain[ctx.DomainHint.Domain] = struct{}{}
			pattern.DomainTags = append(pattern.DomainTags, ctx.DomainHint.Domain)
		}
		thresholdSum += ctx.ConfidenceThreshold
	}
	pattern.ConfidenceThreshold = thresholdSum / float64(len(contexts))
	return pattern
}

// CompileToFSM lowers a pattern into finite-state-machine byte code:
// a u32 state count and u32 transition count (little endian), then one
// (id, accepting) byte pair per state and one (from, to) byte pair per
// transition.
func CompileToFSM(extracted *ExtractedPattern) *memory.CompiledModule {
	nodeIndex := make(map[uuid.UUID]int, len(extracted.Structure.Nodes))
	for i, id := range extracted.Structure.Nodes {
		nodeIndex[id] = i
	}

	type transition struct{ from, to int }
	var transitions []transition
	for _, pair := range extracted.Structure.Edges {
		from, okFrom := nodeIndex[pair.From]
		to, okTo := nodeIndex[pair.To]
		if okFrom && okTo {
			transitions = append(transitions, transition{from: from, to: to})
		}
	}

	stateCount := len(extracted.Structure.Nodes)
	code := make([]byte, 0, 8+stateCount*2+len(transitions)*2)
	code = binary.LittleEndian.AppendUint32(code, uint32(stateCount))
	code = binary.LittleEndian.AppendUint32(code, uint32(len(transitions)))
	for i := 0; i < stateCount; i++ {
		accepting := byte(0)
		if i == stateCount-1 {
			accepting = 1
		}
		code = append(code, byte(i), accepting)
	}
	for _, t := range transitions {
		code = append(code, byte(t.from), byte(t.to))
	}

	return newModule(memory.ModuleFSM, code, extracted)
}

// CompileToDecisionTable lowers a pattern into a minimal decision-table
// representation: the node count as a little-endian u32.
func CompileToDecisionTable(extracted *ExtractedPattern) *memory.CompiledModule {
	code := binary.LittleEndian.AppendUint32(nil, uint32(len(extracted.Structure.Nodes)))
	return newModule(memory.ModuleDecisionTable, code, extracted)
}

func newModule(moduleType memory.ModuleType, code []byte, extracted *ExtractedPattern) *memory.CompiledModule {
	return &memory.CompiledModule{
		ID:          uuid.New(),
		ModuleType:  moduleType,
		Code:        code,
		Input:       extracted.Input,
		Output:      extracted.Output,
		Confidence:  extracted.Confidence,
		CreatedFrom: extracted.Structure.Nodes,
		Pattern:     extracted.Activation,
		CreatedAt:   time.Now(),
		Version:     1,
	}
}

// ExecuteModule runs a compiled module for a context. The byte code is
// provenance, not a program: execution returns the canned outcome the
// pattern always produced, at the module's confidence.
func ExecuteModule(m *memory.CompiledModule, _ *memory.ContextVector) memory.Outcome {
	switch m.ModuleType {
	case memory.ModuleFSM:
		return memory.Outcome{
			OutcomeType: memory.OutcomeSuccess,
			Result:      fmt.Sprintf("Executed FSM module %s", m.ID),
			Explanation: "Compiled module execution",
			Confidence:  m.Confidence,
		}
	case memory.ModuleDecisionTable:
		return memory.Outcome{
			OutcomeType: memory.OutcomeSuccess,
			Result:      fmt.Sprintf("Executed decision table module %s", m.ID),
			Explanation: "Compiled module execution",
			Confidence:  m.Confidence,
		}
	default:
		return memory.Outcome{
			OutcomeType: memory.OutcomePartial,
			Result:      "Module type not implemented",
			Confidence:  0.5,
		}
	}
}
