package fossil

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/linter"
	"github.com/nidhogg/engram/internal/memory"
)

func pathCandidate(t *testing.T, reps int, confidence float64) linter.Candidate {
	t.Helper()
	return linter.Candidate{
		PatternType:       linter.PatternPath,
		PatternID:         uuid.New(),
		RepetitionCount:   reps,
		AverageConfidence: confidence,
		ContextVariance:   0.1,
		RewardCorrelation: 0.9,
		EstimatedSpeedup:  2.5,
		Priority:          confidence,
		SourcePath: &linter.PathPattern{
			Path:              []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
			OccurrenceCount:   reps,
			AverageConfidence: confidence,
			SuccessRate:       0.9,
		},
	}
}

func TestSelectCandidatesGates(t *testing.T) {
	fz := New(DefaultConfig(), nil)
	report := &linter.Report{
		Candidates: []linter.Candidate{
			pathCandidate(t, 20, 0.85), // passes every gate
			pathCandidate(t, 8, 0.9),   // repetition below 10
			pathCandidate(t, 20, 0.75), // confidence below 0.8
		},
	}

	selected := fz.SelectCandidates(report)
	if len(selected) != 1 {
		t.Fatalf("selected = %d, want exactly 1", len(selected))
	}
	if selected[0].RepetitionCount != 20 || selected[0].AverageConfidence != 0.85 {
		t.Errorf("selected = %+v", selected[0])
	}
}

func TestSelectCandidatesTruncatesPerRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPerRun = 2
	fz := New(cfg, nil)

	report := &linter.Report{}
	for i := 0; i < 5; i++ {
		report.Candidates = append(report.Candidates, pathCandidate(t, 20, 0.85))
	}

	if got := len(fz.SelectCandidates(report)); got != 2 {
		t.Errorf("selected = %d, want cap of 2", got)
	}
}

func TestCompileToFSMByteLayout(t *testing.T) {
	nodes := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	extracted := &ExtractedPattern{
		PatternType: linter.PatternPath,
		Structure: PatternStructure{
			Nodes: nodes,
			Edges: []EdgePair{
				{From: nodes[0], To: nodes[1]},
				{From: nodes[1], To: nodes[2]},
			},
		},
		Confidence: 0.85,
	}

	m := CompileToFSM(extracted)

	if m.ModuleType != memory.ModuleFSM {
		t.Errorf("module type = %v", m.ModuleType)
	}
	if want := 8 + 3*2 + 2*2; len(m.Code) != want {
		t.Fatalf("code = %d bytes, want %d", len(m.Code), want)
	}
	if got := binary.LittleEndian.Uint32(m.Code[0:4]); got != 3 {
		t.Errorf("state count = %d, want 3", got)
	}
	if got := binary.LittleEndian.Uint32(m.Code[4:8]); got != 2 {
		t.Errorf("transition count = %d, want 2", got)
	}
	// States: (id, accepting) pairs; only the last state accepts.
	states := m.Code[8:14]
	for i := 0; i < 3; i++ {
		if states[i*2] != byte(i) {
			t.Errorf("state %d id = %d", i, states[i*2])
		}
		wantAccepting := byte(0)
		if i == 2 {
			wantAccepting = 1
		}
		if states[i*2+1] != wantAccepting {
			t.Errorf("state %d accepting = %d, want %d", i, states[i*2+1], wantAccepting)
		}
	}
	// Transitions: (from, to) pairs.
	if trans := m.Code[14:18]; trans[0] != 0 || trans[1] != 1 || trans[2] != 1 || trans[3] != 2 {
		t.Errorf("transitions = %v", trans)
	}
	if m.Confidence != 0.85 {
		t.Errorf("confidence = %v", m.Confidence)
	}
}

func TestCompileToDecisionTable(t *testing.T) {
	extracted := &ExtractedPattern{
		Structure:  PatternStructure{Nodes: []uuid.UUID{uuid.New(), uuid.New()}},
		Confidence: 0.9,
	}
	m := CompileToDecisionTable(extracted)
	if m.ModuleType != memory.ModuleDecisionTable {
		t.Errorf("module type = %v", m.ModuleType)
	}
	if got := binary.LittleEndian.Uint32(m.Code); got != 2 {
		t.Errorf("node count = %d, want 2", got)
	}
}

func TestFossilizeFromTraceCorpus(t *testing.T) {
	seq := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var traces []*execution.Trace
	var results []*execution.Result
	for i := 0; i < 20; i++ {
		traces = append(traces, &execution.Trace{
			ID:           uuid.New(),
			Context:      memory.GenerateContext(fmt.Sprintf("debug http error case %d", i), "web_development", 0.3),
			NodeSequence: seq,
			Timestamp:    time.Now(),
		})
		results = append(results, &execution.Result{
			Outcome:    memory.Outcome{OutcomeType: memory.OutcomeSuccess, Result: "ok", Confidence: 0.85},
			Trace:      seq,
			Confidence: 0.85,
		})
	}

	report := linter.New(linter.DefaultConfig(), nil).Run(linter.Input{Traces: traces, Results: results})
	modules := New(DefaultConfig(), nil).Fossilize(report, nil, traces)

	if len(modules) != 1 {
		t.Fatalf("modules = %d, want 1", len(modules))
	}
	m := modules[0]
	if len(m.Code) == 0 {
		t.Error("module code must not be empty")
	}
	if m.Confidence != 0.85 {
		t.Errorf("confidence = %v, want 0.85", m.Confidence)
	}
	if m.Pattern.ConfidenceThreshold != 0.6 {
		t.Errorf("activation threshold = %v, want the contexts' mean of 0.6", m.Pattern.ConfidenceThreshold)
	}
	hasHTTP := false
	for _, p := range m.Pattern.GoalPatterns {
		if p == "http" {
			hasHTTP = true
		}
	}
	if !hasHTTP {
		t.Errorf("goal patterns = %v, want http marker", m.Pattern.GoalPatterns)
	}
	if len(m.Pattern.DomainTags) != 1 || m.Pattern.DomainTags[0] != "web_development" {
		t.Errorf("domain tags = %v", m.Pattern.DomainTags)
	}
}

func TestExecuteModule(t *testing.T) {
	ctx := memory.GenerateContext("debug http", "web_development", 0)
	m := &memory.CompiledModule{ID: uuid.New(), ModuleType: memory.ModuleFSM, Confidence: 0.85}

	outcome := ExecuteModule(m, ctx)
	if outcome.OutcomeType != memory.OutcomeSuccess {
		t.Errorf("outcome = %v, want success", outcome.OutcomeType)
	}
	if outcome.Confidence != 0.85 {
		t.Errorf("confidence = %v, want module confidence", outcome.Confidence)
	}
	if !strings.Contains(outcome.Result, m.ID.String()) {
		t.Errorf("result = %q", outcome.Result)
	}

	m.ModuleType = memory.ModuleNativeCode
	if got := ExecuteModule(m, ctx); got.OutcomeType != memory.OutcomePartial {
		t.Errorf("unimplemented type outcome = %v, want partial", got.OutcomeType)
	}
}

func TestPathMatchesTrace(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	if !pathMatchesTrace([]uuid.UUID{a, c}, []uuid.UUID{a, b, c, d}) {
		t.Error("ordered subsequence must match")
	}
	if pathMatchesTrace([]uuid.UUID{c, a}, []uuid.UUID{a, b, c, d}) {
		t.Error("out-of-order path must not match")
	}
}
