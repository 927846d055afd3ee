package linter

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/execution"
	"github.com/nidhogg/engram/internal/memory"
)

func traceFor(t *testing.T, seq []uuid.UUID, goal string) *execution.Trace {
	t.Helper()
	return &execution.Trace{
		ID:           uuid.New(),
		Context:      memory.GenerateContext(goal, "web_development", 0.3),
		NodeSequence: seq,
		Timestamp:    time.Now(),
	}
}

func resultFor(t *testing.T, seq []uuid.UUID, outcome memory.OutcomeType, confidence float64) *execution.Result {
	t.Helper()
	return &execution.Result{
		Outcome:    memory.Outcome{OutcomeType: outcome, Result: "ok", Confidence: confidence},
		Trace:      seq,
		Confidence: confidence,
	}
}

func TestRunEmptyInput(t *testing.T) {
	report := New(DefaultConfig(), nil).Run(Input{})
	if len(report.RepeatedPaths) != 0 || len(report.StableBranches) != 0 ||
		len(report.InvariantSubgraphs) != 0 || len(report.OutcomeClusters) != 0 ||
		len(report.Candidates) != 0 {
		t.Errorf("empty input must produce an empty report: %+v", report)
	}
}

func TestDetectRepeatedPathsBelowThreshold(t *testing.T) {
	seq := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var input Input
	for i := 0; i < 4; i++ {
		input.Traces = append(input.Traces, traceFor(t, seq, "debug http 404 error"))
	}

	report := New(DefaultConfig(), nil).Run(input)
	if len(report.RepeatedPaths) != 0 {
		t.Errorf("4 occurrences are below the gate of 5, got %d patterns", len(report.RepeatedPaths))
	}
}

func TestRepeatedPathBecomesCandidate(t *testing.T) {
	seq := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var input Input
	// Distinct goals keep context variance at zero; twenty repetitions
	// clear the 2x speedup gate.
	for i := 0; i < 20; i++ {
		input.Traces = append(input.Traces, traceFor(t, seq, fmt.Sprintf("debug http error case %d", i)))
		input.Results = append(input.Results, resultFor(t, seq, memory.OutcomeSuccess, 0.8))
	}

	report := New(DefaultConfig(), nil).Run(input)

	if len(report.RepeatedPaths) != 1 {
		t.Fatalf("repeated paths = %d, want 1", len(report.RepeatedPaths))
	}
	p := report.RepeatedPaths[0]
	if p.OccurrenceCount != 20 {
		t.Errorf("occurrences = %d, want 20", p.OccurrenceCount)
	}
	if p.SuccessRate != 1.0 {
		t.Errorf("success rate = %v, want 1.0", p.SuccessRate)
	}

	if len(report.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(report.Candidates))
	}
	c := report.Candidates[0]
	if c.PatternType != PatternPath {
		t.Errorf("pattern type = %v", c.PatternType)
	}
	if c.EstimatedSpeedup != 2.0 {
		t.Errorf("speedup = %v, want 2.0", c.EstimatedSpeedup)
	}
	if c.Priority <= 0 || c.Priority > 1 {
		t.Errorf("priority = %v, want (0,1]", c.Priority)
	}
	if c.SourcePath == nil {
		t.Error("candidate must carry its source pattern")
	}
}

func TestIdenticalContextsBlockFossilization(t *testing.T) {
	seq := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var input Input
	// One shared goal across twenty traces pushes goal variance to 0.95,
	// far past the 0.3 gate.
	for i := 0; i < 20; i++ {
		input.Traces = append(input.Traces, traceFor(t, seq, "debug http 404 error"))
		input.Results = append(input.Results, resultFor(t, seq, memory.OutcomeSuccess, 0.8))
	}

	report := New(DefaultConfig(), nil).Run(input)
	if len(report.RepeatedPaths) != 1 {
		t.Fatalf("repeated paths = %d, want 1", len(report.RepeatedPaths))
	}
	if len(report.Candidates) != 0 {
		t.Errorf("candidates = %d, want 0 past the variance gate", len(report.Candidates))
	}
}

func TestDetectStableBranches(t *testing.T) {
	decision := uuid.New()
	dominant := uuid.New()
	other := uuid.New()

	var input Input
	for i := 0; i < 9; i++ {
		tr := traceFor(t, []uuid.UUID{decision, dominant}, fmt.Sprintf("goal %d", i))
		tr.BranchDecisions = map[uuid.UUID]uuid.UUID{decision: dominant}
		input.Traces = append(input.Traces, tr)
	}
	tr := traceFor(t, []uuid.UUID{decision, other}, "goal x")
	tr.BranchDecisions = map[uuid.UUID]uuid.UUID{decision: other}
	input.Traces = append(input.Traces, tr)

	report := New(DefaultConfig(), nil).Run(input)

	if len(report.StableBranches) != 1 {
		t.Fatalf("stable branches = %d, want 1", len(report.StableBranches))
	}
	b := report.StableBranches[0]
	if b.DominantBranch != dominant {
		t.Errorf("dominant = %v, want %v", b.DominantBranch, dominant)
	}
	if b.BranchRatio != 0.9 {
		t.Errorf("ratio = %v, want 0.9", b.BranchRatio)
	}
	if b.AverageConfidence != 0.8 {
		t.Errorf("confidence = %v, want the 0.8 default without joined graphs", b.AverageConfidence)
	}
}

func TestInvariantSubgraphs(t *testing.T) {
	seq := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var input Input
	for i := 0; i < 6; i++ {
		input.Traces = append(input.Traces, traceFor(t, seq, fmt.Sprintf("goal %d", i)))
	}

	report := New(DefaultConfig(), nil).Run(input)

	if len(report.InvariantSubgraphs) != 1 {
		t.Fatalf("invariant subgraphs = %d, want 1", len(report.InvariantSubgraphs))
	}
	s := report.InvariantSubgraphs[0]
	if s.OccurrenceCount != 6 {
		t.Errorf("occurrences = %d, want 6", s.OccurrenceCount)
	}
	if s.ContextVariance != 0 {
		t.Errorf("variance = %v, want 0 for all-distinct goals", s.ContextVariance)
	}
}

func TestOutcomeClusters(t *testing.T) {
	seq := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var input Input
	for i := 0; i < 6; i++ {
		input.Results = append(input.Results, resultFor(t, seq, memory.OutcomeSuccess, 0.9))
	}
	for i := 0; i < 2; i++ {
		input.Results = append(input.Results, resultFor(t, seq, memory.OutcomeFailure, 0.9))
	}

	report := New(DefaultConfig(), nil).Run(input)

	if len(report.OutcomeClusters) != 1 {
		t.Fatalf("clusters = %d, want success only", len(report.OutcomeClusters))
	}
	c := report.OutcomeClusters[0]
	if c.OutcomeType != memory.OutcomeSuccess || c.SuccessRate != 1.0 {
		t.Errorf("cluster = %+v", c)
	}
}

func TestTimeWindowFiltersOldTraces(t *testing.T) {
	seq := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var input Input
	for i := 0; i < 6; i++ {
		tr := traceFor(t, seq, fmt.Sprintf("goal %d", i))
		tr.Timestamp = time.Now().Add(-2 * time.Hour)
		input.Traces = append(input.Traces, tr)
	}
	input.TimeWindow = time.Hour

	report := New(DefaultConfig(), nil).Run(input)
	if len(report.RepeatedPaths) != 0 {
		t.Errorf("stale traces must be excluded, got %d patterns", len(report.RepeatedPaths))
	}
}

func TestContextVariance(t *testing.T) {
	same := []*memory.ContextVector{
		memory.GenerateContext("a", "d", 0),
		memory.GenerateContext("a", "d", 0),
	}
	if got := contextVariance(same); got != 0.5 {
		t.Errorf("variance = %v, want 0.5 for one distinct goal of two", got)
	}
	distinct := []*memory.ContextVector{
		memory.GenerateContext("a", "d", 0),
		memory.GenerateContext("b", "d", 0),
	}
	if got := contextVariance(distinct); got != 0 {
		t.Errorf("variance = %v, want 0 for all-distinct goals", got)
	}
	if got := contextVariance(nil); got != 0 {
		t.Errorf("variance = %v, want 0 for empty input", got)
	}
}
