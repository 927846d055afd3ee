package compiler

import (
	"testing"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/memory"
)

func debugGraph(t *testing.T) *memory.Graph {
	t.Helper()
	g := memory.NewGraph(nil)
	g.InsertFragment(memory.NewFragment(memory.GoalStrategy{
		Goal:        "debug http 404 error",
		Strategy:    "check the requested url",
		SuccessRate: 0.9,
	}, 0.9, 0.6, 0.4), nil)
	g.InsertFragment(memory.NewFragment(memory.CausalRule{
		Condition:  "404_error",
		Outcome:    "verify the endpoint path",
		Confidence: 0.85,
	}, 0.85, 0.6, 0.4), nil)
	g.InsertFragment(memory.NewFragment(memory.CausalRule{
		Condition:  "http_call",
		Outcome:    "inspect response status",
		Confidence: 0.7,
	}, 0.7, 0.5, 0.3), nil)
	return g
}

func TestCompileEmptyGraph(t *testing.T) {
	c := New(nil)
	g := memory.NewGraph(nil)
	ctx := memory.GenerateContext("debug http 404 error", "web_development", 0.5)

	eeg := c.CompileThought(ctx, g)

	if len(eeg.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1", len(eeg.Nodes))
	}
	node := eeg.Nodes[eeg.Entry]
	gap, ok := node.Content.(GapFill)
	if !ok {
		t.Fatalf("content = %T, want GapFill", node.Content)
	}
	if gap.Description != "No relevant memory" {
		t.Errorf("description = %q", gap.Description)
	}
	if eeg.Metadata.Confidence != 0.3 {
		t.Errorf("confidence = %v, want 0.3", eeg.Metadata.Confidence)
	}
	if len(eeg.Exits) != 1 || eeg.Exits[0] != eeg.Entry {
		t.Errorf("single-node graph must be its own exit")
	}
}

func TestCompileDebugScenario(t *testing.T) {
	c := New(nil)
	g := debugGraph(t)
	ctx := memory.GenerateContext("debug http 404 error", "web_development", 0)

	eeg := c.CompileThought(ctx, g)

	if len(eeg.Nodes) < 3 {
		t.Fatalf("nodes = %d, want at least 3", len(eeg.Nodes))
	}
	if _, ok := eeg.Nodes[eeg.Entry]; !ok {
		t.Fatal("entry must reference an existing node")
	}

	decisions := 0
	fragments := 0
	for _, n := range eeg.Nodes {
		switch n.Content.(type) {
		case Decision:
			decisions++
		case FragmentRef:
			fragments++
		}
	}
	if fragments == 0 {
		t.Error("expected fragment nodes")
	}
	// Each causal rule gets a decision node.
	if decisions == 0 {
		t.Error("expected decision nodes after causal rules")
	}

	if len(eeg.Edges) != len(eeg.Nodes)-1 {
		t.Errorf("edges = %d, want %d for a sequential chain", len(eeg.Edges), len(eeg.Nodes)-1)
	}
	for _, e := range eeg.Edges {
		if e.EdgeType != memory.EdgeCausal {
			t.Errorf("edge type = %v, want causal", e.EdgeType)
		}
	}
}

func TestCompileOrdersByConfidence(t *testing.T) {
	c := New(nil)
	g := debugGraph(t)
	ctx := memory.GenerateContext("debug http 404 error", "web_development", 0)

	eeg := c.CompileThought(ctx, g)

	entry := eeg.Nodes[eeg.Entry]
	ref, ok := entry.Content.(FragmentRef)
	if !ok {
		t.Fatalf("entry content = %T, want FragmentRef", entry.Content)
	}
	if f := g.Fragments[ref.FragmentID]; f.Confidence < 0.89 {
		t.Errorf("entry confidence = %v, want the strongest fragment first", f.Confidence)
	}
}

func TestCompileTimePressurePrunesHarder(t *testing.T) {
	c := New(nil)

	relaxed := c.CompileThought(memory.GenerateContext("debug http 404 error", "web_development", 0), debugGraph(t))
	urgent := c.CompileThought(memory.GenerateContext("debug http 404 error", "web_development", 1), debugGraph(t))

	if len(urgent.Nodes) > len(relaxed.Nodes) {
		t.Errorf("urgent graph has %d nodes, relaxed %d; pressure must prune", len(urgent.Nodes), len(relaxed.Nodes))
	}
	// At pressure 1 the threshold is 0.8: the 0.7-confidence rule must go.
	for _, n := range urgent.Nodes {
		if n.Confidence < 0.8 {
			t.Errorf("node with confidence %v survived pressure pruning", n.Confidence)
		}
	}
}

func TestCompileModuleFastPath(t *testing.T) {
	c := New(nil)
	g := debugGraph(t)
	module := &memory.CompiledModule{
		ID:         uuid.New(),
		ModuleType: memory.ModuleFSM,
		Code:       []byte{1, 2, 3},
		Confidence: 0.85,
		Pattern: memory.ContextPattern{
			GoalPatterns:        []string{"404"},
			DomainTags:          []string{"web_development"},
			ConfidenceThreshold: 0.5,
		},
	}
	g.AddModule(module)

	ctx := memory.GenerateContext("debug http 404 error", "web_development", 0)
	eeg := c.CompileThought(ctx, g)

	if len(eeg.Nodes) != 1 {
		t.Fatalf("nodes = %d, want 1 from module fast path", len(eeg.Nodes))
	}
	action, ok := eeg.Nodes[eeg.Entry].Content.(Action)
	if !ok {
		t.Fatalf("content = %T, want Action", eeg.Nodes[eeg.Entry].Content)
	}
	if action.Parameters["module_id"] != module.ID.String() {
		t.Errorf("parameters = %v", action.Parameters)
	}
	if eeg.Metadata.Confidence != 0.85 {
		t.Errorf("confidence = %v, want module confidence", eeg.Metadata.Confidence)
	}
}

func TestFindApplicableModule(t *testing.T) {
	ctx := memory.GenerateContext("debug http 404 error", "web_development", 0)
	miss := &memory.CompiledModule{Pattern: memory.ContextPattern{GoalPatterns: []string{"timeout"}, ConfidenceThreshold: 0.5}}
	hit := &memory.CompiledModule{ID: uuid.New(), Pattern: memory.ContextPattern{GoalPatterns: []string{"404"}, ConfidenceThreshold: 0.5}}

	if got := FindApplicableModule(ctx, []*memory.CompiledModule{miss, hit}); got != hit {
		t.Errorf("got %+v, want the matching module", got)
	}
	if got := FindApplicableModule(ctx, nil); got != nil {
		t.Errorf("got %+v, want nil for empty registry", got)
	}
}
