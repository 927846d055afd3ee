package memory

import (
	"fmt"
	"testing"
	"time"
)

func TestExtractGoalPatterns(t *testing.T) {
	patterns := ExtractGoalPatterns("debug HTTP 404 error")
	want := map[string]bool{
		"debug": false, "http": false, "http_call": false,
		"404": false, "404_error": false, "error": false,
		"debug http 404 error": false,
	}
	for _, p := range patterns {
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("missing pattern %q in %v", p, patterns)
		}
	}
}

func TestActivateDebugScenario(t *testing.T) {
	g := newTestGraph(t)

	strategy := insertStrategy(t, g, "debug http 404 error", 0.9)
	rule := NewFragment(CausalRule{Condition: "404_error", Outcome: "check the endpoint path", Confidence: 0.8}, 0.8, 0.6, 0.4)
	g.InsertFragment(rule, []*Edge{
		{From: strategy.ID, To: rule.ID, EdgeType: EdgeCausal, Strength: 0.7, CreatedAt: time.Now(), DecayRate: 0.001},
	})
	weak := insertStrategy(t, g, "debug http timeouts", 0.3)

	ctx := GenerateContext("debug HTTP 404 error", "web_development", 0.6)
	activated := g.ActivateFragments(ctx)

	if _, ok := activated[strategy.ID]; !ok {
		t.Error("goal-matching strategy not activated")
	}
	if _, ok := activated[rule.ID]; !ok {
		t.Error("edge-linked rule not activated")
	}
	if _, ok := activated[weak.ID]; ok {
		t.Error("fragment below confidence threshold was activated")
	}
	if g.Fragments[strategy.ID].LastActivated.IsZero() {
		t.Error("activation must touch last-activated")
	}
	if len(g.Fragments[strategy.ID].ActivationHistory) != 1 {
		t.Errorf("history = %d entries, want 1", len(g.Fragments[strategy.ID].ActivationHistory))
	}
}

func TestActivateRespectsMaxFragments(t *testing.T) {
	g := newTestGraph(t)
	for i := 0; i < 30; i++ {
		insertStrategy(t, g, fmt.Sprintf("debug http case %d", i), 0.9)
	}

	ctx := GenerateContext("debug http", "web", 0.5)
	activated := g.ActivateFragments(ctx)

	if len(activated) > ctx.MaxFragments {
		t.Errorf("activated %d fragments, cap is %d", len(activated), ctx.MaxFragments)
	}
	if len(activated) == 0 {
		t.Error("expected some activation")
	}
}

func TestActivateEmptyGraph(t *testing.T) {
	g := newTestGraph(t)
	ctx := GenerateContext("debug http 404 error", "web_development", 0.5)
	if got := g.ActivateFragments(ctx); len(got) != 0 {
		t.Errorf("activated = %d, want 0", len(got))
	}
}

func TestActivateToleratesDanglingIndexEntries(t *testing.T) {
	g := newTestGraph(t)
	f := insertStrategy(t, g, "debug http 404 error", 0.9)
	// Simulate eviction without index scrubbing.
	delete(g.Fragments, f.ID)

	ctx := GenerateContext("debug HTTP 404 error", "web_development", 0.5)
	if got := g.ActivateFragments(ctx); len(got) != 0 {
		t.Errorf("activated = %d, want 0", len(got))
	}
}

func TestGenerateContextDefaults(t *testing.T) {
	ctx := GenerateContext("debug HTTP 404 error", "web_development", 0.6)
	if ctx.ConfidenceThreshold != 0.6 {
		t.Errorf("threshold = %v, want 0.6", ctx.ConfidenceThreshold)
	}
	if ctx.MaxFragments != 20 {
		t.Errorf("max fragments = %v, want 20", ctx.MaxFragments)
	}
	if ctx.Goal.GoalType != GoalDebug {
		t.Errorf("goal type = %v, want debug", ctx.Goal.GoalType)
	}
	if ctx.Goal.Parameters["error_code"] != "404" {
		t.Errorf("parameters = %v, want error_code 404", ctx.Goal.Parameters)
	}
	if _, ok := ctx.DomainHint.Tags["web_development"]; !ok {
		t.Errorf("domain tags = %v, want web_development", ctx.DomainHint.Tags)
	}
}
