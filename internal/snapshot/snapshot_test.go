package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/memory"
)

func seededGraph(t *testing.T) (*memory.Graph, uuid.UUID) {
	t.Helper()
	g := memory.NewGraph(nil)

	rule := memory.NewFragment(memory.CausalRule{
		Condition:  "404_error",
		Outcome:    "verify endpoint",
		Confidence: 0.85,
	}, 0.85, 0.7, 0.2)
	strategy := memory.NewFragment(memory.GoalStrategy{
		Goal:        "debug http errors",
		Strategy:    "check logs then endpoint",
		SuccessRate: 0.8,
	}, 0.9, 0.8, 0.1)

	g.InsertFragment(rule, nil)
	g.InsertFragment(strategy, []*memory.Edge{{
		From:           strategy.ID,
		To:             rule.ID,
		EdgeType:       memory.EdgeCausal,
		Strength:       0.8,
		LastReinforced: time.Now(),
		CreatedAt:      time.Now(),
		DecayRate:      0.001,
	}})
	g.AddModule(&memory.CompiledModule{
		ID:         uuid.New(),
		ModuleType: memory.ModuleFSM,
		Code:       []byte{1, 2, 3},
		Confidence: 0.9,
		CreatedAt:  time.Now(),
		Version:    1,
	})
	return g, rule.ID
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	g, ruleID := seededGraph(t)

	restored := Restore(Capture(g), nil)

	if len(restored.Fragments) != 2 {
		t.Fatalf("fragments = %d, want 2", len(restored.Fragments))
	}
	if len(restored.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(restored.Edges))
	}
	if len(restored.Modules) != 1 {
		t.Fatalf("modules = %d, want 1", len(restored.Modules))
	}
	f, ok := restored.Fragments[ruleID]
	if !ok {
		t.Fatal("rule fragment missing after restore")
	}
	rule, ok := f.Content.(memory.CausalRule)
	if !ok {
		t.Fatalf("content = %T, want CausalRule", f.Content)
	}
	if rule.Condition != "404_error" {
		t.Errorf("condition = %q", rule.Condition)
	}
}

func TestRestoreRebuildsIndex(t *testing.T) {
	g, _ := seededGraph(t)

	restored := Restore(Capture(g), nil)

	ctx := memory.GenerateContext("debug the 404_error", "web_development", 0.3)
	active := restored.ActivateFragments(ctx)
	if len(active) == 0 {
		t.Fatal("restored graph must activate on indexed keywords")
	}
}

func TestFileRoundTrip(t *testing.T) {
	g, ruleID := seededGraph(t)
	path := filepath.Join(t.TempDir(), "nested", "memory.json")

	if err := SaveFile(path, g, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFile(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := loaded.Fragments[ruleID]; !ok {
		t.Error("rule fragment missing after file round trip")
	}
	if loaded.Stats().Edges != 1 {
		t.Errorf("edges = %d, want 1", loaded.Stats().Edges)
	}

	// No temp files may survive a successful save.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the snapshot", len(entries))
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"), nil); err == nil {
		t.Error("loading a missing snapshot must fail")
	}
}

func TestLoadFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path, nil); err == nil {
		t.Error("loading a corrupt snapshot must fail")
	}
}
