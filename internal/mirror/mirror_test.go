//go:build integration

package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"

	"github.com/nidhogg/engram/internal/memory"
)

func startNeo4j(t *testing.T) *Mirror {
	t.Helper()
	ctx := context.Background()

	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	uri, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatalf("neo4j bolt url: %v", err)
	}

	m, err := New(uri, "", "", nil)
	if err != nil {
		t.Fatalf("create mirror: %v", err)
	}
	t.Cleanup(func() { m.Close(ctx) })

	if err := m.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return m
}

func countNodes(t *testing.T, m *Mirror, query string) int64 {
	t.Helper()
	ctx := context.Background()
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		t.Fatalf("count query: %v", err)
	}
	if !result.Next(ctx) {
		t.Fatal("count query returned no rows")
	}
	n, _ := result.Record().Get("n")
	return n.(int64)
}

func TestExportMirrorsGraph(t *testing.T) {
	m := startNeo4j(t)
	ctx := context.Background()

	g := memory.NewGraph(nil)
	rule := memory.NewFragment(memory.CausalRule{
		Condition:  "404_error",
		Outcome:    "verify endpoint",
		Confidence: 0.85,
	}, 0.85, 0.7, 0.2)
	strategy := memory.NewFragment(memory.GoalStrategy{
		Goal:     "debug http errors",
		Strategy: "check logs",
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

	if err := m.Export(ctx, "agent-1", g); err != nil {
		t.Fatalf("export: %v", err)
	}

	if n := countNodes(t, m, `MATCH (f:Fragment) RETURN count(f) AS n`); n != 2 {
		t.Errorf("fragments mirrored = %d, want 2", n)
	}
	if n := countNodes(t, m, `MATCH (:Fragment)-[r:LINKS]->(:Fragment) RETURN count(r) AS n`); n != 1 {
		t.Errorf("edges mirrored = %d, want 1", n)
	}

	// Re-export must update, not duplicate.
	rule.Confidence = 0.95
	if err := m.Export(ctx, "agent-1", g); err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if n := countNodes(t, m, `MATCH (f:Fragment) RETURN count(f) AS n`); n != 2 {
		t.Errorf("fragments after re-export = %d, want 2", n)
	}
}
