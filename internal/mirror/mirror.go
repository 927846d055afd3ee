// Package mirror exports the in-process memory graph into Neo4j for offline
// inspection. The export is write-only: the engine never reads the mirror
// back, so a lost mirror costs nothing but visualization.
package mirror

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/engram/internal/memory"
)

// Mirror writes memory graphs to a Neo4j instance.
type Mirror struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// New creates a Mirror backed by a Neo4j driver.
func New(uri, user, password string, logger *zap.Logger) (*Mirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Mirror{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// Export upserts every fragment and edge of the graph for one agent.
// Fragments merge on id, so repeated exports refresh weights in place.
func (m *Mirror) Export(ctx context.Context, agentID string, g *memory.Graph) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, f := range g.Fragments {
		_, err := session.Run(ctx,
			`MERGE (f:Fragment {id: $id})
			 SET f.agent_id = $agentId,
			     f.kind = $kind,
			     f.confidence = $confidence,
			     f.salience = $salience,
			     f.emotional_tag = $emotionalTag,
			     f.reinforcement_count = $reinforcementCount,
			     f.created_at = datetime($createdAt)`,
			map[string]interface{}{
				"id":                 f.ID.String(),
				"agentId":            agentID,
				"kind":               string(f.Content.Kind()),
				"confidence":         f.Confidence,
				"salience":           f.Salience,
				"emotionalTag":       f.EmotionalTag,
				"reinforcementCount": f.ReinforcementCount,
				"createdAt":          f.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			})
		if err != nil {
			return fmt.Errorf("export fragment %s: %w", f.ID, err)
		}
	}

	for _, e := range g.Edges {
		_, err := session.Run(ctx,
			`MATCH (a:Fragment {id: $from}), (b:Fragment {id: $to})
			 MERGE (a)-[r:LINKS {edge_type: $edgeType}]->(b)
			 SET r.strength = $strength`,
			map[string]interface{}{
				"from":     e.From.String(),
				"to":       e.To.String(),
				"edgeType": string(e.EdgeType),
				"strength": e.Strength,
			})
		if err != nil {
			return fmt.Errorf("export edge %s->%s: %w", e.From, e.To, err)
		}
	}

	m.logger.Info("graph mirrored",
		zap.String("agent_id", agentID),
		zap.Int("fragments", len(g.Fragments)),
		zap.Int("edges", len(g.Edges)))
	return nil
}

// ExportModules upserts the agent's compiled modules as their own node kind,
// linked to the fragments they were fossilized from.
func (m *Mirror) ExportModules(ctx context.Context, agentID string, g *memory.Graph) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, mod := range g.Modules {
		_, err := session.Run(ctx,
			`MERGE (m:Module {id: $id})
			 SET m.agent_id = $agentId,
			     m.module_type = $moduleType,
			     m.confidence = $confidence,
			     m.usage_count = $usageCount,
			     m.code_bytes = $codeBytes`,
			map[string]interface{}{
				"id":         mod.ID.String(),
				"agentId":    agentID,
				"moduleType": string(mod.ModuleType),
				"confidence": mod.Confidence,
				"usageCount": mod.UsageCount,
				"codeBytes":  len(mod.Code),
			})
		if err != nil {
			return fmt.Errorf("export module %s: %w", mod.ID, err)
		}

		for _, src := range mod.CreatedFrom {
			_, err := session.Run(ctx,
				`MATCH (m:Module {id: $module}), (f:Fragment {id: $fragment})
				 MERGE (m)-[:FOSSILIZED_FROM]->(f)`,
				map[string]interface{}{
					"module":   mod.ID.String(),
					"fragment": src.String(),
				})
			if err != nil {
				return fmt.Errorf("link module %s: %w", mod.ID, err)
			}
		}
	}
	return nil
}
