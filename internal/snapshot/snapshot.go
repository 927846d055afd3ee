// Package snapshot persists memory graphs: a flat JSON form of the graph,
// atomic file storage, and a PostgreSQL store for snapshots and execution
// traces.
package snapshot

import (
	"time"

	"github.com/nidhogg/engram/internal/memory"

	"go.uber.org/zap"
)

// Snapshot is the serialized form of a memory graph. Maps keyed by struct
// keys flatten into slices; the activation index is rebuilt on restore rather
// than stored.
type Snapshot struct {
	Version       int                           `json:"version"`
	SavedAt       time.Time                     `json:"saved_at"`
	Fragments     []*memory.Fragment            `json:"fragments"`
	Edges         []*memory.Edge                `json:"edges"`
	Modules       []*memory.CompiledModule      `json:"modules,omitempty"`
	CoActivations []*memory.CoActivationPattern `json:"co_activations,omitempty"`
}

// Capture flattens the graph into its serialized form.
func Capture(g *memory.Graph) *Snapshot {
	snap := &Snapshot{
		Version:       g.Version,
		SavedAt:       time.Now(),
		Modules:       g.Modules,
		CoActivations: g.CoActivations,
	}
	for _, f := range g.Fragments {
		snap.Fragments = append(snap.Fragments, f)
	}
	for _, e := range g.Edges {
		snap.Edges = append(snap.Edges, e)
	}
	return snap
}

// Restore rebuilds a graph from a snapshot. Index entries are re-derived
// from fragment content, so an index that drifted before saving comes back
// clean.
func Restore(snap *Snapshot, logger *zap.Logger) *memory.Graph {
	g := memory.NewGraph(logger)
	g.Version = snap.Version
	for _, f := range snap.Fragments {
		g.InsertFragment(f, nil)
	}
	for _, e := range snap.Edges {
		g.Edges[e.Key()] = e
	}
	g.Modules = snap.Modules
	g.CoActivations = snap.CoActivations
	return g
}
