package memory

import (
	"math"

	"go.uber.org/zap"
)

// Decay applies exponential time decay to every fragment and edge. elapsed
// is in seconds of simulated or wall time since the last sweep.
//
// Reinforced fragments are protected two ways: a confidence floor derived
// from the reinforcement count (capped near 0.95) and a saturating
// reduction of the effective decay rate. Unreinforced fragments decay at
// full rate and are evicted once salience drops below 0.01 and confidence
// below 0.1. Edges decay independently and are removed below strength 0.01.
func (g *Graph) Decay(elapsed float64) {
	var evicted []Fragment

	for id, f := range g.Fragments {
		if f.ReinforcementCount > 0 {
			floor := reinforcedConfidenceFloor(f.ReinforcementCount)
			reduction := math.Min(float64(f.ReinforcementCount)*0.99, 0.9999)
			rate := f.DecayRate * (1 - reduction)

			f.Salience = clamp01(f.Salience * math.Exp(-rate*elapsed))
			decayed := f.Confidence * math.Exp(-rate*0.1*elapsed)
			f.Confidence = clamp01(math.Max(decayed, floor))
			continue
		}

		f.Salience = clamp01(f.Salience * math.Exp(-f.DecayRate*elapsed))
		f.Confidence = clamp01(f.Confidence * math.Exp(-f.DecayRate*0.1*elapsed))

		if f.Salience < 0.01 && f.Confidence < 0.1 {
			evicted = append(evicted, *f)
			delete(g.Fragments, id)
		}
	}

	removedEdges := 0
	for key, edge := range g.Edges {
		edge.Strength *= math.Exp(-edge.DecayRate * elapsed)
		if edge.Strength < 0.01 {
			delete(g.Edges, key)
			removedEdges++
		}
	}

	if len(evicted) > 0 || removedEdges > 0 {
		g.logger.Debug("decay sweep",
			zap.Float64("elapsed", elapsed),
			zap.Int("evicted_fragments", len(evicted)),
			zap.Int("removed_edges", removedEdges))
	}
}

// reinforcedConfidenceFloor derives the minimum confidence a reinforced
// fragment may decay to. N successful reinforcements from a 0.5 baseline
// land at 0.5 + (N-1)*0.05 + 0.1, saturating at 0.95.
func reinforcedConfidenceFloor(count int) float64 {
	equivalent := math.Max(float64(count)-1, 0)
	expected := 0.5 + equivalent*0.05
	return math.Min(expected+0.1, 0.95)
}
