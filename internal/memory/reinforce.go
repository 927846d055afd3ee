package memory

import (
	"time"

	"github.com/google/uuid"
)

// ReinforceFragment adjusts a fragment and its touching edges based on an
// execution outcome. Success raises confidence by 0.1 and bumps the
// reinforcement count; failure lowers confidence by 0.05; partial and
// uncertain outcomes change nothing. Confidence stays in [0,1] and the
// count only ever grows.
func (g *Graph) ReinforceFragment(id uuid.UUID, outcome *Outcome) {
	if f, ok := g.Fragments[id]; ok {
		switch outcome.OutcomeType {
		case OutcomeSuccess:
			f.Confidence = clamp01(f.Confidence + 0.1)
			f.ReinforcementCount++
		case OutcomeFailure:
			f.Confidence = clamp01(f.Confidence - 0.05)
		case OutcomePartial, OutcomeUncertain:
			// No adjustment.
		}
	}

	if outcome.OutcomeType != OutcomeSuccess {
		return
	}
	now := time.Now()
	for key, edge := range g.Edges {
		if key.From == id || key.To == id {
			edge.Strength = clamp01(edge.Strength + 0.05)
			edge.LastReinforced = now
		}
	}
}
