// Package execution walks compiled execution graphs, interprets the
// fragments they reference and emits reinforcement signals plus the traces
// the pattern linter mines.
package execution

import (
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/memory"
)

// SignalType classifies a reinforcement signal.
type SignalType string

const (
	SignalPositive SignalType = "positive"
	SignalNegative SignalType = "negative"
	SignalNeutral  SignalType = "neutral"
)

// ReinforcementSignal asks the memory layer to adjust one fragment.
type ReinforcementSignal struct {
	FragmentID uuid.UUID  `json:"fragment_id"`
	SignalType SignalType `json:"signal_type"`
	Strength   float64    `json:"strength"`
	Reason     string     `json:"reason"`
}

// Result is the full product of one graph walk.
type Result struct {
	Outcome         memory.Outcome          `json:"outcome"`
	Trace           []uuid.UUID             `json:"trace"`
	BranchDecisions map[uuid.UUID]uuid.UUID `json:"branch_decisions,omitempty"`
	Confidence      float64                 `json:"confidence"`
	TimeTaken       time.Duration           `json:"time_taken"`
	Signals         []ReinforcementSignal   `json:"signals,omitempty"`
}

// Trace is the record handed to the pattern linter. Timestamp equals the
// source graph's compile time so miners can join traces back to graphs.
type Trace struct {
	ID              uuid.UUID               `json:"id"`
	Context         *memory.ContextVector   `json:"context"`
	NodeSequence    []uuid.UUID             `json:"node_sequence"`
	BranchDecisions map[uuid.UUID]uuid.UUID `json:"branch_decisions,omitempty"`
	ExecutionTime   time.Duration           `json:"execution_time"`
	Timestamp       time.Time               `json:"timestamp"`
}
