// Package linter mines execution traces for recurring structure: repeated
// paths, stable branch choices, invariant subgraphs and clustered outcomes.
// Patterns that clear the fossilization gates become candidates for byte
// compilation.
package linter

import (
	"github.com/google/uuid"

	"github.com/nidhogg/engram/internal/memory"
)

// Config holds the detection and candidate gates.
type Config struct {
	MinOccurrences     int     `json:"min_occurrences"`
	MinPathLength      int     `json:"min_path_length"`
	MinConfidence      float64 `json:"min_confidence"`
	MinBranchRatio     float64 `json:"min_branch_ratio"`
	MaxContextVariance float64 `json:"max_context_variance"`
	MinRewardCorr      float64 `json:"min_reward_correlation"`
	MinSpeedup         float64 `json:"min_speedup"`
}

// DefaultConfig returns the gates the engine ships with.
func DefaultConfig() Config {
	return Config{
		MinOccurrences:     5,
		MinPathLength:      3,
		MinConfidence:      0.7,
		MinBranchRatio:     0.8,
		MaxContextVariance: 0.3,
		MinRewardCorr:      0.7,
		MinSpeedup:         2.0,
	}
}

// PathPattern is a contiguous node sequence seen across many traces.
type PathPattern struct {
	Path              []uuid.UUID             `json:"path"`
	OccurrenceCount   int                     `json:"occurrence_count"`
	Contexts          []*memory.ContextVector `json:"contexts,omitempty"`
	AverageConfidence float64                 `json:"average_confidence"`
	SuccessRate       float64                 `json:"success_rate"`
}

// BranchPattern is a decision node that keeps picking the same branch.
type BranchPattern struct {
	DecisionNode      uuid.UUID               `json:"decision_node"`
	DominantBranch    uuid.UUID               `json:"dominant_branch"`
	BranchRatio       float64                 `json:"branch_ratio"`
	Contexts          []*memory.ContextVector `json:"contexts,omitempty"`
	AverageConfidence float64                 `json:"average_confidence"`
}

// SubgraphPattern is a full node sequence recurring across varied contexts.
type SubgraphPattern struct {
	Nodes             []uuid.UUID             `json:"nodes"`
	OccurrenceCount   int                     `json:"occurrence_count"`
	Contexts          []*memory.ContextVector `json:"contexts,omitempty"`
	AverageConfidence float64                 `json:"average_confidence"`
	ContextVariance   float64                 `json:"context_variance"`
}

// OutcomePattern clusters results by outcome type.
type OutcomePattern struct {
	OutcomeType       memory.OutcomeType `json:"outcome_type"`
	OccurrenceCount   int                `json:"occurrence_count"`
	AverageConfidence float64            `json:"average_confidence"`
	SuccessRate       float64            `json:"success_rate"`
}

// PatternType names the detector a candidate came from.
type PatternType string

const (
	PatternPath   PatternType = "path"
	PatternBranch PatternType = "branch"
)

// Candidate is a pattern that cleared every fossilization gate, ranked by
// priority.
type Candidate struct {
	PatternType       PatternType `json:"pattern_type"`
	PatternID         uuid.UUID   `json:"pattern_id"`
	RepetitionCount   int         `json:"repetition_count"`
	AverageConfidence float64     `json:"average_confidence"`
	ContextVariance   float64     `json:"context_variance"`
	RewardCorrelation float64     `json:"reward_correlation"`
	EstimatedSpeedup  float64     `json:"estimated_speedup"`
	Priority          float64     `json:"priority"`

	// Source carries the matched pattern so the fossilizer can extract
	// structure without re-running detection.
	SourcePath   *PathPattern   `json:"-"`
	SourceBranch *BranchPattern `json:"-"`
}

// Report is the full output of one lint run.
type Report struct {
	RepeatedPaths      []PathPattern     `json:"repeated_paths"`
	StableBranches     []BranchPattern   `json:"stable_branches"`
	InvariantSubgraphs []SubgraphPattern `json:"invariant_subgraphs"`
	OutcomeClusters    []OutcomePattern  `json:"outcome_clusters"`
	Candidates         []Candidate       `json:"candidates"`
}
