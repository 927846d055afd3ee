package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ModuleType selects the byte-code representation of a compiled module.
type ModuleType string

const (
	ModuleFSM           ModuleType = "fsm"
	ModuleDecisionTable ModuleType = "decision_table"
	ModuleLookupTable   ModuleType = "lookup_table"
	ModuleNativeCode    ModuleType = "native_code"
)

// InputSignature describes what a compiled module expects from a context.
type InputSignature struct {
	Parameters          []string `json:"parameters,omitempty"`
	ContextRequirements []string `json:"context_requirements,omitempty"`
}

// OutputSignature describes what a compiled module produces.
type OutputSignature struct {
	ReturnType  string   `json:"return_type"`
	SideEffects []string `json:"side_effects,omitempty"`
}

// ContextPattern gates when a compiled module applies. Empty goal or domain
// lists match anything.
type ContextPattern struct {
	GoalPatterns        []string `json:"goal_patterns,omitempty"`
	DomainTags          []string `json:"domain_tags,omitempty"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

// MatchesContext reports whether a context falls inside the pattern: some
// goal pattern must be a substring of the goal (or the list empty), the
// context domain must be one of the tags (or the tag list empty), and the
// context must demand at least the pattern's confidence threshold.
func (p *ContextPattern) MatchesContext(ctx *ContextVector) bool {
	if len(p.GoalPatterns) > 0 {
		goal := strings.ToLower(ctx.Goal.Description)
		matched := false
		for _, pattern := range p.GoalPatterns {
			if strings.Contains(goal, strings.ToLower(pattern)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(p.DomainTags) > 0 {
		found := false
		for _, tag := range p.DomainTags {
			if strings.EqualFold(tag, ctx.DomainHint.Domain) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return ctx.ConfidenceThreshold >= p.ConfidenceThreshold
}

// CompiledModule is a fossilized reasoning pattern: a byte-coded routine
// with the provenance and applicability data needed to route contexts to it.
type CompiledModule struct {
	ID           uuid.UUID       `json:"id"`
	ModuleType   ModuleType      `json:"module_type"`
	Code         []byte          `json:"code"`
	Input        InputSignature  `json:"input"`
	Output       OutputSignature `json:"output"`
	Confidence   float64         `json:"confidence"`
	UsageCount   int             `json:"usage_count"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	LastUsed     time.Time       `json:"last_used"`
	CreatedFrom  []uuid.UUID     `json:"created_from,omitempty"`
	Pattern      ContextPattern  `json:"pattern"`
	CreatedAt    time.Time       `json:"created_at"`
	Version      int             `json:"version"`
}
