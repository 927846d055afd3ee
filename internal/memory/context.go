package memory

import (
	"strings"

	"github.com/google/uuid"
)

// GoalType is a coarse classification of what the caller wants.
type GoalType string

const (
	GoalDebug   GoalType = "debug"
	GoalCreate  GoalType = "create"
	GoalLearn   GoalType = "learn"
	GoalExplain GoalType = "explain"
	GoalPredict GoalType = "predict"
)

// GoalSpec describes the goal driving a query.
type GoalSpec struct {
	Description string            `json:"description"`
	GoalType    GoalType          `json:"goal_type"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Priority    float64           `json:"priority"`
}

// AttentionWindow narrows what the query cares about.
type AttentionWindow struct {
	FocusEntities  map[string]struct{} `json:"-"`
	FocusDomains   map[string]struct{} `json:"-"`
	FocusRelations map[string]struct{} `json:"-"`
}

// EmotionalState biases activation scoring.
type EmotionalState struct {
	Frustration  float64 `json:"frustration"`
	Curiosity    float64 `json:"curiosity"`
	Confidence   float64 `json:"confidence"`
	Urgency      float64 `json:"urgency"`
	Satisfaction float64 `json:"satisfaction"`
}

// DomainPattern names the domain the query runs in.
type DomainPattern struct {
	Domain    string              `json:"domain"`
	Subdomain string              `json:"subdomain,omitempty"`
	Tags      map[string]struct{} `json:"-"`
}

// ContextVector is the ephemeral per-query input to compilation. It is
// produced outside the engine and never stored in the graph.
type ContextVector struct {
	Goal                GoalSpec
	Attention           AttentionWindow
	EmotionalBias       EmotionalState
	RecentActivations   []uuid.UUID
	TimePressure        float64
	DomainHint          DomainPattern
	ConfidenceThreshold float64
	MaxFragments        int
}

// GenerateContext builds a ContextVector from a goal sentence, a domain name
// and a time pressure in [0,1]. Thresholds match the defaults the rest of
// the pipeline is tuned for.
func GenerateContext(goal, domain string, timePressure float64) *ContextVector {
	return &ContextVector{
		Goal: GoalSpec{
			Description: goal,
			GoalType:    inferGoalType(goal),
			Parameters:  extractGoalParameters(goal),
			Priority:    0.8,
		},
		Attention: AttentionWindow{
			FocusEntities: extractEntities(goal),
			FocusDomains:  map[string]struct{}{domain: {}},
		},
		EmotionalBias: EmotionalState{
			Frustration: 0.4,
			Curiosity:   0.6,
			Confidence:  0.5,
			Urgency:     timePressure,
		},
		TimePressure: timePressure,
		DomainHint: DomainPattern{
			Domain: domain,
			Tags:   extractDomainTags(domain),
		},
		ConfidenceThreshold: 0.6,
		MaxFragments:        20,
	}
}

func inferGoalType(goal string) GoalType {
	lower := strings.ToLower(goal)
	switch {
	case strings.Contains(lower, "debug") || strings.Contains(lower, "fix"):
		return GoalDebug
	case strings.Contains(lower, "create") || strings.Contains(lower, "build"):
		return GoalCreate
	case strings.Contains(lower, "learn") || strings.Contains(lower, "understand"):
		return GoalLearn
	case strings.Contains(lower, "explain"):
		return GoalExplain
	case strings.Contains(lower, "predict"):
		return GoalPredict
	default:
		return GoalDebug
	}
}

func extractGoalParameters(goal string) map[string]string {
	params := make(map[string]string)
	lower := strings.ToLower(goal)
	if strings.Contains(lower, "404") {
		params["error_code"] = "404"
	}
	if strings.Contains(lower, "http") {
		params["protocol"] = "HTTP"
	}
	return params
}

func extractEntities(goal string) map[string]struct{} {
	entities := make(map[string]struct{})
	for _, word := range strings.Fields(goal) {
		clean := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
			return !isAlphanumeric(r)
		}))
		switch clean {
		case "http", "api", "url", "server", "error", "code":
			entities[clean] = struct{}{}
		}
	}
	return entities
}

func extractDomainTags(domain string) map[string]struct{} {
	tags := make(map[string]struct{})
	lower := strings.ToLower(domain)
	if strings.Contains(lower, "web") {
		tags["web_development"] = struct{}{}
	}
	if strings.Contains(lower, "http") {
		tags["http"] = struct{}{}
	}
	if strings.Contains(lower, "api") {
		tags["api"] = struct{}{}
	}
	tags[lower] = struct{}{}
	return tags
}

func isAlphanumeric(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}
