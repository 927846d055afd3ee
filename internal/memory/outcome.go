package memory

// OutcomeType classifies the result of executing a reasoning graph.
type OutcomeType string

const (
	OutcomeSuccess   OutcomeType = "success"
	OutcomeFailure   OutcomeType = "failure"
	OutcomePartial   OutcomeType = "partial"
	OutcomeUncertain OutcomeType = "uncertain"
)

// Outcome is the interpreted result of one execution step or run.
type Outcome struct {
	OutcomeType OutcomeType `json:"outcome_type"`
	Result      string      `json:"result"`
	Explanation string      `json:"explanation,omitempty"`
	Confidence  float64     `json:"confidence"`
}
