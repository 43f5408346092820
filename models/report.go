package models

import "time"

// ItemOutcome is the scored result of a single question.
type ItemOutcome string

const (
	OutcomeCorrect ItemOutcome = "correct"
	OutcomeWrong   ItemOutcome = "wrong"
	OutcomeFailed  ItemOutcome = "failed"
)

// ItemScore records the outcome of one question for the report.
type ItemScore struct {
	CustomID  string      `json:"custom_id"`
	Outcome   ItemOutcome `json:"outcome"`
	Expected  string      `json:"expected"`
	Predicted string      `json:"predicted,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// ScoreReport aggregates the outcomes of one evaluation run. It is derived
// from the manifests and recomputed on each run, never mutated in place.
type ScoreReport struct {
	BatchID     string      `json:"batch_id"`
	Total       int         `json:"total"`
	Correct     int         `json:"correct"`
	Wrong       int         `json:"wrong"`
	Failed      int         `json:"failed"`
	Accuracy    float64     `json:"accuracy"`
	Items       []ItemScore `json:"items"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Add records one item outcome and updates the counters.
func (r *ScoreReport) Add(item ItemScore) {
	r.Items = append(r.Items, item)
	r.Total++
	switch item.Outcome {
	case OutcomeCorrect:
		r.Correct++
	case OutcomeWrong:
		r.Wrong++
	default:
		r.Failed++
	}
	if r.Total > 0 {
		r.Accuracy = float64(r.Correct) / float64(r.Total)
	}
}
