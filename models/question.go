package models

import (
	"regexp"
	"strings"
)

// Choice is one labeled answer option of a multiple-choice question.
type Choice struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is an immutable multiple-choice evaluation item.
type Question struct {
	ID      string   `json:"id"`
	Stem    string   `json:"stem"`
	Choices []Choice `json:"choices"`
	Domain  string   `json:"domain,omitempty"`
}

// Labels returns the choice labels in declaration order.
func (q Question) Labels() []string {
	labels := make([]string, 0, len(q.Choices))
	for _, c := range q.Choices {
		labels = append(labels, c.Label)
	}
	return labels
}

// HasLabel reports whether label is one of the question's choice labels.
func (q Question) HasLabel(label string) bool {
	for _, c := range q.Choices {
		if c.Label == label {
			return true
		}
	}
	return false
}

// ValidationVerdict is the outcome of the question validation stage.
type ValidationVerdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

// symbolOnlyChoice matches choice texts made of bare truth-value symbols
// (e.g. "○×○○", "OXXO", "o,x,o,x") with no descriptive statement.
var symbolOnlyChoice = regexp.MustCompile(`^[○×oxOX\s,.\-()]+$`)

// CheckStructure performs the local, LLM-free validation gate. It rejects
// questions that are structurally malformed: missing stem, fewer than two
// choices, duplicate or empty labels, or choices that carry only symbol
// combinations without the statements they refer to.
func (q Question) CheckStructure() ValidationVerdict {
	if strings.TrimSpace(q.Stem) == "" {
		return ValidationVerdict{IsValid: false, Reason: "question stem is empty"}
	}
	if len(q.Choices) < 2 {
		return ValidationVerdict{IsValid: false, Reason: "question has fewer than two choices"}
	}
	seen := make(map[string]bool, len(q.Choices))
	for _, c := range q.Choices {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			return ValidationVerdict{IsValid: false, Reason: "choice with empty label"}
		}
		if seen[label] {
			return ValidationVerdict{IsValid: false, Reason: "duplicate choice label: " + label}
		}
		seen[label] = true

		text := strings.TrimSpace(c.Text)
		if text == "" {
			return ValidationVerdict{IsValid: false, Reason: "choice " + label + " has no description"}
		}
		if symbolOnlyChoice.MatchString(text) {
			return ValidationVerdict{IsValid: false, Reason: "choice " + label + " is a bare symbol combination without statements"}
		}
	}
	return ValidationVerdict{IsValid: true}
}
