// Package dataset loads KMMLU-style multiple-choice question files.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"lawagent/models"
)

// choiceLabels is the fixed label order of a KMMLU record.
var choiceLabels = []string{"A", "B", "C", "D"}

// record is one JSONL line of a KMMLU Criminal-Law dataset export.
type record struct {
	Question string `json:"question"`
	A        string `json:"A"`
	B        string `json:"B"`
	C        string `json:"C"`
	D        string `json:"D"`
	Answer   int    `json:"answer"` // 1..4 => A..D
	Category string `json:"Category,omitempty"`
}

// Set is a loaded question set together with its answer key, keyed by
// question id. The key never travels with the Question handed to the
// reasoning pipeline.
type Set struct {
	Questions []models.Question
	AnswerKey map[string]string
}

// Load reads a JSONL dataset file. Question ids follow the q%03d
// convention of the batch manifests.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	set := &Set{AnswerKey: make(map[string]string)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		id := fmt.Sprintf("q%03d", len(set.Questions)+1)
		q := models.Question{
			ID:     id,
			Stem:   rec.Question,
			Domain: rec.Category,
			Choices: []models.Choice{
				{Label: "A", Text: rec.A},
				{Label: "B", Text: rec.B},
				{Label: "C", Text: rec.C},
				{Label: "D", Text: rec.D},
			},
		}
		set.Questions = append(set.Questions, q)
		if label, ok := AnswerLabel(rec.Answer); ok {
			set.AnswerKey[id] = label
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if len(set.Questions) == 0 {
		return nil, fmt.Errorf("dataset %s contains no questions", path)
	}
	return set, nil
}

// AnswerLabel converts a KMMLU numeric answer (1..4) to its choice label.
func AnswerLabel(answer int) (string, bool) {
	if answer < 1 || answer > len(choiceLabels) {
		return "", false
	}
	return choiceLabels[answer-1], true
}
