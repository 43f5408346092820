package models

import "strings"

// Turn is one entry of an agent conversation history.
type Turn struct {
	Role    string `json:"role"` // "user", "assistant", "tool"
	Content string `json:"content"`
}

// AgentState holds the mutable state of one in-flight reasoning run.
// It is owned by exactly one evaluation of one question and is never
// shared across questions or workers.
type AgentState struct {
	Question          Question
	History           []Turn
	RetrievedArticles map[string]bool
	Iterations        int
}

// NewAgentState creates a fresh state for a single question.
func NewAgentState(q Question) *AgentState {
	return &AgentState{
		Question:          q,
		History:           make([]Turn, 0, 8),
		RetrievedArticles: make(map[string]bool),
	}
}

// Append adds a turn to the conversation history.
func (s *AgentState) Append(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
}

// MarkRetrieved records an article id and reports whether it was new.
// Already-seen articles must not contribute to the prompt context twice.
func (s *AgentState) MarkRetrieved(articleID string) bool {
	if s.RetrievedArticles[articleID] {
		return false
	}
	s.RetrievedArticles[articleID] = true
	return true
}

// HistoryText renders the conversation history for the forced-final prompt.
func (s *AgentState) HistoryText() string {
	var b strings.Builder
	for _, t := range s.History {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// AnalysisResult is the structured output of the reasoning agent for one
// question.
type AnalysisResult struct {
	SelectedChoice string   `json:"selected_choice"`
	Rationale      string   `json:"rationale"`
	CitedArticles  []string `json:"cited_articles"`
}

// AgentDecision is the structured response of one reasoning iteration:
// either a tool invocation or a terminal answer.
type AgentDecision struct {
	Action    string          `json:"action"` // "retrieve", "lookup", "answer"
	Query     string          `json:"query,omitempty"`
	LegalCode string          `json:"legal_code,omitempty"`
	K         int             `json:"k,omitempty"`
	ArticleID string          `json:"article_id,omitempty"`
	Answer    *AnalysisResult `json:"answer,omitempty"`
}

const (
	ActionRetrieve = "retrieve"
	ActionLookup   = "lookup"
	ActionAnswer   = "answer"
)

// ClassificationResult is the multi-label classifier output.
type ClassificationResult struct {
	Classifications []string `json:"classifications"`
	Reasoning       string   `json:"reasoning"`
}
