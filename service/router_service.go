package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"lawagent/models"
)

// RouterState names the stages of the question pipeline.
type RouterState string

const (
	StateValidate       RouterState = "VALIDATE"
	StateClassify       RouterState = "CLASSIFY"
	StateDelegate       RouterState = "DELEGATE"
	StateDone           RouterState = "DONE"
	StateFailureHandled RouterState = "FAILURE_HANDLED"
)

// Resolution is the single outcome the router produces for any question.
// Either Analysis is set (State DONE) or FailureReason explains the
// placeholder (State FAILURE_HANDLED). A question is never left without a
// resolution.
type Resolution struct {
	QuestionID      string
	State           RouterState
	Verdict         models.ValidationVerdict
	Classifications []models.ProblemType
	Analysis        *models.AnalysisResult
	FailureReason   string
}

// Resolved reports whether the question produced a usable analysis.
func (r *Resolution) Resolved() bool {
	return r.State == StateDone && r.Analysis != nil
}

// RouterService drives one question through validation, classification and
// delegation to the reasoning agent.
type RouterService struct {
	llm   LLMClient
	agent *AgentService
}

// NewRouterService creates the question router.
func NewRouterService(llm LLMClient, agent *AgentService) *RouterService {
	return &RouterService{llm: llm, agent: agent}
}

// formatChoices renders answer choices for the validation and
// classification prompts.
func formatChoices(q models.Question) string {
	var b strings.Builder
	for _, c := range q.Choices {
		fmt.Fprintf(&b, "%s. %s\n", c.Label, c.Text)
	}
	return b.String()
}

// Resolve runs the full pipeline for one question. It always returns a
// resolution; per-question failures become FAILURE_HANDLED placeholders
// and never propagate as errors.
func (s *RouterService) Resolve(ctx context.Context, q models.Question) *Resolution {
	res := &Resolution{QuestionID: q.ID, State: StateValidate}

	res.Verdict = s.validate(ctx, q)
	if !res.Verdict.IsValid {
		log.Printf("question %s: rejected: %s", q.ID, res.Verdict.Reason)
		res.State = StateFailureHandled
		res.FailureReason = res.Verdict.Reason
		return res
	}

	res.State = StateClassify
	res.Classifications = s.classify(ctx, q)

	res.State = StateDelegate
	analysis, err := s.delegate(ctx, q)
	if err != nil {
		log.Printf("question %s: delegation failed: %v", q.ID, err)
		res.State = StateFailureHandled
		res.FailureReason = err.Error()
		return res
	}

	res.State = StateDone
	res.Analysis = analysis
	return res
}

// validate combines the local structural gate with the LLM judgment. A
// failing LLM call degrades to valid: the structural gate already passed
// and a transient API error must not reject a well-formed question.
func (s *RouterService) validate(ctx context.Context, q models.Question) models.ValidationVerdict {
	if verdict := q.CheckStructure(); !verdict.IsValid {
		return verdict
	}

	user := fmt.Sprintf("#Instruction#\n%s\n\n#Answer Choices#\n%s", q.Stem, formatChoices(q))
	var verdict models.ValidationVerdict
	if err := s.llm.CompleteJSON(ctx, validationSystemPrompt, user, &verdict); err != nil {
		log.Printf("question %s: validation call failed, accepting structurally valid question: %v", q.ID, err)
		return models.ValidationVerdict{IsValid: true}
	}
	if !verdict.IsValid && verdict.Reason == "" {
		verdict.Reason = "question rejected by validator"
	}
	return verdict
}

// classify assigns problem types. Classification is advisory: any failure
// degrades to an empty label set instead of aborting the question.
func (s *RouterService) classify(ctx context.Context, q models.Question) []models.ProblemType {
	user := fmt.Sprintf("#Problem#\nQuestion:\n%s\n\nAnswer Choices:\n%s\nAnalyze the above problem and classify it into all applicable types, providing reasoning for your classification.",
		q.Stem, formatChoices(q))

	var result models.ClassificationResult
	if err := s.llm.CompleteJSON(ctx, classificationSystemPrompt, user, &result); err != nil {
		log.Printf("question %s: classification failed, continuing without labels: %v", q.ID, err)
		return nil
	}
	return models.NewProblemTypeSet(result.Classifications).Slice()
}

// delegate invokes the reasoning agent. A budget-exceeded signal triggers
// the forced-final path instead of propagating.
func (s *RouterService) delegate(ctx context.Context, q models.Question) (*models.AnalysisResult, error) {
	analysis, state, err := s.agent.Analyze(ctx, q)
	if err == nil {
		return analysis, nil
	}
	if errors.Is(err, ErrBudgetExceeded) {
		log.Printf("question %s: forcing final answer from %d history turns", q.ID, len(state.History))
		return s.agent.ForceFinal(ctx, state)
	}
	return nil, err
}
