package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"lawagent/models"
	"lawagent/repository"
)

var (
	// ErrBudgetExceeded signals that the reasoning loop ran out of
	// iterations without emitting a terminal answer. The caller is expected
	// to invoke ForceFinal with the accumulated state.
	ErrBudgetExceeded = errors.New("reasoning iteration budget exceeded")

	// ErrInvalidAnswer signals that the forced-final step could not produce
	// a selected choice matching the question's labels.
	ErrInvalidAnswer = errors.New("agent selected a choice outside the question's labels")
)

const (
	defaultMaxIterations = 10
	defaultRetrieveK     = 3
	maxRetrieveK         = 5
)

// LLMClient produces a structured JSON completion.
type LLMClient interface {
	CompleteJSON(ctx context.Context, system, user string, out interface{}) error
}

// QueryEmbedder turns a retrieval query into an embedding vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, queryText string) ([]float64, error)
}

// ArticleIndex is the read side of the statute store.
type ArticleIndex interface {
	SearchByEmbedding(ctx context.Context, embedding []float64, legalCode string, limit int) ([]models.Article, error)
	GetByID(ctx context.Context, articleID string) (*models.Article, error)
}

// AgentService runs the bounded reasoning loop over the statute index.
// Each iteration asks the model for one decision: a tool invocation or a
// terminal answer. Tool results are appended to the conversation history
// and the loop repeats until an answer arrives or the budget runs out.
type AgentService struct {
	llm           LLMClient
	embedder      QueryEmbedder
	index         ArticleIndex
	maxIterations int
}

// AgentOption configures an AgentService.
type AgentOption func(*AgentService)

// AgentWithMaxIterations overrides the iteration budget.
func AgentWithMaxIterations(n int) AgentOption {
	return func(s *AgentService) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// NewAgentService creates the reasoning agent.
func NewAgentService(llm LLMClient, embedder QueryEmbedder, index ArticleIndex, opts ...AgentOption) *AgentService {
	s := &AgentService{
		llm:           llm,
		embedder:      embedder,
		index:         index,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// formatQuestion renders a question and its choices for the agent.
func formatQuestion(q models.Question) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(q.Stem)
	b.WriteString("\n\nOptions:\n")
	for _, c := range q.Choices {
		fmt.Fprintf(&b, "%s. %s\n", c.Label, c.Text)
	}
	return b.String()
}

// Analyze runs the tool loop for one question. On success it returns the
// terminal answer together with the final state. When the budget runs out
// it returns ErrBudgetExceeded and the state accumulated so far, so the
// caller can still force a final answer from the history.
func (s *AgentService) Analyze(ctx context.Context, q models.Question) (*models.AnalysisResult, *models.AgentState, error) {
	state := models.NewAgentState(q)
	state.Append("user", formatQuestion(q))

	for state.Iterations < s.maxIterations {
		state.Iterations++

		var decision models.AgentDecision
		if err := s.llm.CompleteJSON(ctx, agentSystemPrompt, state.HistoryText(), &decision); err != nil {
			return nil, state, fmt.Errorf("reasoning call failed: %w", err)
		}

		switch decision.Action {
		case models.ActionAnswer:
			if decision.Answer == nil {
				state.Append("user", "The answer action requires an answer object. Provide one or use a tool.")
				continue
			}
			if !q.HasLabel(decision.Answer.SelectedChoice) {
				state.Append("assistant", fmt.Sprintf("answer: %s", decision.Answer.SelectedChoice))
				state.Append("user", fmt.Sprintf("selected_choice %q is not one of the choice labels %v. Answer again.",
					decision.Answer.SelectedChoice, q.Labels()))
				continue
			}
			return decision.Answer, state, nil

		case models.ActionRetrieve:
			state.Append("assistant", fmt.Sprintf("retrieve: query=%q legal_code=%q k=%d",
				decision.Query, decision.LegalCode, decision.K))
			state.Append("tool", s.runRetrieve(ctx, state, decision))

		case models.ActionLookup:
			state.Append("assistant", fmt.Sprintf("lookup: %s", decision.ArticleID))
			state.Append("tool", s.runLookup(ctx, state, decision.ArticleID))

		default:
			state.Append("user", fmt.Sprintf("Unknown action %q. Use retrieve, lookup or answer.", decision.Action))
		}
	}

	log.Printf("question %s: iteration budget exhausted after %d iterations", q.ID, state.Iterations)
	return nil, state, ErrBudgetExceeded
}

// runRetrieve executes a semantic search decision and renders the result
// as a tool observation. Tool failures degrade to an observation so the
// loop keeps going.
func (s *AgentService) runRetrieve(ctx context.Context, state *models.AgentState, d models.AgentDecision) string {
	if strings.TrimSpace(d.Query) == "" {
		return "retrieve error: empty query"
	}
	if d.LegalCode != "" && !models.IsSupportedLegalCode(d.LegalCode) {
		return fmt.Sprintf("retrieve error: unsupported legal code %q, use one of %s",
			d.LegalCode, strings.Join(models.SupportedLegalCodes, ", "))
	}
	k := d.K
	if k <= 0 {
		k = defaultRetrieveK
	}
	if k > maxRetrieveK {
		k = maxRetrieveK
	}

	embedding, err := s.embedder.EmbedQuery(ctx, d.Query)
	if err != nil {
		log.Printf("question %s: embedding failed: %v", state.Question.ID, err)
		return fmt.Sprintf("retrieve error: %v", err)
	}
	articles, err := s.index.SearchByEmbedding(ctx, embedding, d.LegalCode, k)
	if err != nil {
		log.Printf("question %s: retrieval failed: %v", state.Question.ID, err)
		return fmt.Sprintf("retrieve error: %v", err)
	}
	if len(articles) == 0 {
		return "retrieve: no matching provisions found"
	}

	var b strings.Builder
	fresh := 0
	for _, a := range articles {
		if !state.MarkRetrieved(a.ID) {
			continue
		}
		fresh++
		fmt.Fprintf(&b, "[%s] %s\n", a.ID, a.Text)
	}
	if fresh == 0 {
		return "retrieve: all matching provisions were already retrieved"
	}
	return b.String()
}

// runLookup executes an exact article lookup decision.
func (s *AgentService) runLookup(ctx context.Context, state *models.AgentState, articleID string) string {
	if strings.TrimSpace(articleID) == "" {
		return "lookup error: empty article id"
	}
	article, err := s.index.GetByID(ctx, articleID)
	if err != nil {
		if errors.Is(err, repository.ErrArticleNotFound) {
			return fmt.Sprintf("lookup: article %q not found", articleID)
		}
		log.Printf("question %s: lookup failed: %v", state.Question.ID, err)
		return fmt.Sprintf("lookup error: %v", err)
	}
	if !state.MarkRetrieved(article.ID) {
		return fmt.Sprintf("lookup: article %s was already retrieved", article.ID)
	}
	return fmt.Sprintf("[%s] %s", article.ID, article.Text)
}

// ForceFinal produces a best-effort answer from the accumulated history
// alone, with one retry when the first answer carries an invalid label.
// No tool calls are made.
func (s *AgentService) ForceFinal(ctx context.Context, state *models.AgentState) (*models.AnalysisResult, error) {
	user := "# History\n" + state.HistoryText()
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var result models.AnalysisResult
		if err := s.llm.CompleteJSON(ctx, forcedFinalSystemPrompt, user, &result); err != nil {
			lastErr = fmt.Errorf("forced-final call failed: %w", err)
			continue
		}
		if !state.Question.HasLabel(result.SelectedChoice) {
			lastErr = fmt.Errorf("%w: %q", ErrInvalidAnswer, result.SelectedChoice)
			continue
		}
		return &result, nil
	}
	return nil, lastErr
}
