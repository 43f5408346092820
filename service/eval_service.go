package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"lawagent/batchapi"
	"lawagent/models"
	"lawagent/storage"
)

// Artifact keys inside the storage backend. Fixed names make every stage
// resumable: a restarted process picks up where the previous one stopped.
const (
	KeyInputManifest  = "input_batch.jsonl"
	KeyInputBatchID   = "input_id.txt"
	KeyOutputManifest = "output_batch.jsonl"
	KeyOutputBatchID  = "output_id.txt"
	KeyReport         = "report.json"
)

var (
	// ErrPollTimeout signals that the batch did not reach a terminal status
	// within the polling window. The caller force-scores with whatever
	// output exists.
	ErrPollTimeout = errors.New("batch polling timed out")

	// ErrNoBatch is returned when no submitted batch id is on record.
	ErrNoBatch = errors.New("no submitted batch on record")
)

// QuestionResolver resolves one question into an analysis or a placeholder.
// RouterService is the production implementation.
type QuestionResolver interface {
	Resolve(ctx context.Context, q models.Question) *Resolution
}

// BatchAPI is the remote bulk-inference surface used by the engine.
type BatchAPI interface {
	UploadFile(ctx context.Context, filename string, content []byte) (string, error)
	CreateBatch(ctx context.Context, inputFileID string) (*batchapi.Batch, error)
	GetBatch(ctx context.Context, batchID string) (*batchapi.Batch, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// EvalService drives a full evaluation run: build the input manifest
// through the question router, submit it as a batch, poll, download the
// output and score it against the answer key.
type EvalService struct {
	router QuestionResolver
	api    BatchAPI
	store  storage.Storage

	model        string
	workers      int
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// EvalOption configures an EvalService.
type EvalOption func(*EvalService)

// EvalWithWorkers sets the number of concurrent build workers.
func EvalWithWorkers(n int) EvalOption {
	return func(s *EvalService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// EvalWithPollInterval sets the delay between status polls.
func EvalWithPollInterval(d time.Duration) EvalOption {
	return func(s *EvalService) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// EvalWithPollTimeout sets the overall polling window.
func EvalWithPollTimeout(d time.Duration) EvalOption {
	return func(s *EvalService) {
		if d > 0 {
			s.pollTimeout = d
		}
	}
}

// NewEvalService creates the evaluation engine. model is the answering
// model named in every manifest line.
func NewEvalService(router QuestionResolver, api BatchAPI, store storage.Storage, model string, opts ...EvalOption) *EvalService {
	s := &EvalService{
		router:       router,
		api:          api,
		store:        store,
		model:        model,
		workers:      4,
		pollInterval: 30 * time.Second,
		pollTimeout:  10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build resolves every question through the router and writes the input
// manifest. Questions are processed by a worker pool; manifest order
// follows the input order regardless of completion order.
func (s *EvalService) Build(ctx context.Context, questions []models.Question) ([]models.InputRecord, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions to evaluate")
	}

	records := make([]models.InputRecord, len(questions))

	workers := s.workers
	if workers > len(questions) {
		workers = len(questions)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				q := questions[i]
				res := s.router.Resolve(ctx, q)
				records[i] = s.buildRecord(q, res)
			}
		}()
	}
	for i := range questions {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	data, err := encodeJSONL(records)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, KeyInputManifest, data); err != nil {
		return nil, fmt.Errorf("failed to persist input manifest: %w", err)
	}
	log.Printf("input manifest built: %d items", len(records))
	return records, nil
}

// buildRecord turns one resolution into a manifest line. Failure-handled
// questions still get a line so the batch covers the whole question set;
// they fall back to a knowledge-only context and are marked rejected so
// scoring counts them failed.
func (s *EvalService) buildRecord(q models.Question, res *Resolution) models.InputRecord {
	contextText := knowledgeOnlyContext
	rejected := false
	reason := ""
	if res.Resolved() {
		contextText = renderContext(res.Analysis)
	} else {
		rejected = true
		reason = res.FailureReason
		log.Printf("question %s: using knowledge-only context: %s", q.ID, reason)
	}

	return models.InputRecord{
		CustomID: q.ID,
		Method:   "POST",
		URL:      "/v1/responses",
		Body: models.RequestBody{
			Model:        s.model,
			Instructions: batchSystemPrompt,
			Input:        formatBatchInput(q, contextText),
			Temperature:  0,
		},
		Rejected:     rejected,
		RejectReason: reason,
	}
}

// renderContext formats an analysis for the answering model.
func renderContext(a *models.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("**Agent Answer:**\n")
	b.WriteString(a.SelectedChoice)
	b.WriteString("\n\n**Relevant Legal Provisions:**\n")
	if len(a.CitedArticles) == 0 {
		b.WriteString("- (none cited)\n")
	}
	for _, id := range a.CitedArticles {
		fmt.Fprintf(&b, "- %s\n", id)
	}
	b.WriteString("\n**Solution Points:**\n- ")
	b.WriteString(a.Rationale)
	b.WriteString("\n")
	return b.String()
}

// formatBatchInput renders the user portion of one manifest line.
func formatBatchInput(q models.Question, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nOptions:\n", q.Stem)
	for _, c := range q.Choices {
		fmt.Fprintf(&b, "%s) %s\n", c.Label, c.Text)
	}
	fmt.Fprintf(&b, "\nContext:\n%s\n\nAnswer:", contextText)
	return b.String()
}

// Submit uploads the persisted input manifest and creates the batch. The
// batch id is written to its marker key before returning so a crash after
// submission never loses the handle.
func (s *EvalService) Submit(ctx context.Context) (*models.BatchJob, error) {
	data, err := s.store.Get(ctx, KeyInputManifest)
	if err != nil {
		return nil, fmt.Errorf("input manifest missing, run build first: %w", err)
	}

	fileID, err := s.api.UploadFile(ctx, KeyInputManifest, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upload input manifest: %w", err)
	}
	batch, err := s.api.CreateBatch(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	if err := s.store.Put(ctx, KeyInputBatchID, []byte(batch.ID)); err != nil {
		return nil, fmt.Errorf("failed to persist batch id: %w", err)
	}

	log.Printf("batch submitted: %s (%s)", batch.ID, batch.Status)
	return &models.BatchJob{
		ID:          batch.ID,
		Status:      batch.Status,
		SubmittedAt: time.Now().UTC(),
		ItemCount:   countJSONLLines(data),
	}, nil
}

// SubmittedBatchID returns the batch id persisted by Submit.
func (s *EvalService) SubmittedBatchID(ctx context.Context) (string, error) {
	data, err := s.store.Get(ctx, KeyInputBatchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoBatch
		}
		return "", err
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", ErrNoBatch
	}
	return id, nil
}

// Status retrieves the current batch state from the provider.
func (s *EvalService) Status(ctx context.Context, batchID string) (*batchapi.Batch, error) {
	return s.api.GetBatch(ctx, batchID)
}

// Poll waits for the batch to reach a terminal status. It returns
// ErrPollTimeout when the window closes first; transient status errors are
// logged and the next tick retries.
func (s *EvalService) Poll(ctx context.Context, batchID string) (*batchapi.Batch, error) {
	deadline := time.Now().Add(s.pollTimeout)
	for {
		batch, err := s.api.GetBatch(ctx, batchID)
		if err != nil {
			log.Printf("batch %s: status poll failed: %v", batchID, err)
		} else {
			log.Printf("batch %s: status %s (%d/%d done)", batchID, batch.Status, batch.Completed, batch.Total)
			if batch.Status.Terminal() {
				return batch, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// Download fetches the output manifest of a completed batch and persists
// it, together with the output-side batch id marker.
func (s *EvalService) Download(ctx context.Context, batchID string) error {
	batch, err := s.api.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to retrieve batch: %w", err)
	}
	if batch.Status != models.BatchStatusCompleted {
		return fmt.Errorf("batch %s is not completed: %s", batchID, batch.Status)
	}
	if batch.OutputFileID == "" {
		return fmt.Errorf("batch %s has no output file", batchID)
	}

	data, err := s.api.DownloadFile(ctx, batch.OutputFileID)
	if err != nil {
		return fmt.Errorf("failed to download batch output: %w", err)
	}
	if err := s.store.Put(ctx, KeyOutputManifest, data); err != nil {
		return fmt.Errorf("failed to persist output manifest: %w", err)
	}
	if err := s.store.Put(ctx, KeyOutputBatchID, []byte(batchID)); err != nil {
		return fmt.Errorf("failed to persist output batch id: %w", err)
	}
	log.Printf("batch %s: output manifest downloaded", batchID)
	return nil
}

// VerifyBatchIDs reports whether the output manifest on disk came from the
// batch recorded at submission time. A mismatch means the score would mix
// runs.
func (s *EvalService) VerifyBatchIDs(ctx context.Context) (bool, error) {
	inputID, err := s.SubmittedBatchID(ctx)
	if err != nil {
		return false, err
	}
	data, err := s.store.Get(ctx, KeyOutputBatchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(string(data)) == inputID, nil
}

// responseText digs the answer text out of one Responses API output line.
func responseText(raw json.RawMessage) string {
	var body struct {
		Body struct {
			Output []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"output"`
		} `json:"body"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if len(body.Body.Output) == 0 || len(body.Body.Output[0].Content) == 0 {
		return ""
	}
	return strings.TrimSpace(body.Body.Output[0].Content[0].Text)
}

// Score compares the output manifest against the answer key and persists
// the report. Items work out to one of three outcomes:
//   - correct/wrong: the answering model produced a letter matching a label
//   - failed: the item was rejected at build time, the model answered
//     "IDK" or garbage, or no output line exists for it
//
// A missing output manifest is the force-score path: every item scores
// failed and the report still covers the full question set.
func (s *EvalService) Score(ctx context.Context, answerKey map[string]string) (*models.ScoreReport, error) {
	inputData, err := s.store.Get(ctx, KeyInputManifest)
	if err != nil {
		return nil, fmt.Errorf("input manifest missing: %w", err)
	}
	inputs, err := decodeInputManifest(inputData)
	if err != nil {
		return nil, err
	}

	answers := make(map[string]string)
	outputData, err := s.store.Get(ctx, KeyOutputManifest)
	switch {
	case err == nil:
		answers = decodeOutputAnswers(outputData)
	case errors.Is(err, storage.ErrNotFound):
		log.Printf("output manifest missing, force-scoring all items as failed")
	default:
		return nil, fmt.Errorf("failed to read output manifest: %w", err)
	}

	if match, err := s.VerifyBatchIDs(ctx); err == nil && !match {
		log.Printf("warning: output manifest does not match the submitted batch id")
	}

	batchID, err := s.SubmittedBatchID(ctx)
	if err != nil {
		batchID = ""
	}

	report := &models.ScoreReport{BatchID: batchID, GeneratedAt: time.Now().UTC()}
	for _, in := range inputs {
		expected := answerKey[in.CustomID]
		item := models.ItemScore{CustomID: in.CustomID, Expected: expected}

		switch {
		case in.Rejected:
			item.Outcome = models.OutcomeFailed
			item.Reason = in.RejectReason
		case expected == "":
			item.Outcome = models.OutcomeFailed
			item.Reason = "no expected answer in key"
		default:
			predicted, ok := answers[in.CustomID]
			if !ok {
				item.Outcome = models.OutcomeFailed
				item.Reason = "no batch output for item"
				break
			}
			item.Predicted = predicted
			if predicted == "" || predicted == "IDK" || !labelInKey(predicted) {
				item.Outcome = models.OutcomeFailed
				item.Reason = "model declined or produced no valid label"
				break
			}
			if predicted == expected {
				item.Outcome = models.OutcomeCorrect
			} else {
				item.Outcome = models.OutcomeWrong
			}
		}
		report.Add(item)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := s.store.Put(ctx, KeyReport, data); err != nil {
		return nil, fmt.Errorf("failed to persist report: %w", err)
	}

	log.Printf("score: %d total, %d correct, %d wrong, %d failed, accuracy %.2f%%",
		report.Total, report.Correct, report.Wrong, report.Failed, report.Accuracy*100)
	return report, nil
}

// Report returns the last persisted score report.
func (s *EvalService) Report(ctx context.Context) (*models.ScoreReport, error) {
	data, err := s.store.Get(ctx, KeyReport)
	if err != nil {
		return nil, err
	}
	var report models.ScoreReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// labelInKey reports whether s is a single-choice label form (A-D).
func labelInKey(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'D'
}

// encodeJSONL marshals records as one JSON object per line.
func encodeJSONL(records []models.InputRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("failed to encode manifest line: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// decodeInputManifest parses the input manifest back into records.
func decodeInputManifest(data []byte) ([]models.InputRecord, error) {
	var records []models.InputRecord
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec models.InputRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("input manifest line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan input manifest: %w", err)
	}
	return records, nil
}

// decodeOutputAnswers parses the output manifest into custom_id to answer
// text. Malformed lines contribute empty answers rather than aborting the
// whole score.
func decodeOutputAnswers(data []byte) map[string]string {
	answers := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec models.OutputRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			log.Printf("skipping malformed output line: %v", err)
			continue
		}
		if rec.CustomID == "" {
			continue
		}
		if len(rec.Error) > 0 && string(rec.Error) != "null" {
			answers[rec.CustomID] = ""
			continue
		}
		answers[rec.CustomID] = responseText(rec.Response)
	}
	return answers
}

// countJSONLLines counts non-empty lines of a JSONL payload.
func countJSONLLines(data []byte) int {
	n := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n
}
