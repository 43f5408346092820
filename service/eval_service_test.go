package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"lawagent/batchapi"
	"lawagent/models"
	"lawagent/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver returns canned resolutions keyed by question id.
type fakeResolver struct {
	resolutions map[string]*Resolution
}

func (f *fakeResolver) Resolve(ctx context.Context, q models.Question) *Resolution {
	if res, ok := f.resolutions[q.ID]; ok {
		return res
	}
	return &Resolution{
		QuestionID: q.ID,
		State:      StateDone,
		Analysis:   &models.AnalysisResult{SelectedChoice: "A", Rationale: "default"},
	}
}

type fakeBatchAPI struct {
	uploadedName    string
	uploadedContent []byte
	created         bool
	statuses        []batchapi.Batch
	statusIdx       int
	statusErr       error
	outputContent   []byte
}

func (f *fakeBatchAPI) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	f.uploadedName = filename
	f.uploadedContent = content
	return "file-abc", nil
}

func (f *fakeBatchAPI) CreateBatch(ctx context.Context, inputFileID string) (*batchapi.Batch, error) {
	if inputFileID != "file-abc" {
		return nil, fmt.Errorf("unknown input file %s", inputFileID)
	}
	f.created = true
	return &batchapi.Batch{ID: "batch-123", Status: models.BatchStatusQueued}, nil
}

func (f *fakeBatchAPI) GetBatch(ctx context.Context, batchID string) (*batchapi.Batch, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return &batchapi.Batch{ID: batchID, Status: models.BatchStatusCompleted, OutputFileID: "file-out"}, nil
	}
	b := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	b.ID = batchID
	return &b, nil
}

func (f *fakeBatchAPI) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if fileID != "file-out" {
		return nil, fmt.Errorf("unknown file %s", fileID)
	}
	return f.outputContent, nil
}

func threeQuestions() []models.Question {
	qs := make([]models.Question, 3)
	for i := range qs {
		qs[i] = models.Question{
			ID:   fmt.Sprintf("q%03d", i+1),
			Stem: fmt.Sprintf("문제 %d", i+1),
			Choices: []models.Choice{
				{Label: "A", Text: "가"}, {Label: "B", Text: "나"},
				{Label: "C", Text: "다"}, {Label: "D", Text: "라"},
			},
		}
	}
	return qs
}

func newTestEval(t *testing.T, resolver QuestionResolver, api BatchAPI) (*EvalService, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewEvalService(resolver, api, store, "gpt-4o-mini",
		EvalWithWorkers(2),
		EvalWithPollInterval(time.Millisecond),
		EvalWithPollTimeout(50*time.Millisecond),
	)
	return svc, store
}

// outputLine builds one Responses API output manifest line.
func outputLine(customID, text string) string {
	return fmt.Sprintf(`{"custom_id":%q,"response":{"body":{"output":[{"content":[{"text":%q}]}]}}}`, customID, text)
}

func TestBuildCoversAllQuestionsInOrder(t *testing.T) {
	resolver := &fakeResolver{resolutions: map[string]*Resolution{
		"q002": {QuestionID: "q002", State: StateFailureHandled, FailureReason: "bare symbol choices"},
	}}
	svc, store := newTestEval(t, resolver, &fakeBatchAPI{})

	records, err := svc.Build(context.Background(), threeQuestions())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "q001", records[0].CustomID)
	assert.Equal(t, "q002", records[1].CustomID)
	assert.Equal(t, "q003", records[2].CustomID)

	assert.False(t, records[0].Rejected)
	assert.True(t, records[1].Rejected)
	assert.Equal(t, "bare symbol choices", records[1].RejectReason)
	assert.Contains(t, records[1].Body.Input, knowledgeOnlyContext)
	assert.Contains(t, records[0].Body.Input, "**Agent Answer:**")

	for _, r := range records {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/responses", r.URL)
		assert.Equal(t, "gpt-4o-mini", r.Body.Model)
		assert.Zero(t, r.Body.Temperature)
	}

	data, err := store.Get(context.Background(), KeyInputManifest)
	require.NoError(t, err)
	decoded, err := decodeInputManifest(data)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestSubmitPersistsBatchID(t *testing.T) {
	api := &fakeBatchAPI{}
	svc, store := newTestEval(t, &fakeResolver{}, api)

	_, err := svc.Build(context.Background(), threeQuestions())
	require.NoError(t, err)

	job, err := svc.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "batch-123", job.ID)
	assert.Equal(t, 3, job.ItemCount)
	assert.True(t, api.created)
	assert.Equal(t, KeyInputManifest, api.uploadedName)

	marker, err := store.Get(context.Background(), KeyInputBatchID)
	require.NoError(t, err)
	assert.Equal(t, "batch-123", string(marker))

	id, err := svc.SubmittedBatchID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "batch-123", id)
}

func TestSubmitWithoutBuildFails(t *testing.T) {
	svc, _ := newTestEval(t, &fakeResolver{}, &fakeBatchAPI{})
	_, err := svc.Submit(context.Background())
	assert.Error(t, err)
}

func TestSubmittedBatchIDMissing(t *testing.T) {
	svc, _ := newTestEval(t, &fakeResolver{}, &fakeBatchAPI{})
	_, err := svc.SubmittedBatchID(context.Background())
	assert.ErrorIs(t, err, ErrNoBatch)
}

func TestPollUntilTerminal(t *testing.T) {
	api := &fakeBatchAPI{statuses: []batchapi.Batch{
		{Status: models.BatchStatusQueued},
		{Status: models.BatchStatusInProgress},
		{Status: models.BatchStatusCompleted, OutputFileID: "file-out"},
	}}
	svc, _ := newTestEval(t, &fakeResolver{}, api)

	batch, err := svc.Poll(context.Background(), "batch-123")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
}

func TestPollTimeout(t *testing.T) {
	api := &fakeBatchAPI{statuses: []batchapi.Batch{{Status: models.BatchStatusInProgress}}}
	svc, _ := newTestEval(t, &fakeResolver{}, api)

	_, err := svc.Poll(context.Background(), "batch-123")
	assert.ErrorIs(t, err, ErrPollTimeout)
}

func TestDownloadPersistsOutput(t *testing.T) {
	api := &fakeBatchAPI{outputContent: []byte(outputLine("q001", "A") + "\n")}
	svc, store := newTestEval(t, &fakeResolver{}, api)

	require.NoError(t, svc.Download(context.Background(), "batch-123"))

	data, err := store.Get(context.Background(), KeyOutputManifest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "q001")

	marker, err := store.Get(context.Background(), KeyOutputBatchID)
	require.NoError(t, err)
	assert.Equal(t, "batch-123", string(marker))
}

func TestDownloadRefusesIncompleteBatch(t *testing.T) {
	api := &fakeBatchAPI{statuses: []batchapi.Batch{{Status: models.BatchStatusInProgress}}}
	svc, _ := newTestEval(t, &fakeResolver{}, api)
	assert.Error(t, svc.Download(context.Background(), "batch-123"))
}

// Three-question run: one rejected at build time, one answered correctly,
// one missing from the batch output. The rejected and missing items score
// failed while the remaining one scores normally.
func TestScoreThreeQuestionScenario(t *testing.T) {
	resolver := &fakeResolver{resolutions: map[string]*Resolution{
		"q001": {QuestionID: "q001", State: StateFailureHandled, FailureReason: "bare symbol choices"},
	}}
	api := &fakeBatchAPI{outputContent: []byte(
		outputLine("q001", "A") + "\n" + outputLine("q002", "B") + "\n",
	)}
	svc, _ := newTestEval(t, resolver, api)
	ctx := context.Background()

	_, err := svc.Build(ctx, threeQuestions())
	require.NoError(t, err)
	_, err = svc.Submit(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Download(ctx, "batch-123"))

	key := map[string]string{"q001": "A", "q002": "B", "q003": "C"}
	report, err := svc.Score(ctx, key)
	require.NoError(t, err)

	require.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Correct)
	assert.Equal(t, 0, report.Wrong)
	assert.Equal(t, 2, report.Failed)
	assert.InDelta(t, 1.0/3.0, report.Accuracy, 1e-9)

	// Rejected item fails even though the batch produced a letter for it.
	assert.Equal(t, models.OutcomeFailed, report.Items[0].Outcome)
	assert.Equal(t, "bare symbol choices", report.Items[0].Reason)
	assert.Equal(t, models.OutcomeCorrect, report.Items[1].Outcome)
	assert.Equal(t, models.OutcomeFailed, report.Items[2].Outcome)
	assert.Equal(t, "no batch output for item", report.Items[2].Reason)
}

func TestScoreOutcomes(t *testing.T) {
	api := &fakeBatchAPI{outputContent: []byte(
		outputLine("q001", "A") + "\n" +
			outputLine("q002", "D") + "\n" +
			outputLine("q003", "IDK") + "\n",
	)}
	svc, _ := newTestEval(t, &fakeResolver{}, api)
	ctx := context.Background()

	_, err := svc.Build(ctx, threeQuestions())
	require.NoError(t, err)
	_, err = svc.Submit(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Download(ctx, "batch-123"))

	report, err := svc.Score(ctx, map[string]string{"q001": "A", "q002": "B", "q003": "C"})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeCorrect, report.Items[0].Outcome)
	assert.Equal(t, models.OutcomeWrong, report.Items[1].Outcome)
	assert.Equal(t, models.OutcomeFailed, report.Items[2].Outcome)
}

// Force-score path: polling never finished, no output manifest exists.
func TestScoreWithoutOutputManifest(t *testing.T) {
	svc, _ := newTestEval(t, &fakeResolver{}, &fakeBatchAPI{})
	ctx := context.Background()

	_, err := svc.Build(ctx, threeQuestions())
	require.NoError(t, err)
	_, err = svc.Submit(ctx)
	require.NoError(t, err)

	report, err := svc.Score(ctx, map[string]string{"q001": "A", "q002": "B", "q003": "C"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Failed)
	assert.Zero(t, report.Accuracy)
}

func TestScoreIsIdempotent(t *testing.T) {
	api := &fakeBatchAPI{outputContent: []byte(outputLine("q001", "A") + "\n" +
		outputLine("q002", "B") + "\n" + outputLine("q003", "C") + "\n")}
	svc, _ := newTestEval(t, &fakeResolver{}, api)
	ctx := context.Background()

	_, err := svc.Build(ctx, threeQuestions())
	require.NoError(t, err)
	_, err = svc.Submit(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Download(ctx, "batch-123"))

	key := map[string]string{"q001": "A", "q002": "B", "q003": "C"}
	first, err := svc.Score(ctx, key)
	require.NoError(t, err)
	second, err := svc.Score(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, first.Correct, second.Correct)
	assert.Equal(t, first.Items, second.Items)
}

// Scoring is resumable from the manifests alone: a fresh service over the
// same storage produces the same report.
func TestScoreResumableAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	api := &fakeBatchAPI{outputContent: []byte(outputLine("q001", "A") + "\n" +
		outputLine("q002", "B") + "\n" + outputLine("q003", "D") + "\n")}
	ctx := context.Background()

	svc := NewEvalService(&fakeResolver{}, api, store, "gpt-4o-mini")
	_, err = svc.Build(ctx, threeQuestions())
	require.NoError(t, err)
	_, err = svc.Submit(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Download(ctx, "batch-123"))

	reopened, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	fresh := NewEvalService(nil, api, reopened, "gpt-4o-mini")

	report, err := fresh.Score(ctx, map[string]string{"q001": "A", "q002": "B", "q003": "C"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Correct)
	assert.Equal(t, 1, report.Wrong)
	assert.Equal(t, "batch-123", report.BatchID)

	loaded, err := fresh.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Total, loaded.Total)
}

func TestVerifyBatchIDs(t *testing.T) {
	api := &fakeBatchAPI{outputContent: []byte(outputLine("q001", "A") + "\n")}
	svc, store := newTestEval(t, &fakeResolver{}, api)
	ctx := context.Background()

	_, err := svc.Build(ctx, threeQuestions())
	require.NoError(t, err)
	_, err = svc.Submit(ctx)
	require.NoError(t, err)

	match, err := svc.VerifyBatchIDs(ctx)
	require.NoError(t, err)
	assert.False(t, match)

	require.NoError(t, svc.Download(ctx, "batch-123"))
	match, err = svc.VerifyBatchIDs(ctx)
	require.NoError(t, err)
	assert.True(t, match)

	require.NoError(t, store.Put(ctx, KeyOutputBatchID, []byte("batch-999")))
	match, err = svc.VerifyBatchIDs(ctx)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestResponseText(t *testing.T) {
	var rec models.OutputRecord
	require.NoError(t, json.Unmarshal([]byte(outputLine("q001", " B ")), &rec))
	assert.Equal(t, "B", responseText(rec.Response))

	assert.Empty(t, responseText(json.RawMessage(`{"body":{"output":[]}}`)))
	assert.Empty(t, responseText(json.RawMessage(`not json`)))
}

func TestDecodeOutputAnswersSkipsErrors(t *testing.T) {
	data := outputLine("q001", "A") + "\n" +
		`{"custom_id":"q002","error":{"code":"server_error"}}` + "\n" +
		"garbage line\n"
	answers := decodeOutputAnswers([]byte(data))
	assert.Equal(t, "A", answers["q001"])
	assert.Equal(t, "", answers["q002"])
	assert.Len(t, answers, 2)
}

func TestPollSurvivesTransientStatusError(t *testing.T) {
	api := &fakeBatchAPI{statusErr: errors.New("gateway timeout")}
	svc, _ := newTestEval(t, &fakeResolver{}, api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Poll(context.Background(), "batch-123")
		assert.ErrorIs(t, err, ErrPollTimeout)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not return")
	}
}
