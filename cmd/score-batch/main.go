// score-batch polls the submitted batch until it finishes, downloads the
// output manifest and scores it against the dataset answer key. When
// polling times out the run is force-scored with whatever output exists.
package main

import (
	"context"
	"errors"
	"log"

	"lawagent/batchapi"
	"lawagent/config"
	"lawagent/dataset"
	"lawagent/models"
	"lawagent/service"
	"lawagent/storage"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	cfg := config.Load()
	ctx := context.Background()

	set, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}

	store, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Scoring only reads manifests, no reasoning pipeline needed.
	evalService := service.NewEvalService(nil, batchapi.New(cfg.OpenAIAPIKey), store, cfg.BatchModel,
		service.EvalWithPollInterval(cfg.PollInterval),
		service.EvalWithPollTimeout(cfg.PollTimeout),
	)

	batchID, err := evalService.SubmittedBatchID(ctx)
	if err != nil {
		log.Fatalf("No submitted batch found, run submit-batch first: %v", err)
	}
	log.Printf("Polling batch %s", batchID)

	batch, err := evalService.Poll(ctx, batchID)
	switch {
	case errors.Is(err, service.ErrPollTimeout):
		log.Printf("Polling timed out, force-scoring with existing output")
	case err != nil:
		log.Fatalf("Polling failed: %v", err)
	case batch.Status == models.BatchStatusCompleted:
		if err := evalService.Download(ctx, batchID); err != nil {
			log.Printf("Download failed, force-scoring with existing output: %v", err)
		}
	default:
		log.Printf("Batch ended with status %s, force-scoring with existing output", batch.Status)
	}

	report, err := evalService.Score(ctx, set.AnswerKey)
	if err != nil {
		log.Fatalf("Scoring failed: %v", err)
	}

	log.Printf("Report for batch %s: %d correct, %d wrong, %d failed out of %d (accuracy %.2f%%)",
		report.BatchID, report.Correct, report.Wrong, report.Failed, report.Total, report.Accuracy*100)
	log.Printf("Report stored under %s", service.KeyReport)
}
