// submit-batch builds the input manifest from the question dataset and
// submits it as a bulk evaluation job. The batch id is persisted so
// score-batch can pick it up later, also across restarts.
package main

import (
	"context"
	"flag"
	"log"

	"lawagent/batchapi"
	"lawagent/config"
	"lawagent/dataset"
	"lawagent/llm"
	"lawagent/repository"
	"lawagent/service"
	"lawagent/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	limit := flag.Int("limit", 0, "evaluate only the first N questions (0 = all)")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	set, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	questions := set.Questions
	if *limit > 0 && *limit < len(questions) {
		questions = questions[:*limit]
	}
	log.Printf("Loaded %d questions from %s", len(questions), cfg.DatasetPath)

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping Postgres: %v", err)
	}

	store, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("Failed to initialize Gemini: %v", err)
	}
	defer gemini.Close()

	articleRepo := repository.NewArticleRepository(db)
	agentService := service.NewAgentService(gemini, llm.NewEmbedder(cfg.GeminiAPIKey), articleRepo,
		service.AgentWithMaxIterations(cfg.AgentMaxIterations),
	)
	routerService := service.NewRouterService(gemini, agentService)
	evalService := service.NewEvalService(routerService, batchapi.New(cfg.OpenAIAPIKey), store, cfg.BatchModel,
		service.EvalWithWorkers(cfg.BuildWorkers),
	)

	if _, err := evalService.Build(ctx, questions); err != nil {
		log.Fatalf("Failed to build input manifest: %v", err)
	}

	job, err := evalService.Submit(ctx)
	if err != nil {
		log.Fatalf("Failed to submit batch: %v", err)
	}
	log.Printf("Batch %s submitted with %d items, status %s", job.ID, job.ItemCount, job.Status)
}
