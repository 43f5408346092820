package main

import (
	"context"
	"log"

	"lawagent/batchapi"
	"lawagent/config"
	"lawagent/handlers"
	"lawagent/llm"
	"lawagent/repository"
	"lawagent/service"
	"lawagent/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	cfg := config.Load()
	ctx := context.Background()

	// Initialize database connection
	db, err := initPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to initialize Postgres:", err)
	}
	defer db.Close()

	// Initialize artifact storage
	store, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Println("Storage initialized")

	// Initialize repositories
	articleRepo := repository.NewArticleRepository(db)

	// Initialize LLM clients
	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal("Failed to initialize Gemini:", err)
	}
	defer gemini.Close()
	embedder := llm.NewEmbedder(cfg.GeminiAPIKey)

	// Initialize batch API client
	batchClient := batchapi.New(cfg.OpenAIAPIKey)

	// Initialize services
	agentService := service.NewAgentService(gemini, embedder, articleRepo,
		service.AgentWithMaxIterations(cfg.AgentMaxIterations),
	)
	routerService := service.NewRouterService(gemini, agentService)
	evalService := service.NewEvalService(routerService, batchClient, store, cfg.BatchModel,
		service.EvalWithWorkers(cfg.BuildWorkers),
		service.EvalWithPollInterval(cfg.PollInterval),
		service.EvalWithPollTimeout(cfg.PollTimeout),
	)

	// Initialize handlers
	evalHandler := handlers.NewEvalHandler(routerService, evalService, cfg.DatasetPath)

	// Setup Gin router
	r := gin.Default()
	r.Use(handlers.RequestID())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Question endpoints
		api.POST("/questions/resolve", evalHandler.ResolveQuestion)

		// Batch endpoints
		api.GET("/batch", evalHandler.GetBatchStatus)
		api.POST("/batch/score", evalHandler.ScoreBatch)
		api.GET("/report", evalHandler.GetReport)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func initPostgres(connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Postgres connection established")
	return pool, nil
}
