package handlers

import (
	"errors"
	"log"
	"net/http"

	"lawagent/dataset"
	"lawagent/models"
	"lawagent/service"
	"lawagent/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EvalHandler handles HTTP requests for question resolution and batch
// evaluation state.
type EvalHandler struct {
	router      *service.RouterService
	eval        *service.EvalService
	datasetPath string
}

// NewEvalHandler creates a new evaluation handler.
func NewEvalHandler(router *service.RouterService, eval *service.EvalService, datasetPath string) *EvalHandler {
	return &EvalHandler{
		router:      router,
		eval:        eval,
		datasetPath: datasetPath,
	}
}

// RequestID tags every request with a correlation id for log lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// ResolveQuestionRequest represents the request body for resolving one
// question ad hoc.
type ResolveQuestionRequest struct {
	Stem    string `json:"stem" binding:"required"`
	Choices []struct {
		Label string `json:"label" binding:"required"`
		Text  string `json:"text"`
	} `json:"choices" binding:"required"`
}

// ResolveQuestion handles POST /api/questions/resolve
func (h *EvalHandler) ResolveQuestion(c *gin.Context) {
	var req ResolveQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	q := models.Question{ID: uuid.New().String(), Stem: req.Stem}
	for _, ch := range req.Choices {
		q.Choices = append(q.Choices, models.Choice{Label: ch.Label, Text: ch.Text})
	}

	res := h.router.Resolve(c.Request.Context(), q)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"question_id":     res.QuestionID,
			"state":           res.State,
			"verdict":         res.Verdict,
			"classifications": res.Classifications,
			"analysis":        res.Analysis,
			"failure_reason":  res.FailureReason,
		},
	})
}

// GetBatchStatus handles GET /api/batch
func (h *EvalHandler) GetBatchStatus(c *gin.Context) {
	ctx := c.Request.Context()

	batchID, err := h.eval.SubmittedBatchID(ctx)
	if err != nil {
		if errors.Is(err, service.ErrNoBatch) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NO_BATCH",
					"message": "no batch has been submitted",
				},
			})
			return
		}
		log.Printf("failed to read batch id: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "failed to read batch id",
			},
		})
		return
	}

	batch, err := h.eval.Status(ctx, batchID)
	if err != nil {
		log.Printf("failed to retrieve batch %s: %v", batchID, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROVIDER_ERROR",
				"message": "failed to retrieve batch status",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"batch_id":  batch.ID,
			"status":    batch.Status,
			"total":     batch.Total,
			"completed": batch.Completed,
			"failed":    batch.Failed,
		},
	})
}

// ScoreBatch handles POST /api/batch/score. It downloads the output when
// the batch is completed, then scores whatever output exists against the
// dataset answer key.
func (h *EvalHandler) ScoreBatch(c *gin.Context) {
	ctx := c.Request.Context()

	set, err := dataset.Load(h.datasetPath)
	if err != nil {
		log.Printf("failed to load dataset: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATASET_ERROR",
				"message": "failed to load dataset",
			},
		})
		return
	}

	if batchID, err := h.eval.SubmittedBatchID(ctx); err == nil {
		if batch, err := h.eval.Status(ctx, batchID); err == nil && batch.Status == models.BatchStatusCompleted {
			if err := h.eval.Download(ctx, batchID); err != nil {
				log.Printf("batch %s: download failed, scoring existing output: %v", batchID, err)
			}
		}
	}

	report, err := h.eval.Score(ctx, set.AnswerKey)
	if err != nil {
		log.Printf("scoring failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SCORING_ERROR",
				"message": "failed to score batch output",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}

// GetReport handles GET /api/report
func (h *EvalHandler) GetReport(c *gin.Context) {
	report, err := h.eval.Report(c.Request.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NO_REPORT",
					"message": "no score report has been generated",
				},
			})
			return
		}
		log.Printf("failed to read report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "failed to read report",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}
