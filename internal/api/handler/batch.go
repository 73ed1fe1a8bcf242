package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/service"
	"gorm.io/gorm"
)

// BatchHandler handles batch job endpoints.
type BatchHandler struct {
	batch *service.BatchService
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(batch *service.BatchService) *BatchHandler {
	return &BatchHandler{batch: batch}
}

// startBatchRequest is the POST /api/v1/batch-jobs payload.
type startBatchRequest struct {
	Name          string           `json:"name"`
	Tier          string           `json:"tier" binding:"required"`
	Items         []batchItemInput `json:"items" binding:"required"`
	Concurrency   int              `json:"concurrency"`
	ErrorHandling string           `json:"error_handling"`
}

type batchItemInput struct {
	Topic      string                 `json:"topic" binding:"required"`
	TemplateID string                 `json:"template_id"`
	Parameters map[string]interface{} `json:"parameters"`
}

// StartBatch handles POST /api/v1/batch-jobs.
func (h *BatchHandler) StartBatch(c *gin.Context) {
	var req startBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	items := make([]service.BatchItemSpec, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.BatchItemSpec{
			Topic:      it.Topic,
			TemplateID: it.TemplateID,
			Parameters: it.Parameters,
		}
	}

	job, err := h.batch.StartBatch(c.Request.Context(), &service.StartBatchRequest{
		Name:          req.Name,
		Tier:          domain.TierType(req.Tier),
		Items:         items,
		Concurrency:   req.Concurrency,
		ErrorHandling: domain.ErrorHandlingMode(req.ErrorHandling),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to start batch: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/batch-jobs/:id.
func (h *BatchHandler) GetJob(c *gin.Context) {
	jobID := c.Param("id")

	job, progress, err := h.batch.JobStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":      job,
		"progress": progress,
	})
}

// cancelRequest is the optional POST body for job cancellation.
type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelJob handles POST /api/v1/batch-jobs/:id/cancel.
func (h *BatchHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("id")

	var req cancelRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.batch.Cancel(jobID, req.Reason); err != nil {
		if errors.Is(err, service.ErrJobNotCancellable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// ResumeJob handles POST /api/v1/batch-jobs/:id/resume.
func (h *BatchHandler) ResumeJob(c *gin.Context) {
	jobID := c.Param("id")

	job, err := h.batch.Resume(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, service.ErrJobNotResumable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resume job: " + err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, job)
}
