package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/domain"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/service"
)

// RecoveryHandler handles recovery detection and execution endpoints.
type RecoveryHandler struct {
	detector *service.RecoveryDetector
	executor *service.RecoveryExecutor
}

// NewRecoveryHandler creates a new recovery handler.
func NewRecoveryHandler(detector *service.RecoveryDetector, executor *service.RecoveryExecutor) *RecoveryHandler {
	return &RecoveryHandler{detector: detector, executor: executor}
}

// ListItems handles GET /api/v1/recovery/items. A partial scan still
// returns the items it found; source failures are reported alongside.
func (h *RecoveryHandler) ListItems(c *gin.Context) {
	items, err := h.detector.DetectRecoverableData(c.Request.Context())

	resp := gin.H{
		"items": items,
		"count": len(items),
	}
	if err != nil {
		resp["scan_errors"] = err.Error()
	}

	c.JSON(http.StatusOK, resp)
}

// executeRequest selects previously detected items for recovery. Items
// are re-detected server-side; SkipIDs marks detected items the operator
// chose not to recover.
type executeRequest struct {
	ItemIDs []string `json:"item_ids" binding:"required"`
	SkipIDs []string `json:"skip_ids"`
}

// Execute handles POST /api/v1/recovery/execute.
func (h *RecoveryHandler) Execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	detected, err := h.detector.DetectRecoverableData(c.Request.Context())
	if err != nil && len(detected) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Recovery detection failed: " + err.Error(),
		})
		return
	}

	skip := make(map[string]bool, len(req.SkipIDs))
	for _, id := range req.SkipIDs {
		skip[id] = true
	}

	byID := make(map[string]domain.RecoverableItem, len(detected))
	for _, item := range detected {
		byID[item.ID] = item
	}

	selected := make([]domain.RecoverableItem, 0, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		item, ok := byID[id]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Unknown recovery item: " + id,
			})
			return
		}
		if skip[id] {
			item.Status = domain.RecoveryStatusSkipped
		}
		selected = append(selected, item)
	}

	summary, err := h.executor.RecoverItems(c.Request.Context(), selected)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Recovery execution failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}
