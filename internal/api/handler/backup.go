package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jamesjordanmarketing/train-data-sub008/internal/service"
	"gorm.io/gorm"
)

// BackupHandler handles backup endpoints.
type BackupHandler struct {
	backups *service.BackupService
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(backups *service.BackupService) *BackupHandler {
	return &BackupHandler{backups: backups}
}

// createBackupRequest is the POST /api/v1/backups payload.
type createBackupRequest struct {
	Reason          string   `json:"reason" binding:"required"`
	ConversationIDs []string `json:"conversation_ids" binding:"required"`
}

// CreateBackup handles POST /api/v1/backups.
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	var req createBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	backup, err := h.backups.CreateBackup(c.Request.Context(), req.Reason, req.ConversationIDs)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found: " + err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create backup: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, backup)
}
