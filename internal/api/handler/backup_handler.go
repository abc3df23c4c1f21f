package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"komgadl/internal/backup"
)

// BackupHandler serves the backup lifecycle surface.
type BackupHandler struct {
	manager *backup.Manager
}

func NewBackupHandler(manager *backup.Manager) *BackupHandler {
	return &BackupHandler{manager: manager}
}

func (h *BackupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/full", h.CreateFull)
	rg.POST("/clean", h.Clean)
	rg.POST("/restore/:fileName", h.Restore)
	rg.GET("/:fileName/download", h.Download)
	rg.DELETE("/:fileName", h.Delete)
}

func (h *BackupHandler) List(c *gin.Context) {
	backups, err := h.manager.ListBackups()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, backups)
}

func (h *BackupHandler) Create(c *gin.Context) {
	info, err := h.manager.CreateBackup()
	if err != nil {
		if errors.Is(err, backup.ErrInMemory) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, info)
}

// CreateFull snapshots the database after a full WAL flush; wire-compatible
// with Create, kept as its own endpoint for clients that distinguish them.
func (h *BackupHandler) CreateFull(c *gin.Context) {
	h.Create(c)
}

func (h *BackupHandler) Download(c *gin.Context) {
	path, err := h.manager.BackupPath(c.Param("fileName"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(c.Param("fileName")))
	c.Header("Content-Type", "application/octet-stream")
	c.File(path)
}

func (h *BackupHandler) Delete(c *gin.Context) {
	ok, err := h.manager.DeleteBackup(c.Param("fileName"))
	if err != nil {
		if errors.Is(err, backup.ErrAccessDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "backup not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BackupHandler) Clean(c *gin.Context) {
	keep, err := strconv.Atoi(c.DefaultQuery("keep", "5"))
	if err != nil || keep < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keep must be a non-negative integer"})
		return
	}

	deleted, err := h.manager.CleanOldBackups(keep)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deletedCount": deleted, "kept": keep})
}

func (h *BackupHandler) Restore(c *gin.Context) {
	result, err := h.manager.RestoreBackup(c.Param("fileName"))
	if err != nil {
		switch {
		case errors.Is(err, backup.ErrAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		case errors.Is(err, backup.ErrBackupNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "backup not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}
