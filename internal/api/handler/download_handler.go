package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"komgadl/internal/api/dto"
	"komgadl/internal/followlist"
	"komgadl/internal/mangadex"
	"komgadl/internal/progress"
	"komgadl/internal/store"
)

// DownloadExecutor is the executor surface the handler drives.
type DownloadExecutor interface {
	Cancel(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// FollowChecker triggers an immediate follow-list expansion.
type FollowChecker interface {
	RunLibraryCheckNow(ctx context.Context, libraryID string) error
}

// Searcher resolves titles against the catalog.
type Searcher interface {
	SearchManga(ctx context.Context, query string, limit int) []*mangadex.MangaMetadata
}

// DownloadHandler serves the download queue REST surface.
type DownloadHandler struct {
	downloads store.DownloadRepository
	configs   store.ConfigRepository
	executor  DownloadExecutor
	checkNow  FollowChecker
	libraries *followlist.Registry
	searcher  Searcher
	hub       *progress.Hub
}

func NewDownloadHandler(
	downloads store.DownloadRepository,
	configs store.ConfigRepository,
	executor DownloadExecutor,
	checkNow FollowChecker,
	libraries *followlist.Registry,
	searcher Searcher,
	hub *progress.Hub,
) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		configs:   configs,
		executor:  executor,
		checkNow:  checkNow,
		libraries: libraries,
		searcher:  searcher,
		hub:       hub,
	}
}

func (h *DownloadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/search", h.Search)
	rg.GET("/progress", progress.WSHandler(h.hub))
	rg.GET("/scheduler", h.GetScheduler)
	rg.POST("/scheduler", h.UpdateScheduler)
	rg.DELETE("/clear/:status", h.ClearByStatus)
	rg.GET("/follow-txt/:libraryId", h.GetFollowTxt)
	rg.PUT("/follow-txt/:libraryId", h.PutFollowTxt)
	rg.POST("/follow-txt/:libraryId/check-now", h.CheckNow)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/action", h.Action)
	rg.DELETE("/:id", h.Delete)
}

// List returns the queue, optionally filtered by status, sorted by priority
// (lower dispatches sooner) then creation date.
func (h *DownloadHandler) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var filter *store.DownloadStatus
	if raw := c.Query("status"); raw != "" {
		status := store.DownloadStatus(raw)
		filter = &status
	}

	entries, err := h.downloads.List(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.DownloadResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.FromEntry(entry))
	}
	c.JSON(http.StatusOK, items)
}

func (h *DownloadHandler) Get(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	entry, err := h.downloads.GetByID(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.FromEntry(*entry))
}

func (h *DownloadHandler) Create(c *gin.Context) {
	var req dto.CreateDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	priority := 5
	if req.Priority != nil {
		priority = *req.Priority
	}

	title := req.Title
	if title == "" {
		title = req.SourceURL
	}

	sourceType := "generic-web"
	if mangadex.IsMangaDexURL(req.SourceURL) {
		sourceType = "remote-catalog"
	}

	entry := &store.DownloadEntry{
		SourceURL:  req.SourceURL,
		SourceType: sourceType,
		Title:      title,
		Priority:   priority,
		MaxRetries: 3,
		CreatedBy:  "api",
		PluginID:   "gallery-dl",
	}
	if req.LibraryID != "" {
		if _, err := h.libraries.Get(req.LibraryID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown library"})
			return
		}
		libraryID := req.LibraryID
		entry.LibraryID = &libraryID
	}

	if err := h.downloads.Create(ctx, entry); err != nil {
		if errors.Is(err, store.ErrAlreadyQueued) {
			c.JSON(http.StatusConflict, gin.H{"error": "source url already queued or completed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto.FromEntry(*entry))
}

func (h *DownloadHandler) Action(c *gin.Context) {
	var req dto.DownloadActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	id := c.Param("id")
	var err error
	switch req.Action {
	case "cancel":
		err = h.executor.Cancel(ctx, id)
	case "retry":
		err = h.executor.Retry(ctx, id)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DownloadHandler) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	err := h.executor.Delete(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

var clearableStatuses = map[string]store.DownloadStatus{
	"completed": store.StatusCompleted,
	"failed":    store.StatusFailed,
	"cancelled": store.StatusCancelled,
	"pending":   store.StatusPending,
}

func (h *DownloadHandler) ClearByStatus(c *gin.Context) {
	status, ok := clearableStatuses[c.Param("status")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of completed, failed, cancelled, pending"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	count, err := h.downloads.DeleteByStatus(ctx, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ClearResponse{
		DeletedCount: count,
		Status:       string(status),
		Message:      "cleared",
	})
}

func (h *DownloadHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	results := h.searcher.SearchManga(ctx, query, 10)
	c.JSON(http.StatusOK, results)
}

func (h *DownloadHandler) GetFollowTxt(c *gin.Context) {
	lib, err := h.libraries.Get(c.Param("libraryId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown library"})
		return
	}

	content, err := followlist.Read(lib.Root)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.FollowTxtResponse{
		LibraryID:   lib.ID,
		LibraryName: lib.Name,
		Content:     content,
	})
}

func (h *DownloadHandler) PutFollowTxt(c *gin.Context) {
	lib, err := h.libraries.Get(c.Param("libraryId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown library"})
		return
	}

	var req dto.FollowTxtUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := followlist.Write(lib.Root, req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DownloadHandler) CheckNow(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	if err := h.checkNow.RunLibraryCheckNow(ctx, c.Param("libraryId")); err != nil {
		if errors.Is(err, followlist.ErrUnknownLibrary) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown library"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DownloadHandler) GetScheduler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	cfg, err := h.configs.GetFollowConfig(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SchedulerConfigResponse{
		Enabled:       cfg.Enabled,
		IntervalHours: cfg.CheckIntervalHours,
		LastCheckTime: cfg.LastCheckTime,
	})
}

func (h *DownloadHandler) UpdateScheduler(c *gin.Context) {
	var req dto.SchedulerConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	cfg, err := h.configs.GetFollowConfig(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cfg.Enabled = req.Enabled
	cfg.CheckIntervalHours = req.IntervalHours

	if err := h.configs.SaveFollowConfig(ctx, cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SchedulerConfigResponse{
		Enabled:       cfg.Enabled,
		IntervalHours: cfg.CheckIntervalHours,
		LastCheckTime: cfg.LastCheckTime,
	})
}
