package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"komgadl/internal/api/dto"
	"komgadl/internal/checker"
	"komgadl/internal/store"
)

// ChapterURLHandler serves the chapter download history surface.
type ChapterURLHandler struct {
	chapterURLs store.ChapterURLRepository
	checker     *checker.Checker
}

func NewChapterURLHandler(chapterURLs store.ChapterURLRepository, chk *checker.Checker) *ChapterURLHandler {
	return &ChapterURLHandler{chapterURLs: chapterURLs, checker: chk}
}

func (h *ChapterURLHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/check-url", h.CheckURL)
	rg.POST("/check-urls", h.CheckURLs)
	rg.GET("/series/:seriesId/new-chapters", h.NewChapters)
	rg.GET("/chapter-urls/date-range", h.ListByDateRange)
	rg.DELETE("/chapter-urls/series/:seriesId", h.DeleteBySeries)
	rg.DELETE("/chapter-urls/date-range", h.DeleteByDateRange)
	rg.DELETE("/chapter-urls/:id", h.DeleteByID)
	rg.DELETE("/chapter-urls", h.DeleteAll)
}

func (h *ChapterURLHandler) CheckURL(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	downloaded, err := h.chapterURLs.ExistsByURL(ctx, url)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.CheckURLResponse{URL: url, Downloaded: downloaded})
}

func (h *ChapterURLHandler) CheckURLs(c *gin.Context) {
	var req dto.CheckURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := h.chapterURLs.ExistsByURLs(ctx, req.URLs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ChapterURLHandler) NewChapters(c *gin.Context) {
	mangaURL := c.Query("mangaUrl")
	if mangaURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mangaUrl is required"})
		return
	}
	lang := c.DefaultQuery("lang", "en")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	chapters, err := h.checker.NewChaptersForSeries(ctx, mangaURL, lang)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.NewChapterResponse, 0, len(chapters))
	for _, ch := range chapters {
		items = append(items, dto.FromDescriptor(ch))
	}
	c.JSON(http.StatusOK, gin.H{
		"seriesId":    c.Param("seriesId"),
		"newChapters": items,
		"count":       len(items),
	})
}

// parseDateRange reads from/to query params in RFC 3339.
func parseDateRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *ChapterURLHandler) ListByDateRange(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, err := h.chapterURLs.FindByDateRange(ctx, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.ChapterURLResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.FromChapterURLRecord(record))
	}
	c.JSON(http.StatusOK, items)
}

func (h *ChapterURLHandler) DeleteBySeries(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	count, err := h.chapterURLs.DeleteBySeriesID(ctx, c.Param("seriesId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.DeleteCountResponse{DeletedCount: count, Message: "deleted"})
}

func (h *ChapterURLHandler) DeleteByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	err = h.chapterURLs.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChapterURLHandler) DeleteByDateRange(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	count, err := h.chapterURLs.DeleteByDateRange(ctx, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.DeleteCountResponse{DeletedCount: count, Message: "deleted"})
}

// DeleteAll wipes the whole history; it insists on an explicit confirmation.
func (h *ChapterURLHandler) DeleteAll(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pass confirm=true to delete all records"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	count, err := h.chapterURLs.DeleteAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.DeleteCountResponse{DeletedCount: count, Message: "all records deleted"})
}
