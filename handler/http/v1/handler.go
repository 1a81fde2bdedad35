package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"quizforge/src/chunkplan"
	"quizforge/src/question"
	"quizforge/src/queue"
)

// Pinger is implemented by backing services that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ledger    *queue.Ledger
	questions *question.QuestionService
	db        *gorm.DB
	store     Pinger
}

// NewHandler wires the admin API. store may be nil when no object store is
// configured; the health endpoint then skips it.
func NewHandler(ledger *queue.Ledger, questions *question.QuestionService, db *gorm.DB, store Pinger) *Handler {
	return &Handler{
		ledger:    ledger,
		questions: questions,
		db:        db,
		store:     store,
	}
}

// RegisterRoutes registers all v1 API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Generation routes
	v1.POST("/admin/generate", h.Generate)
	v1.POST("/admin/auto-chunk-generate", h.AutoChunkGenerate)
	v1.POST("/admin/preview-chunks", h.PreviewChunks)

	// Job routes
	v1.GET("/admin/jobs", h.ListJobs)
	v1.POST("/admin/jobs/:id/requeue", h.RequeueJob)

	// Question routes
	v1.GET("/admin/recent-questions", h.RecentQuestions)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	code := "INTERNAL_ERROR"
	var rangeErr *chunkplan.ErrTargetOutOfRange
	switch {
	case errors.Is(err, queue.ErrMissingTopic),
		errors.Is(err, queue.ErrInvalidCount),
		errors.As(err, &rangeErr):
		code = "INVALID_REQUEST"
		status = http.StatusBadRequest
	case status == http.StatusBadRequest:
		code = "INVALID_REQUEST"
	case status == http.StatusNotFound:
		code = "NOT_FOUND"
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
