package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"quizforge/src/queue"
)

const maxListedErrorLen = 200

type JobView struct {
	ID             int64      `json:"id"`
	Status         string     `json:"status"`
	Topic          string     `json:"topic"`
	MainHeader     string     `json:"main_header,omitempty"`
	Attempts       int        `json:"attempts"`
	GeneratedCount int        `json:"generated_count"`
	TotalItems     int        `json:"total_items"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// ListJobs returns recent jobs for the status panel, newest first.
// Optional query params: status, limit.
func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	status := queue.JobStatus(c.Query("status"))

	jobs, err := h.ledger.ListRecent(c.Request.Context(), status, limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		view := JobView{
			ID:             job.ID,
			Status:         string(job.Status),
			Attempts:       job.Attempts,
			GeneratedCount: job.GeneratedCount,
			TotalItems:     job.TotalItems,
			CreatedAt:      job.CreatedAt,
			UpdatedAt:      job.UpdatedAt,
			CompletedAt:    job.CompletedAt,
		}
		if payload, err := job.DecodePayload(); err == nil {
			view.Topic = payload.Topic
			view.MainHeader = payload.MainHeader
		}
		if job.ErrorMessage != nil {
			msg := *job.ErrorMessage
			if len(msg) > maxListedErrorLen {
				msg = msg[:maxListedErrorLen]
			}
			view.ErrorMessage = msg
		}
		views = append(views, view)
	}
	sendJSON(c, http.StatusOK, views)
}

type RequeueResponse struct {
	Message string `json:"message"`
	JobID   int64  `json:"job_id"`
}

// RequeueJob clones a job's payload into a new pending job. This is the
// explicit re-submission path for failed jobs and the manual reclaim path
// for jobs orphaned by a crashed worker.
func (h *Handler) RequeueJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid job id: %w", err))
		return
	}

	job, err := h.ledger.Requeue(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusNotFound, err)
		return
	}
	sendJSON(c, http.StatusCreated, RequeueResponse{
		Message: fmt.Sprintf("job %d requeued as job %d", id, job.ID),
		JobID:   job.ID,
	})
}
