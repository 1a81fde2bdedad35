package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RecentQuestions returns the newest generated questions.
func (h *Handler) RecentQuestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	questions, err := h.questions.ListRecent(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusOK, questions)
}
