package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// CheckHealth reports the reachability of the backing services.
func (h *Handler) CheckHealth(c *gin.Context) {
	status := HealthStatus{
		Status:     "ok",
		Components: map[string]string{},
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		status.Status = "degraded"
		status.Components["database"] = err.Error()
	} else {
		status.Components["database"] = "ok"
	}

	if h.store != nil {
		if err := h.store.Ping(c.Request.Context()); err != nil {
			status.Status = "degraded"
			status.Components["object_store"] = err.Error()
		} else {
			status.Components["object_store"] = "ok"
		}
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	sendJSON(c, code, status)
}
