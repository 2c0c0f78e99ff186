package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger records method, path, status and latency for every API call.
func (h *Handler) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	if h.log == nil {
		return
	}
	h.log.Infow("http_request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"latency", time.Since(start),
	)
}
