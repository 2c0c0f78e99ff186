package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const errInvalidHeatID = "invalid heat id"

// Request DTO for countdown start/reset; duration optional.
type countdownRequest struct {
	Duration int `json:"duration"` // seconds; 0 keeps the configured duration
}

func (h *Handler) heatID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("heat_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidHeatID})
		return 0, false
	}
	return id, true
}

func (h *Handler) bindCountdownBody(c *gin.Context) (countdownRequest, bool) {
	var req countdownRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return req, false
		}
	}
	return req, true
}

// @Summary      Start or resume a heat countdown
// @Description  An optional duration (seconds) resets the timer to that length first.
// @Tags         countdown
// @Accept       json
// @Produce      json
// @Param        heat_id  path   int               true   "Heat id"
// @Param        body     body   countdownRequest  false  "Countdown payload"
// @Success      200      {object}  racetimer.CountdownStatus
// @Failure      400      {object}  map[string]string
// @Router       /api/v1/heats/{heat_id}/countdown/start [post]
func (h *Handler) startCountdown(c *gin.Context) {
	heatID, ok := h.heatID(c)
	if !ok {
		return
	}
	req, ok := h.bindCountdownBody(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.services.Countdown.Start(heatID, req.Duration))
}

// @Summary      Pause a heat countdown
// @Tags         countdown
// @Produce      json
// @Param        heat_id  path  int  true  "Heat id"
// @Success      200  {object}  racetimer.CountdownStatus
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/heats/{heat_id}/countdown/pause [post]
func (h *Handler) pauseCountdown(c *gin.Context) {
	heatID, ok := h.heatID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.services.Countdown.Pause(heatID))
}

// @Summary      Reset a heat countdown
// @Tags         countdown
// @Accept       json
// @Produce      json
// @Param        heat_id  path   int               true   "Heat id"
// @Param        body     body   countdownRequest  false  "Countdown payload"
// @Success      200      {object}  racetimer.CountdownStatus
// @Failure      400      {object}  map[string]string
// @Router       /api/v1/heats/{heat_id}/countdown/reset [post]
func (h *Handler) resetCountdown(c *gin.Context) {
	heatID, ok := h.heatID(c)
	if !ok {
		return
	}
	req, ok := h.bindCountdownBody(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.services.Countdown.Reset(heatID, req.Duration))
}

// @Summary      Heat countdown status
// @Tags         countdown
// @Produce      json
// @Param        heat_id  path  int  true  "Heat id"
// @Success      200  {object}  racetimer.CountdownStatus
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/heats/{heat_id}/countdown/status [get]
func (h *Handler) countdownStatus(c *gin.Context) {
	heatID, ok := h.heatID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.services.Countdown.Status(heatID))
}
