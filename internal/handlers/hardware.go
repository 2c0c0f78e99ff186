package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"racetimer/internal/serial"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusCommandSent  = "command_sent"

	errConnectHardware    = "failed to connect to timer hardware"
	errDisconnectHardware = "failed to disconnect from timer hardware"
	errListPorts          = "failed to enumerate serial ports"
	errInvalidBodyPref    = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandErrorStatus maps a send failure to the HTTP status the caller
// should see: a disconnected device is the caller's problem, not ours.
func commandErrorStatus(err error) int {
	if errors.Is(err, serial.ErrNotConnected) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Request DTO for connecting to the hardware.
type connectRequest struct {
	Port string `json:"port"` // optional; empty triggers auto-detection
}

// Request DTO for an arbitrary device command.
type commandRequest struct {
	Cmd    string         `json:"cmd" binding:"required"`
	Params map[string]any `json:"params"`
}

// Request DTO for starting a race.
type startRaceRequest struct {
	RaceID int64 `json:"race_id" binding:"required"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List serial ports
// @Tags         hardware
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ports"
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/hardware/ports [get]
func (h *Handler) listPorts(c *gin.Context) {
	ports, err := h.services.Hardware.Ports()
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListPorts, "list_ports_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ports": ports})
}

// @Summary      Hardware status
// @Description  Returns the link state and the device's last self-reported snapshot.
// @Tags         hardware
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/hardware/status [get]
func (h *Handler) hardwareStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Hardware.Status())
}

// @Summary      Connect to the timer hardware
// @Description  Empty port auto-detects the first known USB-serial bridge.
// @Tags         hardware
// @Accept       json
// @Produce      json
// @Param        body  body   connectRequest  false  "Connect payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]string  "no device found"
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/hardware/connect [post]
func (h *Handler) connectHardware(c *gin.Context) {
	var req connectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}

	if err := h.services.Hardware.Connect(c.Request.Context(), req.Port); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, serial.ErrNoDeviceFound) {
			code = http.StatusNotFound
		}
		h.logAndJSONError(c, code, errConnectHardware, "hardware_connect_failed", err, "port", req.Port)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   statusConnected,
		"hardware": h.services.Hardware.Status(),
	})
}

// @Summary      Disconnect from the timer hardware
// @Tags         hardware
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/hardware/disconnect [post]
func (h *Handler) disconnectHardware(c *gin.Context) {
	if err := h.services.Hardware.Disconnect(c.Request.Context()); err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errDisconnectHardware, "hardware_disconnect_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusDisconnected})
}

// @Summary      Send a raw device command
// @Tags         hardware
// @Accept       json
// @Produce      json
// @Param        body  body   commandRequest  true  "Command payload"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string  "not connected"
// @Router       /api/v1/hardware/command [post]
func (h *Handler) sendCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Hardware.SendCommand(req.Cmd, req.Params); err != nil {
		h.logAndJSONError(c, commandErrorStatus(err), err.Error(), "hardware_command_failed", err, "cmd", req.Cmd)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCommandSent, "cmd": req.Cmd})
}

// @Summary      Start a race
// @Description  Marks the race in progress and arms the hardware start gate.
// @Tags         hardware
// @Accept       json
// @Produce      json
// @Param        body  body   startRaceRequest  true  "Race payload"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string  "not connected"
// @Router       /api/v1/hardware/start_race [post]
func (h *Handler) startRace(c *gin.Context) {
	var req startRaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Hardware.StartRace(c.Request.Context(), req.RaceID); err != nil {
		h.logAndJSONError(c, commandErrorStatus(err), err.Error(), "race_start_failed", err, "race_id", req.RaceID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCommandSent, "cmd": "start_race"})
}

// @Summary      Reset the race timer
// @Tags         hardware
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "not connected"
// @Router       /api/v1/hardware/reset_timer [post]
func (h *Handler) resetTimer(c *gin.Context) {
	if err := h.services.Hardware.ResetTimer(); err != nil {
		h.logAndJSONError(c, commandErrorStatus(err), err.Error(), "timer_reset_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCommandSent, "cmd": "reset_timer"})
}

// @Summary      Calibrate the finish-line sensors
// @Tags         hardware
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "not connected"
// @Router       /api/v1/hardware/calibrate [post]
func (h *Handler) calibrate(c *gin.Context) {
	if err := h.services.Hardware.Calibrate(); err != nil {
		h.logAndJSONError(c, commandErrorStatus(err), err.Error(), "calibrate_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusCommandSent, "cmd": "calibrate"})
}
