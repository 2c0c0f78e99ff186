package handlers

import (
	"racetimer/internal/logger"
	"racetimer/internal/service"
	"racetimer/internal/ws"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services, the websocket hub and logging.
type Handler struct {
	services *service.Service
	hub      *ws.Hub
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, hub *ws.Hub, log *logger.Logger) *Handler {
	return &Handler{services: services, hub: hub, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Event stream for dashboards, served on the same port
	router.GET("/ws", h.wsConnect)

	// Versioned API endpoints
	h.registerAPIRoutes(router)

	return router
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.requestLogger)
	{
		h.registerHardwareRoutes(api)
		h.registerCountdownRoutes(api)
		h.registerEventRoutes(api)
	}
}

func (h *Handler) registerHardwareRoutes(api *gin.RouterGroup) {
	hw := api.Group("/hardware")
	{
		hw.GET("/ports", h.listPorts)
		hw.GET("/status", h.hardwareStatus)
		// Body example: {"port":"/dev/ttyUSB0"}; port optional, auto-detects
		hw.POST("/connect", h.connectHardware)
		hw.POST("/disconnect", h.disconnectHardware)
		// Body example: {"cmd":"status","params":{"verbose":true}}
		hw.POST("/command", h.sendCommand)
		hw.POST("/start_race", h.startRace)
		hw.POST("/reset_timer", h.resetTimer)
		hw.POST("/calibrate", h.calibrate)
	}
}

func (h *Handler) registerCountdownRoutes(api *gin.RouterGroup) {
	cd := api.Group("/heats/:heat_id/countdown")
	{
		cd.POST("/start", h.startCountdown)
		cd.POST("/pause", h.pauseCountdown)
		cd.POST("/reset", h.resetCountdown)
		cd.GET("/status", h.countdownStatus)
	}
}

func (h *Handler) registerEventRoutes(api *gin.RouterGroup) {
	events := api.Group("/events")
	{
		events.GET("", h.getEvents)
	}
}
