package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/nocturnal-server/internal/auth"
	"github.com/vovakirdan/nocturnal-server/internal/config"
	"github.com/vovakirdan/nocturnal-server/internal/core"
	"github.com/vovakirdan/nocturnal-server/internal/store"
)

// NewServer builds the HTTP server: health, the live channel and the REST API.
// The live channel sits on the outer mux so the upgrade hijacks the raw
// connection rather than gin's response writer.
// authService may be nil when tokens are not used; scheduler may be nil when
// scheduling is disabled.
func NewServer(
	hub *core.Hub,
	engine *core.Engine,
	scheduler core.ScheduleService,
	authService *auth.Service,
	users store.UserStore,
	cfg *config.Config,
	logger *zerolog.Logger,
) *http.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	identity := newIdentityResolver(authService, cfg.JWTRequired)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/", rootHandler)
	router.GET("/health", healthHandler)

	messageHandlers := NewMessageHandlers(engine, logger)
	scheduledHandlers := NewScheduledHandlers(scheduler, logger)
	userHandlers := NewUserHandlers(users, hub.Registry(), logger)

	// Path kept for clients written against the first HTTP API.
	router.GET("/messages/:senderId/:receiverId", IdentityMiddleware(identity, logger), messageHandlers.History)

	api := router.Group("/api")
	api.Use(IdentityMiddleware(identity, logger))
	{
		api.GET("/messages/:senderId/:receiverId", messageHandlers.History)
		api.POST("/messages/:id/status", messageHandlers.MarkStatus)

		api.POST("/scheduled", scheduledHandlers.Create)
		api.GET("/scheduled", scheduledHandlers.List)
		api.DELETE("/scheduled/:id", scheduledHandlers.Cancel)

		api.GET("/users/:id", userHandlers.GetUser)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, identity, cfg, logger))
	mux.Handle("/", router)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Nocturnal Server Running"})
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
