package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cardroom/cardroom-server/internal/auth"
	"github.com/cardroom/cardroom-server/internal/config"
	"github.com/cardroom/cardroom-server/internal/core"
	"github.com/cardroom/cardroom-server/internal/store"
)

// NewServer builds the HTTP server carrying both transports: the REST API
// and the WebSocket endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, st, logger)
	roomHandlers := NewRoomHandlers(hub, st, logger)

	api := router.Group("/api")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)
		api.POST("/guest", apiHandlers.GuestLogin)

		authorized := api.Group("")
		authorized.Use(AuthMiddleware(authService, logger))
		{
			authorized.GET("/me", apiHandlers.Me)
			authorized.GET("/rooms", roomHandlers.ListRooms)
			// Request/response alternates onto the same command handlers
			// as the socket path.
			authorized.PUT("/rooms/:code/settings", roomHandlers.UpdateSettings)
			authorized.PUT("/rooms/:code/ready", roomHandlers.SetReady)
		}
	}

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
