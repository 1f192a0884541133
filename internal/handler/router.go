package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fusioneventsak/Songrequest-DEVServer/internal/middleware"
	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// RouterConfig carries what route assembly needs.
type RouterConfig struct {
	JWTSecret    string
	SubmitPerSec float64
	SubmitBurst  int
	VotePerSec   float64
	VoteBurst    int
	InstanceID   string
}

// NewRouter assembles the gin engine. Shared by main and the handler tests so
// routes exist in exactly one place.
func NewRouter(cfg RouterConfig, requests *RequestHandler, wsHandler *WSHandler, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"instance_id": cfg.InstanceID,
			"timestamp":   time.Now(),
		})
	})

	submitLimiter := middleware.NewRateLimiter(cfg.SubmitPerSec, cfg.SubmitBurst)
	voteLimiter := middleware.NewRateLimiter(cfg.VotePerSec, cfg.VoteBurst)

	api := router.Group("/api/v1")
	{
		api.GET("/queue", requests.Queue)
		api.GET("/requests/:id", requests.Get)
		api.POST("/requests", submitLimiter.Middleware(), requests.Submit)
		api.POST("/requests/:id/votes", voteLimiter.Middleware(), requests.Vote)
	}

	operator := router.Group("/api/v1")
	operator.Use(middleware.OperatorAuth(cfg.JWTSecret, log))
	{
		operator.POST("/requests/:id/lock", requests.Lock)
		operator.DELETE("/requests/:id/lock", requests.Unlock)
		operator.POST("/requests/:id/played", requests.MarkPlayed)
		operator.POST("/queue/reset", requests.Reset)
	}

	if wsHandler != nil {
		router.GET("/ws", wsHandler.Serve)
	}

	return router
}
