package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/grovelab/grove/internal/adapters/signal"
	"github.com/grovelab/grove/internal/app"
	"github.com/grovelab/grove/internal/config"
	"github.com/grovelab/grove/internal/domain"
)

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("GroveSession", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := &signal.Controller{
		Orch:       orch,
		ReadLimit:  cfg.WS.ReadLimit,
		PingPeriod: cfg.WS.PingPeriod,
		SendBuffer: cfg.WS.SendBuffer,
	}

	api := r.Group("/api")

	// The token issuer/verifier lives outside this service; this endpoint
	// is the seam it hands the verified identity off to.
	api.POST("/session", func(c *gin.Context) {
		var req struct {
			Login       string `json:"login" binding:"required"`
			Token       string `json:"token" binding:"required"`
			DisplayName string `json:"display_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing login or token"})
			return
		}
		if _, err := domain.NewUser(req.Login, req.DisplayName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess := sessions.Default(c)
		sess.Set("login", req.Login)
		sess.Set("token", req.Token)
		sess.Set("display_name", req.DisplayName)
		if err := sess.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": orch.Rooms.Rooms()})
	})

	// External epoch trigger (e.g. weekly season rollover).
	api.POST("/rooms/:id/reset", func(c *gin.Context) {
		if cfg.AdminSecret == "" || c.GetHeader("X-Admin-Secret") != cfg.AdminSecret {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		id := domain.RoomID(c.Param("id"))
		if !orch.Rooms.Exists(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, orch.ResetRoom(id))
	})

	api.GET("/ws", func(c *gin.Context) {
		ctrl.Handle(ctx, c)
	})

	return r
}
