package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/altamedica/signaling-server/internal/adapters/signal"
	"github.com/altamedica/signaling-server/internal/app"
	"github.com/altamedica/signaling-server/internal/config"
	"github.com/altamedica/signaling-server/internal/core"
)

// GuardMiddleware funnels every request through the single admission
// decision point before anything else runs.
func GuardMiddleware(guard *app.Guard, action app.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !guard.Allow(c.ClientIP(), "", action) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    core.CodeRateLimited,
				"message": "too many connection attempts",
			})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator, guard *app.Guard, verifier core.Verifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	started := time.Now()
	r.GET("/health", GuardMiddleware(guard, app.ActionHealth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"uptime":      time.Since(started).String(),
			"rooms":       coord.Rooms.Count(),
			"connections": coord.ConnCount(),
		})
	})

	api := r.Group("/api/v1")

	api.GET("/webrtc/config", GuardMiddleware(guard, app.ActionConfig), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": iceServers(cfg)})
	})

	ctl := signal.NewController(cfg, coord, verifier)
	api.GET("/ws/signal", GuardMiddleware(guard, app.ActionConnect), func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

// iceServers builds the STUN/TURN catalogue both peers must share so their
// candidate gathering agrees.
func iceServers(cfg *config.Config) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}
