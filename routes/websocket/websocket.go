package websocket

import (
	"MedicChat/controllers"
	"MedicChat/middleware"
	"MedicChat/pkg/config"
	"MedicChat/pkg/relay"
	svc "MedicChat/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func Register(r *gin.Engine, hub *relay.Hub, chat *svc.ChatService, cfg *config.Config, rl *middleware.RateLimiter, log zerolog.Logger) {
	r.GET("/ws", middleware.QueryTokenAuth(cfg.JWTSecret), rl.Handler(), controllers.ChatWS(hub, chat, cfg.Origins(), log))
}
