package messages

import (
	"MedicChat/controllers"
	"MedicChat/middleware"
	svc "MedicChat/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Register registers conversation routes; g carries auth when enabled.
func Register(g *gin.RouterGroup, chat *svc.ChatService, rl *middleware.RateLimiter, log zerolog.Logger) {
	g.GET("/messages/:customer_id", controllers.GetMessages(chat, log))
	// rate limiting on the write path only
	g.POST("/messages", rl.Handler(), controllers.SendMessage(chat))
}
