package routes

import (
	"MedicChat/controllers"
	"MedicChat/middleware"
	"MedicChat/pkg/config"
	"MedicChat/pkg/relay"
	svc "MedicChat/pkg/services"
	"MedicChat/pkg/store"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	customerRoutes "MedicChat/routes/customers"
	healthRoutes "MedicChat/routes/health"
	messageRoutes "MedicChat/routes/messages"
	websocketRoutes "MedicChat/routes/websocket"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Chat      *svc.ChatService
	Customers *store.CustomerStore
	Hub       *relay.Hub
	DB        controllers.Pinger
	Config    *config.Config
	Log       zerolog.Logger
}

// NewEngine builds the gin engine with middleware and all routes.
func NewEngine(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Log.With().Str("component", "http").Logger()))

	// CORS configuration
	corsCfg := cors.Config{
		AllowOrigins:     d.Config.Origins(),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	RegisterRoutes(r, d)
	return r
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	healthRoutes.Register(r, d.DB, d.Hub)

	rl := middleware.NewRateLimiter(d.Config.RateLimitWindow(), d.Config.RateLimitCapacity)
	websocketRoutes.Register(r, d.Hub, d.Chat, d.Config, rl, d.Log)

	protected := r.Group("/")
	protected.Use(middleware.AuthMiddleware(d.Config.JWTSecret))
	messageRoutes.Register(protected, d.Chat, rl, d.Log)
	customerRoutes.Register(protected, d.Customers, d.Log)
}
