package health

import (
	"MedicChat/controllers"
	"MedicChat/pkg/relay"

	"github.com/gin-gonic/gin"
)

func Register(r *gin.Engine, db controllers.Pinger, hub *relay.Hub) {
	r.GET("/healthz", controllers.Health(db, hub))
}
