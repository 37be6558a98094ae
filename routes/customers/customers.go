package customers

import (
	"MedicChat/controllers"
	"MedicChat/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Register registers the read-only customer directory.
func Register(g *gin.RouterGroup, dir *store.CustomerStore, log zerolog.Logger) {
	g.GET("/", controllers.ListCustomers(dir, false, log))
	g.GET("/customers", controllers.ListCustomers(dir, true, log))
	g.GET("/customer/:id", controllers.GetCustomer(dir, log))
}
