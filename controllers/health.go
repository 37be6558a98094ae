package controllers

import (
	"MedicChat/pkg/relay"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports database reachability and the relay's client count.
func Health(db Pinger, hub *relay.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "clients": hub.ClientCount()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.ClientCount()})
	}
}
