package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver is implemented by stats.Collector.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	TrackInFlight() func()
}

// Metrics tracks in-flight requests and records every finished request.
func Metrics(obs RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		release := obs.TrackInFlight()
		defer release()

		c.Next()

		obs.ObserveRequest(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}
