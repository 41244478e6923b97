package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/lostmerchants/tracker/internal/config"
	"github.com/lostmerchants/tracker/internal/handler"
	"github.com/lostmerchants/tracker/internal/middleware"
)

// RegisterRoutes registers the service's two endpoints on the provided Echo
// instance: the health probe and the websocket entry point.  Every client
// operation travels over the websocket, so the upgrade route carries the
// whole middleware chain — optional strong-identity extraction first (the
// rate limiter keys on it), then the Redis token bucket throttling
// connection churn.
func RegisterRoutes(e *echo.Echo, ws *handler.WS, cfg config.Config, rl config.RateLimitConfig, rdb *redis.Client) {
	// The health endpoint stays outside the middleware chain so probes are
	// never rate limited.
	e.GET("/healthz", handler.Health)

	e.GET("/v1/ws", ws.Serve,
		middleware.OptionalAuth(cfg.JWTSecret),
		middleware.NewTokenBucket(rl, rdb),
	)
}
