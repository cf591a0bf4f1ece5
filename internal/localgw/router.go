package localgw

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-proxy-bridge/internal/config"
	"lambda-proxy-bridge/internal/middleware"
)

// TokenPath is where the development authorizer issues bearer tokens
const TokenPath = "/dev/token"

// NewRouter sets up the emulator's HTTP routes. Every request not claimed
// by the emulator itself is forwarded to the bridge.
func NewRouter(g *Gateway, cfg config.LocalConfig, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins...))
	router.Use(middleware.SecurityHeaders())
	if cfg.RateLimit > 0 {
		router.Use(middleware.RateLimiter(cfg.RateLimit, cfg.RateBurst))
	}

	if g.opts.Authorizer != nil {
		router.POST(TokenPath, g.IssueToken)
	}

	router.NoRoute(g.Serve)
	return router
}
