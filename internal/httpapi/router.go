// Package httpapi assembles the Gin router the platform process
// listens on: the access-control CRUD surface, the JWKS and OpenAPI
// aggregation endpoints, the realtime signals websocket, and the
// mount point plugins attach their own routes under
// (internal/plugins' lifecycle manager calls router.Group("/api/<id>")
// directly, so this package never needs to know which plugins exist).
//
// Grounded on the teacher's cmd/main.go router assembly: ordered
// middleware chain (recovery, logging, CORS), route groups scoped by
// RequireRule the way the teacher scopes groups by RequireRole.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/auth"
	"github.com/corehost/platform/internal/logger"
	"github.com/corehost/platform/internal/plugins"
)

// Deps bundles everything the router needs to wire request handlers,
// built once in cmd/server/main.go and passed down.
type Deps struct {
	Authenticator  *auth.Authenticator
	ServiceIssuer  *auth.ServiceTokenIssuer
	Sessions       *auth.SessionStore
	Users          *access.UserRepo
	Roles          *access.RoleRepo
	Teams          *access.TeamRepo
	Applications   *access.ApplicationRepo
	Onboarding     *access.OnboardingRepo
	Evaluator      *access.Evaluator
	Plugins        *plugins.PluginRepo
	CORSOrigins    []string
	OpenAPISources plugins.OpenAPISourceFunc
}

// New builds the Gin engine. Plugin routes are mounted afterward by
// the lifecycle manager's Boot/Install against the returned engine.
func New(deps Deps) *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(apierr.Recovery())
	router.Use(ginLogger())
	router.Use(corsMiddleware(deps.CORSOrigins))
	router.Use(apierr.ErrorHandler())
	router.Use(auth.Middleware(deps.Authenticator))

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	router.GET("/.well-known/jwks.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.ServiceIssuer.JWKS())
	})

	router.GET("/api/openapi.json", auth.RequireRule(access.RuleApplicationsManage), openAPIHandler(deps.OpenAPISources))

	registerOnboardingRoutes(router, deps)
	registerAuthRoutes(router, deps)
	registerUserRoutes(router, deps)
	registerRoleRoutes(router, deps)
	registerTeamRoutes(router, deps)
	registerApplicationRoutes(router, deps)
	registerPluginsRoute(router, deps)

	return router
}

func ginLogger() gin.HandlerFunc {
	log := logger.ForComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// corsMiddleware allows only explicitly configured origins, the same
// allow-list approach as the teacher's corsMiddleware (cmd/main.go),
// generalized to cover the signals websocket's upgrade headers too.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:3000"}
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		for _, o := range allowed {
			if o == origin {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
				break
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Extensions")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		apierr.AbortWithError(c, apierr.BadRequest(strings.TrimSpace(err.Error())))
		return false
	}
	return true
}
