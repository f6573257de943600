package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/apierr"
)

// registerAuthRoutes wires the session login/logout surface. Service
// tokens and application tokens need no HTTP endpoints here - they are
// verified directly out of the Authorization header by auth.Middleware.
func registerAuthRoutes(router *gin.Engine, deps Deps) {
	group := router.Group("/api/auth")

	group.POST("/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}

		user, err := deps.Users.VerifyPassword(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}

		token, err := deps.Sessions.CreateSession(c.Request.Context(), user.ID)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	})

	group.POST("/logout", func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Status(http.StatusNoContent)
			return
		}
		if err := deps.Sessions.Revoke(c.Request.Context(), token); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
