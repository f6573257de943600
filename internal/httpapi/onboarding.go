package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/apierr"
)

func registerOnboardingRoutes(router *gin.Engine, deps Deps) {
	group := router.Group("/api/onboarding")

	group.GET("/status", func(c *gin.Context) {
		complete, err := deps.Onboarding.IsComplete(c.Request.Context())
		if err != nil {
			apierr.AbortWithError(c, apierr.Internal(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"complete": complete})
	})

	group.POST("/complete", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Name     string `json:"name" binding:"required"`
			Password string `json:"password" binding:"required,min=8"`
		}
		if !bindJSON(c, &req) {
			return
		}
		user, err := deps.Onboarding.Complete(c.Request.Context(), req.Email, req.Name, req.Password)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	})
}
