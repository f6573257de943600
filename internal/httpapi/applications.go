package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/auth"
)

func registerApplicationRoutes(router *gin.Engine, deps Deps) {
	group := router.Group("/api/applications")
	group.Use(auth.RequireRule(access.RuleApplicationsManage))

	group.GET("", func(c *gin.Context) {
		apps, err := deps.Applications.ListApplications(c.Request.Context())
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, apps)
	})

	group.POST("", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}
		app, issued, err := deps.Applications.CreateApplication(c.Request.Context(), req.Name)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"application": app, "token": issued.Token})
	})

	group.POST("/:id/token", func(c *gin.Context) {
		issued, err := deps.Applications.RegenerateToken(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": issued.Token})
	})

	group.DELETE("/:id", func(c *gin.Context) {
		if err := deps.Applications.DeleteApplication(c.Request.Context(), c.Param("id")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.POST("/:id/teams/:teamId", func(c *gin.Context) {
		if err := deps.Applications.GrantTeam(c.Request.Context(), c.Param("id"), c.Param("teamId")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.DELETE("/:id/teams/:teamId", func(c *gin.Context) {
		if err := deps.Applications.RevokeTeam(c.Request.Context(), c.Param("id"), c.Param("teamId")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
