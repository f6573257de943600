package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/auth"
)

func registerUserRoutes(router *gin.Engine, deps Deps) {
	group := router.Group("/api/users")
	group.Use(auth.RequireRule(access.RuleUsersManage))

	group.GET("", func(c *gin.Context) {
		users, err := deps.Users.ListUsers(c.Request.Context())
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	})

	group.POST("", func(c *gin.Context) {
		var req access.CreateUserRequest
		if !bindJSON(c, &req) {
			return
		}
		user, err := deps.Users.CreateUser(c.Request.Context(), req)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	})

	group.GET("/:id", func(c *gin.Context) {
		user, err := deps.Users.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	})

	group.PATCH("/:id", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if err := deps.Users.UpdateProfile(c.Request.Context(), c.Param("id"), req.Name); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.DELETE("/:id", func(c *gin.Context) {
		if err := deps.Users.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.POST("/:id/roles/:roleId", func(c *gin.Context) {
		if forbidSelfRoleEscalation(c, deps.Roles, c.Param("roleId")) {
			return
		}
		if err := deps.Roles.AssignRole(c.Request.Context(), c.Param("id"), c.Param("roleId")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.DELETE("/:id/roles/:roleId", func(c *gin.Context) {
		if forbidSelfRoleEscalation(c, deps.Roles, c.Param("roleId")) {
			return
		}
		if err := deps.Roles.RevokeRole(c.Request.Context(), c.Param("id"), c.Param("roleId")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
