package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/auth"
)

func registerRoleRoutes(router *gin.Engine, deps Deps) {
	group := router.Group("/api/roles")
	group.Use(auth.RequireRule(access.RuleUsersManage))

	group.GET("", func(c *gin.Context) {
		roles, err := deps.Roles.ListRoles(c.Request.Context())
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, roles)
	})

	group.POST("", func(c *gin.Context) {
		var req struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
		}
		if !bindJSON(c, &req) {
			return
		}
		role, err := deps.Roles.CreateRole(c.Request.Context(), req.Name, req.Description)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, role)
	})

	group.DELETE("/:id", func(c *gin.Context) {
		if forbidSelfRoleEscalation(c, deps.Roles, c.Param("id")) {
			return
		}
		if err := deps.Roles.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.PUT("/:id/rules", func(c *gin.Context) {
		if forbidSelfRoleEscalation(c, deps.Roles, c.Param("id")) {
			return
		}
		var req struct {
			RuleIDs []string `json:"ruleIds" binding:"required"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if err := deps.Roles.SetRoleRules(c.Request.Context(), c.Param("id"), req.RuleIDs); err != nil {
			apierr.HandleError(c, err)
			return
		}
		// A role's rule set changing can change the anonymous role's
		// effective access, since the anonymous cache is keyed off
		// role_access_rule directly (internal/access/evaluator.go).
		deps.Evaluator.InvalidateAnonymousRules()
		c.Status(http.StatusNoContent)
	})
}

// forbidSelfRoleEscalation aborts the request with FORBIDDEN if the
// resolved caller currently holds roleID. A caller cannot edit a role's
// rule set, delete it, or (re)assign it while they are themselves a
// member of it (spec.md §8 scenario 6) - otherwise they could grant
// themselves more access than the role they were assigned. Returns true
// if the request was aborted, in which case the handler must return
// immediately.
func forbidSelfRoleEscalation(c *gin.Context, roles *access.RoleRepo, roleID string) bool {
	caller := auth.CallerFrom(c)
	holds, err := roles.UserHasRole(c.Request.Context(), caller.UserID, roleID)
	if err != nil {
		apierr.HandleError(c, err)
		return true
	}
	if holds {
		apierr.HandleError(c, apierr.Forbidden("cannot modify a role you currently hold"))
		return true
	}
	return false
}
