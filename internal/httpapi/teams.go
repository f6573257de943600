package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/auth"
)

func registerTeamRoutes(router *gin.Engine, deps Deps) {
	group := router.Group("/api/teams")
	group.Use(auth.RequireAuthenticated())

	group.GET("", func(c *gin.Context) {
		teams, err := deps.Teams.ListTeams(c.Request.Context())
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, teams)
	})

	group.POST("", auth.RequireRule(access.RuleTeamsManage), func(c *gin.Context) {
		var req struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
		}
		if !bindJSON(c, &req) {
			return
		}
		team, err := deps.Teams.CreateTeam(c.Request.Context(), req.Name, req.Description)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusCreated, team)
	})

	group.GET("/:id", func(c *gin.Context) {
		team, err := deps.Teams.GetTeam(c.Request.Context(), c.Param("id"))
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, team)
	})

	group.DELETE("/:id", auth.RequireRule(access.RuleTeamsManage), func(c *gin.Context) {
		if err := deps.Teams.DeleteTeam(c.Request.Context(), c.Param("id")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.POST("/:id/members/:userId", requireTeamManager(deps), func(c *gin.Context) {
		if err := deps.Teams.AddMember(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.DELETE("/:id/members/:userId", requireTeamManager(deps), func(c *gin.Context) {
		if err := deps.Teams.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.PUT("/:id/managers/:userId", auth.RequireRule(access.RuleTeamsManage), func(c *gin.Context) {
		if err := deps.Teams.SetManager(c.Request.Context(), c.Param("id"), c.Param("userId"), true); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.DELETE("/:id/managers/:userId", auth.RequireRule(access.RuleTeamsManage), func(c *gin.Context) {
		if err := deps.Teams.SetManager(c.Request.Context(), c.Param("id"), c.Param("userId"), false); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.PUT("/resources/:type/:id/access", auth.RequireRule(access.RuleTeamsManage), func(c *gin.Context) {
		var req struct {
			TeamID    string `json:"teamId" binding:"required"`
			CanRead   bool   `json:"canRead"`
			CanManage bool   `json:"canManage"`
		}
		if !bindJSON(c, &req) {
			return
		}
		grant := access.ResourceTeamAccess{
			ResourceType: c.Param("type"),
			ResourceID:   c.Param("id"),
			TeamID:       req.TeamID,
			CanRead:      req.CanRead,
			CanManage:    req.CanManage,
		}
		if err := deps.Teams.GrantResourceAccess(c.Request.Context(), grant); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.DELETE("/resources/:type/:id/access/:teamId", auth.RequireRule(access.RuleTeamsManage), func(c *gin.Context) {
		if err := deps.Teams.RevokeResourceAccess(c.Request.Context(), c.Param("type"), c.Param("id"), c.Param("teamId")); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	group.PUT("/resources/:type/:id/team-only", auth.RequireRule(access.RuleTeamsManage), func(c *gin.Context) {
		var req struct {
			TeamOnly bool `json:"teamOnly"`
		}
		if !bindJSON(c, &req) {
			return
		}
		if err := deps.Teams.SetResourceTeamOnly(c.Request.Context(), c.Param("type"), c.Param("id"), req.TeamOnly); err != nil {
			apierr.HandleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

// requireTeamManager admits either a platform-level teams.manage rule
// holder or that specific team's manager (spec.md §3's team-scoped ACL
// model: team membership management is delegated to team managers,
// not limited to platform admins).
func requireTeamManager(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.CallerFrom(c)
		if caller.HasRule("teams.manage") {
			c.Next()
			return
		}
		isManager, err := deps.Teams.IsManager(c.Request.Context(), c.Param("id"), caller.UserID)
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		if !isManager {
			apierr.AbortWithError(c, apierr.Forbidden("you do not manage this team"))
			return
		}
		c.Next()
	}
}
