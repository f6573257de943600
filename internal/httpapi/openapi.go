package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/corehost/platform/internal/plugins"
)

// openAPIHandler renders the aggregated OpenAPI 3.0 document. Gated by
// the applications.manage rule (spec.md §6) since the document reveals
// every installed plugin's route surface and access-rule requirements.
func openAPIHandler(source plugins.OpenAPISourceFunc) gin.HandlerFunc {
	sanitizer := bluemonday.StrictPolicy()

	return func(c *gin.Context) {
		var ops []plugins.OperationDoc
		if source != nil {
			ops = source()
		}

		paths := map[string]interface{}{}
		for _, op := range ops {
			methodDoc := gin.H{
				"summary":     sanitizer.Sanitize(op.Summary),
				"description": sanitizer.Sanitize(op.Description),
				"x-orpc-meta": gin.H{
					"pluginId":   op.PluginID,
					"accessRule": op.AccessRule,
				},
				"responses": gin.H{
					"200": gin.H{"description": "success"},
				},
			}

			entry, ok := paths[op.Path].(gin.H)
			if !ok {
				entry = gin.H{}
			}
			entry[methodKey(op.Method)] = methodDoc
			paths[op.Path] = entry
		}

		c.JSON(http.StatusOK, gin.H{
			"openapi": "3.0.3",
			"info": gin.H{
				"title":   "corehost platform API",
				"version": "1.0.0",
			},
			"paths": paths,
		})
	}
}

func methodKey(method string) string {
	switch method {
	case "", "GET":
		return "get"
	case "POST":
		return "post"
	case "PATCH":
		return "patch"
	case "PUT":
		return "put"
	case "DELETE":
		return "delete"
	default:
		return "get"
	}
}
