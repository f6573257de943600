package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/apierr"
)

// pluginManifestEntry is the wire shape spec.md §6 requires: enabled
// frontend plugins manifest "[{name, path}]", deliberately
// narrower than the full plugin table row.
type pluginManifestEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func registerPluginsRoute(router *gin.Engine, deps Deps) {
	router.GET("/api/plugins", func(c *gin.Context) {
		manifests, err := deps.Plugins.EnabledFrontendManifest(c.Request.Context())
		if err != nil {
			apierr.HandleError(c, err)
			return
		}
		out := make([]pluginManifestEntry, 0, len(manifests))
		for _, m := range manifests {
			out = append(out, pluginManifestEntry{Name: m.Name, Path: m.Path})
		}
		c.JSON(http.StatusOK, out)
	})
}
