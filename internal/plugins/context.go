package plugins

import (
	"context"
	"database/sql"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/corehost/platform/internal/dbproxy"
	"github.com/corehost/platform/internal/eventbus"
)

// RequestContext is handed to every plugin hook and HTTP handler. It
// bundles the host-provided facilities a plugin needs instead of
// letting plugins reach into global state directly, the same
// dependency-handed-down shape as the teacher's cmd/main.go wiring
// (everything built in main and passed down) but packaged per-call
// rather than per-process.
type RequestContext struct {
	PluginID string
	Logger   zerolog.Logger

	Services   *ServiceRegistry
	Extensions *ExtensionPointManager
	EventBus   *eventbus.EventBus
	DB         *dbproxy.Proxy

	// Router is only non-nil during Init, letting a plugin mount its
	// own routes under /api/<pluginId>/* (spec.md §4.5.3).
	Router *gin.RouterGroup

	// rawDB is used only by the lifecycle manager itself (schema
	// creation, rule sync) - plugins always go through DB (dbproxy).
	rawDB *sql.DB
}

// Scoped binds this plugin's schema onto ctx so a dbproxy.Scoped call
// made with the result runs against plugin_<id> (spec.md §4.2).
func (rc *RequestContext) Scoped(ctx context.Context) context.Context {
	return dbproxy.WithPlugin(ctx, rc.PluginID)
}
