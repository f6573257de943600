// Package logger provides the structured logging used across the plugin
// host and handed out to plugins through their RequestContext.
//
// Every plugin receives a logger pre-tagged with its plugin id
// (RequestContext.Logger, set by the plugin lifecycle manager), so log
// aggregation can filter by plugin without each plugin remembering to
// add the field itself:
//
//	{"level":"info","plugin":"streamspace-billing","message":"invoice issued","time":"..."}
//
// The underlying engine is zerolog: zero-allocation structured logging,
// consistent with the rest of the ambient stack.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil {
		level = lv
	}
	base = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// Root returns the process-wide base logger, for components that are not
// scoped to a single plugin (the lifecycle manager itself, the HTTP
// server, migrations).
func Root() zerolog.Logger {
	return base
}

// ForPlugin returns a logger tagged with plugin=<id>. The plugin lifecycle
// manager hands one of these to every plugin's init/afterPluginsReady call
// via the RequestContext.
func ForPlugin(pluginID string) zerolog.Logger {
	return base.With().Str("plugin", pluginID).Logger()
}

// ForComponent tags a logger with a core component name (eventbus,
// lifecycle, dbproxy, access) instead of a plugin id.
func ForComponent(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
