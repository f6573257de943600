// Package plugins implements the plugin host (spec.md §4): discovery,
// dependency-ordered initialization, the service registry, extension
// points, and request routing to each plugin's HTTP surface.
//
// Grounded on the teacher's plugin package (internal/plugins/*.go):
// same init()-time auto-registration idiom for built-in plugins
// (registry.go), generalized into a three-phase lifecycle the teacher
// does not have (the teacher loads every plugin the same way; this
// host additionally topologically orders them by declared dependency
// and runs a second "every plugin is up" pass afterward).
package plugins

import (
	"context"
)

// Handler is the contract every plugin implements. A plugin that only
// cares about some hooks should embed Base to get no-op defaults for
// the rest (teacher's BasePlugin pattern, base_plugin.go).
type Handler interface {
	// ID is the plugin's namespace, used for its schema
	// (plugin_<id>), its access rule prefix (<id>.<local>), and its
	// route prefix (/api/<id>/*).
	ID() string

	// Dependencies names the plugin ids and service refs (ServiceRegistry,
	// services.go) this plugin's Init needs already registered; plugin
	// ids drive topological init ordering (spec.md §4.5.3).
	Dependencies() []string

	// RegisterAccessRules declares the access rules this plugin owns,
	// consumed by internal/access's Sync during Init (spec.md §4.6.1).
	RegisterAccessRules() []AccessRuleDecl

	// Init runs once per plugin in dependency order during Phase 2 of
	// boot. A plugin registers its services and extension-point
	// contributions here (spec.md §4.5.3).
	Init(ctx context.Context, rc *RequestContext) error

	// AfterPluginsReady runs once, after every plugin's Init has
	// completed (Phase 3, spec.md §4.5.4) - for wiring that needs
	// another plugin's service to already be registered.
	AfterPluginsReady(ctx context.Context, rc *RequestContext) error

	// OnUninstall runs when Manager.Uninstall removes this plugin
	// (spec.md §4.5.5), before its access rules are deregistered and its
	// schema is dropped. No ordering across plugins is applied.
	// Implementations should treat this as best-effort cleanup.
	OnUninstall(ctx context.Context, rc *RequestContext) error

	// Manifest describes this plugin for the plugin table and the
	// /api/plugins frontend discovery endpoint (spec.md §3, §6).
	Manifest() Manifest
}

// Manifest is a plugin's self-description, recorded to the plugin
// table by the lifecycle manager on every Init (spec.md §3: "created
// on local discovery or remote install; updated on rename").
type Manifest struct {
	// Path is the filesystem or URL location a frontend loads this
	// plugin's assets from; empty for a backend-only plugin.
	Path string

	// Type is one of "backend", "frontend", or "common".
	Type string

	// IsUninstallable marks a plugin that Manager.Uninstall may remove;
	// Uninstall refuses every plugin without it (spec.md §3).
	IsUninstallable bool
}

// AccessRuleDecl mirrors access.DeclaredRule without importing the
// access package from here, keeping plugins free of a dependency on
// the access-control internals beyond this declaration shape.
type AccessRuleDecl struct {
	Local                  string
	Description            string
	IsAuthenticatedDefault bool
	IsPublicDefault        bool
}

// Base gives plugins no-op defaults for every Handler method except
// ID, so a plugin need only override what it actually uses (teacher's
// BasePlugin, base_plugin.go).
type Base struct{}

func (Base) Dependencies() []string                                   { return nil }
func (Base) RegisterAccessRules() []AccessRuleDecl                    { return nil }
func (Base) Init(context.Context, *RequestContext) error              { return nil }
func (Base) AfterPluginsReady(context.Context, *RequestContext) error { return nil }
func (Base) OnUninstall(context.Context, *RequestContext) error       { return nil }
func (Base) Manifest() Manifest                                       { return Manifest{Type: "backend"} }

// Factory constructs a fresh Handler instance, the teacher's
// PluginFactory shape (registry.go) kept verbatim in name and purpose.
type Factory func() Handler
