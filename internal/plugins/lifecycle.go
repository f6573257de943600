package plugins

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/apierr"
	"github.com/corehost/platform/internal/dbproxy"
	"github.com/corehost/platform/internal/eventbus"
	"github.com/corehost/platform/internal/logger"
)

// Manager drives the plugin host's three-phase boot (spec.md §4.5):
//  1. Register - every plugin's factory runs, producing a Handler and
//     recording its declared Dependencies and access rules, but no
//     plugin code beyond construction executes yet.
//  2. Init - plugins run in an order that respects the dependency
//     graph (a topological sort), each getting a RequestContext scoped
//     to its own id.
//  3. AfterPluginsReady - every plugin runs a second hook, now free to
//     assume every other plugin's services and extension points exist.
type Manager struct {
	db         *sql.DB
	proxy      *dbproxy.Proxy
	bus        *eventbus.EventBus
	services   *ServiceRegistry
	extensions *ExtensionPointManager
	rules      *access.RuleRepo
	roles      *access.RoleRepo
	evaluator  *access.Evaluator
	manifests  *PluginRepo

	handlers map[string]Handler
	order    []string
	remote   map[string]bool // true for plugins added via Install, not RegisterBuiltins
}

func NewManager(db *sql.DB, proxy *dbproxy.Proxy, bus *eventbus.EventBus, rules *access.RuleRepo, roles *access.RoleRepo, evaluator *access.Evaluator) *Manager {
	return &Manager{
		db:         db,
		proxy:      proxy,
		bus:        bus,
		services:   NewServiceRegistry(),
		extensions: NewExtensionPointManager(),
		rules:      rules,
		roles:      roles,
		evaluator:  evaluator,
		manifests:  NewPluginRepo(db),
		handlers:   make(map[string]Handler),
		remote:     make(map[string]bool),
	}
}

// Services exposes the shared service registry, for the HTTP layer to
// resolve the "auth" / "eventBus" style core services plugins and
// middleware both depend on.
func (m *Manager) Services() *ServiceRegistry { return m.services }

// Extensions exposes the shared extension-point manager.
func (m *Manager) Extensions() *ExtensionPointManager { return m.extensions }

// RegisterBuiltins constructs a Handler from every factory in the
// global built-in registry (populated by plugin init() calls) and adds
// it to this boot's plugin set - Phase 1 (spec.md §4.5.2).
func (m *Manager) RegisterBuiltins() {
	for id, factory := range GlobalRegistry().All() {
		m.handlers[id] = factory()
	}
}

// RegisterHandler adds a single already-constructed Handler, used for
// plugins discovered from a catalog/database row rather than a
// compiled-in factory, and by tests.
func (m *Manager) RegisterHandler(h Handler) {
	m.handlers[h.ID()] = h
}

// resolveOrder topologically sorts registered plugins by Dependencies,
// returning apierr.DependencyCycle if the graph is not a DAG. A
// dependency that names no registered plugin is skipped here;
// initPlugin checks it against the service registry. Plugins with no
// ordering constraint between them are ordered by id (alphabetically),
// not by registration order, so boot order does not change between
// runs with the same plugin set.
func (m *Manager) resolveOrder() ([]string, error) {
	ids := make([]string, 0, len(m.handlers))
	for id := range m.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	visited := make(map[string]int) // 0 unvisited, 1 in-progress, 2 done
	var order []string

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch visited[id] {
		case 2:
			return nil
		case 1:
			return apierr.DependencyCycle(fmt.Sprintf("%v -> %s", path, id))
		}
		visited[id] = 1

		handler, ok := m.handlers[id]
		if ok {
			for _, dep := range handler.Dependencies() {
				if _, exists := m.handlers[dep]; !exists {
					continue // dependency may be a core service ref, not a plugin id
				}
				if err := visit(dep, append(path, id)); err != nil {
					return err
				}
			}
		}

		visited[id] = 2
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id, nil); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// Boot runs Phase 2 and Phase 3 for every registered plugin against
// router, on which each plugin's Init gets its own "/api/<id>" route
// group.
//
// Before Phase 2 starts, Boot reconciles access_rule across every
// plugin this boot has registered in one pass (spec.md §4.5.4's full
// sync), merged with the core HTTP surface's own pseudo-plugin rules
// (access.CoreDeclaredRules) - this is what prunes a plugin's granted
// rules when it is simply left out of RegisterBuiltins one boot,
// rather than only ever cleaning up on an explicit Uninstall.
func (m *Manager) Boot(ctx context.Context, router *gin.Engine) error {
	order, err := m.resolveOrder()
	if err != nil {
		return err
	}
	m.order = order

	declaredByPlugin := access.CoreDeclaredRules()
	for id, handler := range m.handlers {
		declared := make([]access.DeclaredRule, 0, len(handler.RegisterAccessRules()))
		for _, d := range handler.RegisterAccessRules() {
			declared = append(declared, access.DeclaredRule{
				Local:                  d.Local,
				Description:            d.Description,
				IsAuthenticatedDefault: d.IsAuthenticatedDefault,
				IsPublicDefault:        d.IsPublicDefault,
			})
		}
		declaredByPlugin[id] = declared
	}
	if err := m.rules.FullSync(ctx, declaredByPlugin); err != nil {
		return fmt.Errorf("rule full sync: %w", err)
	}
	m.evaluator.InvalidateAnonymousRules()

	for _, id := range order {
		if err := m.initPlugin(ctx, id, router); err != nil {
			return err
		}
	}

	for _, id := range order {
		handler := m.handlers[id]
		rc := m.requestContextFor(id, nil)
		if err := handler.AfterPluginsReady(ctx, rc); err != nil {
			return apierr.Internal(fmt.Errorf("plugin %s afterPluginsReady: %w", id, err))
		}
	}

	if unresolved := m.extensions.Unresolved(); len(unresolved) > 0 {
		logger.Root().Warn().Strs("extension_points", unresolved).
			Msg("extension points have no implementation after boot completed")
	}

	return nil
}

func (m *Manager) initPlugin(ctx context.Context, id string, router *gin.Engine) error {
	handler := m.handlers[id]
	log := logger.ForPlugin(id)

	for _, dep := range handler.Dependencies() {
		if _, isPlugin := m.handlers[dep]; isPlugin {
			continue
		}
		if !m.services.Has(dep) {
			return apierr.UnregisteredRule(id, dep)
		}
	}

	if err := m.proxy.CreateSchema(ctx, id); err != nil {
		return fmt.Errorf("plugin %s schema: %w", id, err)
	}

	declared := make([]access.DeclaredRule, 0, len(handler.RegisterAccessRules()))
	for _, d := range handler.RegisterAccessRules() {
		declared = append(declared, access.DeclaredRule{
			Local:                  d.Local,
			Description:            d.Description,
			IsAuthenticatedDefault: d.IsAuthenticatedDefault,
			IsPublicDefault:        d.IsPublicDefault,
		})
	}
	if err := m.rules.Sync(ctx, id, declared); err != nil {
		return fmt.Errorf("plugin %s rule sync: %w", id, err)
	}

	usersRole, err := m.roles.GetRoleByName(ctx, access.RoleUsers)
	if err != nil {
		return err
	}
	anonRole, err := m.roles.GetRoleByName(ctx, access.RoleAnonymous)
	if err != nil {
		return err
	}
	if err := m.rules.ApplyDefaults(ctx, id, declared, usersRole.ID, anonRole.ID); err != nil {
		return fmt.Errorf("plugin %s rule defaults: %w", id, err)
	}
	m.evaluator.InvalidateAnonymousRules()

	manifest := handler.Manifest()
	if err := m.manifests.Upsert(ctx, PluginManifest{
		Name:            id,
		Path:            manifest.Path,
		Type:            manifest.Type,
		Enabled:         true,
		IsUninstallable: manifest.IsUninstallable,
	}); err != nil {
		return fmt.Errorf("plugin %s manifest: %w", id, err)
	}

	var group *gin.RouterGroup
	if router != nil {
		group = router.Group("/api/" + id)
	}
	rc := m.requestContextFor(id, group)

	if err := handler.Init(ctx, rc); err != nil {
		return apierr.Internal(fmt.Errorf("plugin %s init: %w", id, err))
	}

	log.Info().Msg("plugin initialized")
	return nil
}

func (m *Manager) requestContextFor(id string, router *gin.RouterGroup) *RequestContext {
	return &RequestContext{
		PluginID:   id,
		Logger:     logger.ForPlugin(id),
		Services:   m.services,
		Extensions: m.extensions,
		EventBus:   m.bus,
		DB:         m.proxy,
		Router:     router,
		rawDB:      m.db,
	}
}

// Install dynamically adds a plugin after boot has completed (spec.md
// §4.5.5): runs the same per-plugin Init sequence as Boot, then emits
// a plugins.installed event on the broker. Nothing in this package
// subscribes to that event, so other instances do not load the plugin
// from it.
func (m *Manager) Install(ctx context.Context, h Handler, router *gin.Engine) error {
	id := h.ID()
	if _, exists := m.handlers[id]; exists {
		return apierr.Conflict(fmt.Sprintf("plugin %q is already installed", id))
	}
	m.handlers[id] = h
	m.remote[id] = true

	if err := m.initPlugin(ctx, id, router); err != nil {
		delete(m.handlers, id)
		delete(m.remote, id)
		return err
	}

	rc := m.requestContextFor(id, nil)
	if err := h.AfterPluginsReady(ctx, rc); err != nil {
		return apierr.Internal(fmt.Errorf("plugin %s afterPluginsReady: %w", id, err))
	}

	m.order = append(m.order, id)

	if m.bus != nil {
		_ = m.bus.Emit(ctx, eventbus.Subject("plugins", "installed"), map[string]string{"pluginId": id})
	}

	return nil
}

// Uninstall removes a plugin whose manifest sets IsUninstallable (any
// other plugin is refused with FORBIDDEN): calls its OnUninstall hook,
// deregisters its access rules, and drops its schema. Cleanup runs LIFO relative
// to install order is the caller's responsibility when uninstalling
// multiple plugins at once (spec.md §4.5.5); a single Uninstall call
// only guarantees its own plugin's cleanup ordering (hook before
// schema drop).
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	handler, ok := m.handlers[id]
	if !ok {
		return apierr.NotFound("plugin")
	}
	if !handler.Manifest().IsUninstallable {
		return apierr.Forbidden(fmt.Sprintf("plugin %q is not uninstallable", id))
	}

	rc := m.requestContextFor(id, nil)
	if err := handler.OnUninstall(ctx, rc); err != nil {
		logger.ForPlugin(id).Error().Err(err).Msg("plugin uninstall hook failed, continuing cleanup")
	}

	if err := m.rules.DeregisterPlugin(ctx, id); err != nil {
		return err
	}
	m.evaluator.InvalidateAnonymousRules()

	if err := m.proxy.DropSchema(ctx, id); err != nil {
		return err
	}

	// Only a remotely installed plugin's manifest row is deleted here
	// (spec.md §3): a built-in discovered through RegisterBuiltins is
	// compiled into the binary and will simply reappear next boot, so
	// its manifest stays put rather than being erased by an uninstall.
	if m.remote[id] {
		if err := m.manifests.Delete(ctx, id); err != nil {
			return err
		}
	}

	delete(m.handlers, id)
	delete(m.remote, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	if m.bus != nil {
		_ = m.bus.Emit(ctx, eventbus.Subject("plugins", "uninstalled"), map[string]string{"pluginId": id})
	}

	return nil
}

// OperationDoc is one HTTP operation a plugin contributes to the
// aggregated OpenAPI document, plus the RPC metadata routing needs
// (which access rule gates it, which plugin owns it).
type OperationDoc struct {
	Method      string
	Path        string
	Summary     string
	Description string
	PluginID    string
	AccessRule  string
}

// OpenAPISourceFunc collects every currently-installed plugin's
// contributed operations, so the aggregation endpoint always reflects
// the live plugin set rather than a build-time snapshot (spec.md
// §4.5.5: plugins can be installed/uninstalled at runtime).
type OpenAPISourceFunc func() []OperationDoc

// OpenAPISources returns an OpenAPISourceFunc closed over this Manager,
// so the aggregation endpoint always walks the current m.handlers/m.order
// rather than a snapshot taken at boot - a plugin installed or
// uninstalled after boot changes what the next call returns. Each
// plugin's declared access rules become one documented operation apiece,
// namespaced under its own route prefix.
func (m *Manager) OpenAPISources() OpenAPISourceFunc {
	return func() []OperationDoc {
		var docs []OperationDoc
		for _, id := range m.order {
			handler, ok := m.handlers[id]
			if !ok {
				continue
			}
			for _, rule := range handler.RegisterAccessRules() {
				docs = append(docs, OperationDoc{
					Method:      http.MethodGet,
					Path:        fmt.Sprintf("/api/%s/%s", id, rule.Local),
					Summary:     rule.Description,
					Description: rule.Description,
					PluginID:    id,
					AccessRule:  fmt.Sprintf("%s.%s", id, rule.Local),
				})
			}
		}
		return docs
	}
}

// InstalledPlugins returns plugin ids in their resolved boot order.
func (m *Manager) InstalledPlugins() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
