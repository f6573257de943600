package plugins

import "sync"

// bufferedCall records one call made against an extension point before
// its real implementation was registered.
type bufferedCall struct {
	method string
	args   []interface{}
	result chan extensionResult
}

type extensionResult struct {
	value interface{}
	err   error
}

// extensionPoint buffers calls made before Impl is set, then replays
// them once it is (spec.md §4.4): plugins discovered early may call an
// extension point a later plugin provides, and since Init order only
// guarantees declared Dependencies are satisfied - not every extension
// point - the buffered-proxy pattern lets the caller block until Phase
// 3 instead of failing outright.
//
// This is the Go-native reshaping of a dynamic-property-interception
// design: Go has no equivalent to a Proxy object that intercepts
// arbitrary method calls, so ExtensionPoint exposes a single Call
// entry point keyed by method name instead.
type ExtensionPoint struct {
	mu      sync.Mutex
	impl    ExtensionImpl
	pending []*bufferedCall
}

// ExtensionImpl is the real handler a plugin supplies once it is ready
// to service calls made against its extension point.
type ExtensionImpl func(method string, args []interface{}) (interface{}, error)

func NewExtensionPoint() *ExtensionPoint {
	return &ExtensionPoint{}
}

// Call invokes method against the extension point's implementation.
// If no implementation has been registered yet, the call is buffered
// and blocks until SetImpl supplies one; there is no timeout or
// cancellation. Boot logs every extension point still unset once
// AfterPluginsReady has run for all plugins.
func (e *ExtensionPoint) Call(method string, args ...interface{}) (interface{}, error) {
	e.mu.Lock()
	if e.impl != nil {
		impl := e.impl
		e.mu.Unlock()
		return impl(method, args)
	}

	call := &bufferedCall{method: method, args: args, result: make(chan extensionResult, 1)}
	e.pending = append(e.pending, call)
	e.mu.Unlock()

	res := <-call.result
	return res.value, res.err
}

// SetImpl registers the real implementation and replays every call
// buffered while none existed, in the order they arrived.
func (e *ExtensionPoint) SetImpl(impl ExtensionImpl) {
	e.mu.Lock()
	e.impl = impl
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, call := range pending {
		value, err := impl(call.method, call.args)
		call.result <- extensionResult{value: value, err: err}
	}
}

// HasImpl reports whether SetImpl has already run.
func (e *ExtensionPoint) HasImpl() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.impl != nil
}

// ExtensionPointManager is the named collection of extension points a
// plugin exposes for others to hook into, one ExtensionPoint per
// declared name (spec.md §4.4).
type ExtensionPointManager struct {
	mu     sync.RWMutex
	points map[string]*ExtensionPoint
}

func NewExtensionPointManager() *ExtensionPointManager {
	return &ExtensionPointManager{points: make(map[string]*ExtensionPoint)}
}

// Point returns the named extension point, creating it on first
// reference so either the declaring plugin or an early caller can
// reach it regardless of initialization order.
func (m *ExtensionPointManager) Point(name string) *ExtensionPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.points[name]; ok {
		return p
	}
	p := NewExtensionPoint()
	m.points[name] = p
	return p
}

// Unresolved returns the names of every extension point that still has
// no implementation, for a diagnostic check after Phase 3 completes.
func (m *ExtensionPointManager) Unresolved() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, p := range m.points {
		if !p.HasImpl() {
			names = append(names, name)
		}
	}
	return names
}
