package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	Base
	id   string
	deps []string
}

func (s *stubHandler) ID() string             { return s.id }
func (s *stubHandler) Dependencies() []string { return s.deps }

func TestResolveOrderRespectsDependencies(t *testing.T) {
	m := &Manager{handlers: map[string]Handler{
		"billing": &stubHandler{id: "billing", deps: []string{"accounts"}},
		"accounts": &stubHandler{id: "accounts"},
	}}

	order, err := m.resolveOrder()
	require.NoError(t, err)

	accountsIdx, billingIdx := -1, -1
	for i, id := range order {
		switch id {
		case "accounts":
			accountsIdx = i
		case "billing":
			billingIdx = i
		}
	}
	assert.True(t, accountsIdx < billingIdx, "accounts must initialize before billing")
}

func TestResolveOrderDetectsCycle(t *testing.T) {
	m := &Manager{handlers: map[string]Handler{
		"a": &stubHandler{id: "a", deps: []string{"b"}},
		"b": &stubHandler{id: "b", deps: []string{"a"}},
	}}

	_, err := m.resolveOrder()
	assert.Error(t, err)
}

func TestExtensionPointBuffersCallsUntilImplemented(t *testing.T) {
	point := NewExtensionPoint()

	done := make(chan interface{}, 1)
	go func() {
		v, _ := point.Call("greet", "world")
		done <- v
	}()

	point.SetImpl(func(method string, args []interface{}) (interface{}, error) {
		return method + ":" + args[0].(string), nil
	})

	select {
	case v := <-done:
		assert.Equal(t, "greet:world", v)
	case <-context.Background().Done():
		t.Fatal("call never resolved")
	}
}

func TestServiceRegistryFactoryMemoizesPerCaller(t *testing.T) {
	reg := NewServiceRegistry()
	calls := map[string]int{}
	reg.RegisterFactory("logger", func(callerPluginID string) interface{} {
		calls[callerPluginID]++
		return callerPluginID + "-logger"
	})

	v1, err := reg.Resolve("logger", "billing")
	require.NoError(t, err)
	v2, err := reg.Resolve("logger", "billing")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls["billing"])
}

func TestServiceRegistryResolveMissingReturnsNotFound(t *testing.T) {
	reg := NewServiceRegistry()
	_, err := reg.Resolve("missing", "billing")
	assert.Error(t, err)
}
