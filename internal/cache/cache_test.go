package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledCacheIsSafeNoOp(t *testing.T) {
	c, err := New(Config{Enabled: false})
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.IsEnabled())

	assert.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, c.Delete(context.Background(), "k"))
	assert.NoError(t, c.DeletePattern(context.Background(), "k:*"))

	var target string
	assert.Error(t, c.Get(context.Background(), "k", &target))

	_, err = c.SetNX(context.Background(), "lock", "v", time.Minute)
	assert.Error(t, err)
}

func TestKeyHelpersAreStable(t *testing.T) {
	assert.Equal(t, "access:anonymous-rules", AnonymousRulesKey())
	assert.Equal(t, "plugins:install-lock:billing", PluginInstallLockKey("billing"))
}
