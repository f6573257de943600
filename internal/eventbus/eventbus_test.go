package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "billing.invoice-issued", Subject("billing", "invoice-issued"))
}

func TestInstanceLocalDeliveredSynchronously(t *testing.T) {
	bus, err := New(Config{})
	require.NoError(t, err)

	var received []byte
	err = bus.Subscribe(context.Background(), "billing", "invoice-issued", ModeInstanceLocal, "", func(ctx context.Context, payload []byte) error {
		received = payload
		return nil
	})
	require.NoError(t, err)

	errs := bus.EmitLocal(context.Background(), "invoice-issued", map[string]string{"id": "inv-1"})
	assert.Empty(t, errs)
	assert.Contains(t, string(received), "inv-1")
}

func TestInstanceLocalCollectsFailuresWithoutStopping(t *testing.T) {
	bus, err := New(Config{})
	require.NoError(t, err)

	var secondCalled bool
	failing := func(ctx context.Context, payload []byte) error { return assert.AnError }
	ok := func(ctx context.Context, payload []byte) error { secondCalled = true; return nil }

	require.NoError(t, bus.Subscribe(context.Background(), "billing", "s", ModeInstanceLocal, "", failing))
	require.NoError(t, bus.Subscribe(context.Background(), "billing", "s", ModeInstanceLocal, "", ok))

	errs := bus.EmitLocal(context.Background(), "s", nil)
	assert.Len(t, errs, 1)
	assert.True(t, secondCalled)
}

func TestWorkQueueWithoutBrokerIsUnavailable(t *testing.T) {
	bus, err := New(Config{})
	require.NoError(t, err)

	err = bus.Subscribe(context.Background(), "billing", "charge", ModeWorkQueue, "workers", func(ctx context.Context, payload []byte) error { return nil })
	assert.Error(t, err)
}

func TestWorkQueueRequiresGroup(t *testing.T) {
	bus, err := New(Config{})
	require.NoError(t, err)

	err = bus.Subscribe(context.Background(), "billing", "charge", ModeWorkQueue, "", func(ctx context.Context, payload []byte) error { return nil })
	assert.Error(t, err)
}
