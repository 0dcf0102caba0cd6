package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardAcquireRelease(t *testing.T) {
	ctx := context.Background()
	guard, err := NewGuard(newWithCommands(newFakeCommands()), "stripe_event", time.Hour)
	require.NoError(t, err)

	ok, err := guard.Acquire(ctx, "evt_1", "webhook")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Acquire(ctx, "evt_1", "retry")
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := guard.Holder(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, "webhook", holder)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	holder, err = guard.Holder(ctx, "evt_1")
	require.NoError(t, err)
	assert.Empty(t, holder)

	_, err = guard.Acquire(ctx, "", "x")
	assert.Error(t, err)
}

func TestNewGuardValidates(t *testing.T) {
	_, err := NewGuard(nil, "s", time.Minute)
	assert.Error(t, err)
	_, err = NewGuard(newWithCommands(newFakeCommands()), "", time.Minute)
	assert.Error(t, err)
	_, err = NewGuard(newWithCommands(newFakeCommands()), "s", -time.Second)
	assert.Error(t, err)
}
