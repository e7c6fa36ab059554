package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_Budget(t *testing.T) {
	p := NewPacer(0, 2)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.ErrorIs(t, p.Wait(ctx), ErrBudgetExhausted)
	assert.Equal(t, 2, p.Used())
}

func TestPacer_Spacing(t *testing.T) {
	p := NewPacer(20*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(time.Hour, 0)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPerMinute(t *testing.T) {
	p := PerMinute(60, 0)
	assert.InDelta(t, 1.0, p.Stats()["rate"], 0.0001)
}
