package assist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLimiter_Disabled(t *testing.T) {
	rl := newRequestLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
}

func TestRequestLimiter_BurstThenBlocks(t *testing.T) {
	rl := newRequestLimiter(2)
	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))

	// The third request needs a token that refills after 30s.
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}
