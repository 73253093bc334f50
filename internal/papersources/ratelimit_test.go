package papersources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows requests within burst", func(t *testing.T) {
		rl := NewRateLimiter(1, 3)

		assert.True(t, rl.Allow())
		assert.True(t, rl.Allow())
		assert.True(t, rl.Allow())
		assert.False(t, rl.Allow())
	})

	t.Run("wait respects context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		require.True(t, rl.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := rl.Wait(ctx)
		require.Error(t, err)
	})

	t.Run("set rate takes effect", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		require.True(t, rl.Allow())
		require.False(t, rl.Allow())

		rl.SetRate(1000)
		time.Sleep(5 * time.Millisecond)
		assert.True(t, rl.Allow())
	})
}
