package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRateLimiter_AllowsUpToLimit(t *testing.T) {
	br := setupTestBroker(t)
	limiter := NewLoginRateLimiter(br, 3)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, allowed, "4th attempt in the same window should be rejected")
}

func TestLoginRateLimiter_TracksSourcesIndependently(t *testing.T) {
	br := setupTestBroker(t)
	limiter := NewLoginRateLimiter(br, 1)

	a1, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, a1)

	a2, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, a2)

	b1, err := limiter.Allow(context.Background(), "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, b1, "a different source address gets its own window")
}
