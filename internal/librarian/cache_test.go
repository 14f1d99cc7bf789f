package librarian

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crate/internal/entity"
)

func TestCachedMemoizesOnline(t *testing.T) {
	ctx := context.Background()
	inner := &fakeProvider{name: "remote", get: answer(&entity.Artist{Name: p("Björk"), Country: p("IS")})}
	c := Cached(inner, time.Hour)

	first, err := c.Get(ctx, &entity.Artist{Name: p("Björk")}, Online)
	require.NoError(t, err)
	second, err := c.Get(ctx, &entity.Artist{Name: p("Björk")}, Online)
	require.NoError(t, err)
	assert.True(t, entity.Equal(first, second))
	assert.Equal(t, int32(1), inner.calls.Load())

	// Callers cannot corrupt the cached copy.
	first.(*entity.Artist).Country = p("XX")
	third, err := c.Get(ctx, &entity.Artist{Name: p("Björk")}, Online)
	require.NoError(t, err)
	assert.Equal(t, "IS", *third.(*entity.Artist).Country)

	_, err = c.Get(ctx, &entity.Artist{Name: p("Portishead")}, Online)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	_, err = c.Get(ctx, &entity.Artist{Name: p("Björk")}, Offline)
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load(), "offline bypasses the cache")
}

func TestCachedExpires(t *testing.T) {
	ctx := context.Background()
	inner := &fakeProvider{name: "remote"}
	c := Cached(inner, 10*time.Millisecond)

	_, err := c.Get(ctx, &entity.Artist{Name: p("Björk")}, Online)
	require.NoError(t, err)
	_, err = c.Get(ctx, &entity.Artist{Name: p("Björk")}, Online)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load(), "misses are cached too")

	time.Sleep(30 * time.Millisecond)
	_, err = c.Get(ctx, &entity.Artist{Name: p("Björk")}, Online)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}
