package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiry(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	defer c.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, 0)
	c.Set("b", 2, time.Hour)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.cleanup()
	assert.Equal(t, 1, c.Size())
	c.Clear()
	assert.Zero(t, c.Size())
}

func TestGetOrLoad(t *testing.T) {
	c := NewInMemoryCache[string, string](time.Minute)
	defer c.Close()
	calls := 0
	load := func() (string, error) {
		calls++
		return "v", nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("k", load)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrLoad("bad", func() (string, error) { return "", errors.New("down") })
	assert.Error(t, err)
	_, ok := c.Get("bad")
	assert.False(t, ok)
}
