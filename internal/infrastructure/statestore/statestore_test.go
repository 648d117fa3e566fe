package statestore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMarketsRoundTrip(t *testing.T) {
	s := openMem(t)
	ctx := context.Background()

	got, err := s.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SaveMarkets(ctx, []string{"fed-cut", "cpi-above-3"}))
	got, err = s.LoadMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fed-cut", "cpi-above-3"}, got)
}

func TestCooldownsRoundTrip(t *testing.T) {
	s := openMem(t)
	ctx := context.Background()
	until := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveCooldowns(ctx, map[string]time.Time{"cpi": until}))
	got, err := s.LoadCooldowns(ctx)
	require.NoError(t, err)
	require.Contains(t, got, "cpi")
	assert.True(t, got["cpi"].Equal(until))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("")
	require.NoError(t, err)
	assert.Nil(t, k)

	k, err = ParseKey("0x" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, k, 32)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
}
