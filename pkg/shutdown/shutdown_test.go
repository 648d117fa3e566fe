package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownReverseOrder(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	var order []string
	record := func(name string) Handler {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	m.OnShutdown("storage", record("storage"))
	m.OnShutdown("engine", record("engine"))
	m.OnShutdownGroup(map[string]Handler{
		"http":   record("http"),
		"failer": func(context.Context) error { return errors.New("boom") },
	})

	require.NoError(t, m.Shutdown(context.Background()))
	require.Len(t, order, 3)
	assert.Equal(t, "http", order[0])
	assert.Equal(t, []string{"engine", "storage"}, order[1:])
}

func TestShutdownTimeout(t *testing.T) {
	m := NewManager()
	release := make(chan struct{})
	defer close(release)
	m.OnShutdown("slow", func(context.Context) error {
		<-release
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)
}

func TestShutdownEmpty(t *testing.T) {
	assert.NoError(t, NewManager().Shutdown(context.Background()))
}
