package sigchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitCoalesces(t *testing.T) {
	c := New(1)
	assert.True(t, c.Emit())
	assert.False(t, c.Emit())

	select {
	case <-c.C():
	default:
		t.Fatal("expected pending signal")
	}
	assert.True(t, c.Emit())
}

func TestDrain(t *testing.T) {
	c := New(0)
	assert.Equal(t, 0, c.Drain())
	c.Emit()
	assert.Equal(t, 1, c.Drain())
	assert.Equal(t, 0, c.Drain())
	assert.True(t, c.Emit())
}
