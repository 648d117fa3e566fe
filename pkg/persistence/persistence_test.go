package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirWriteReadList(t *testing.T) {
	d, err := OpenDir(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)

	require.NoError(t, d.Write("a_1.json", map[string]int{"x": 1}))
	require.NoError(t, d.Write("a_2.json", map[string]int{"x": 2}))
	require.NoError(t, d.Write("b_1.json", map[string]int{"x": 3}))

	var got map[string]int
	require.NoError(t, d.Read("a_2.json", &got))
	assert.Equal(t, 2, got["x"])

	names, err := d.List("a_")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_1.json", "a_2.json"}, names)

	_, err = os.Stat(filepath.Join(d.Path(), "a_1.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, d.Read("missing.json", &got), ErrNotExists)
}

func TestStoreSaveLoad(t *testing.T) {
	d, err := OpenDir(t.TempDir())
	require.NoError(t, err)
	s := d.NewStore("alerts")
	require.NoError(t, s.Save([]string{"a", "b"}))
	var out []string
	require.NoError(t, s.Load(&out))
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "large_order_a_b.json", SafeName("large_order_a/b.json"))
}
