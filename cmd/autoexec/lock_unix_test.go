//go:build unix

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockDataDirExclusive(t *testing.T) {
	dir := t.TempDir()
	release, err := lockDataDir(dir)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, lockFile))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(raw)))

	_, err = lockDataDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "已被其他进程占用")

	require.NoError(t, release())
	again, err := lockDataDir(dir)
	require.NoError(t, err)
	assert.NoError(t, again())
}
