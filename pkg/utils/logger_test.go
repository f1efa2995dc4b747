package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w := NewRotatingWriter(path, 1024, 2)

	_, err := w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestRotatingWriterRotatesPastMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w := NewRotatingWriter(path, 10, 2)

	_, err := w.Write([]byte(strings.Repeat("x", 20)))
	require.NoError(t, err)
	// The live file is now over MaxSize, so this write rotates first.
	_, err = w.Write([]byte("after\n"))
	require.NoError(t, err)

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 20), string(backup))

	live, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(live))
}

func TestRotatingWriterDropsOldestBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	w := NewRotatingWriter(path, 5, 2)

	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte(strings.Repeat("y", 10)))
		require.NoError(t, err)
	}

	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}
