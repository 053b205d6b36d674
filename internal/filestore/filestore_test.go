package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaths(t *testing.T) {
	s := New("/data")
	date := time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC)

	assert.Equal(t, filepath.Join("/data", "metadata", "2024", "06", "01.json"), s.IndexPath(date))
	assert.Equal(t, filepath.Join("/data", "news", "2024-06-01", "10-15-A1.md"), s.ArticlePath(date, "A1"))
	assert.Equal(t, filepath.Join("/data", "news", "2024-06-01", "10-15-A1-sum.en.txt"), s.SummaryPath(date, "A1", "en"))
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := filepath.Join(dir, "news", "2024-06-01", "10-15-A1.md")

	require.NoError(t, s.WriteAtomic(path, []byte("hello")))
	require.True(t, s.Exists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.WriteAtomic(path, []byte("overwritten")))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "overwritten", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp files")
}
