package history

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touchFile(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	past := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, past, past))
}

func TestHousekeeper_CompressesOldFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2020-01-01.csv")
	touchFile(t, path, 15*24*time.Hour)

	h := NewHousekeeper(dir, 24, 10, 30)
	require.NoError(t, h.RunOnce(time.Now()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	gz, err := os.Open(path + ".gz")
	require.NoError(t, err)
	defer gz.Close()
	r, err := gzip.NewReader(gz)
	require.NoError(t, err)
	defer r.Close()
}

func TestHousekeeper_ArchivesVeryOldFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2020-01-01.csv")
	touchFile(t, path, 40*24*time.Hour)

	h := NewHousekeeper(dir, 24, 10, 30)
	require.NoError(t, h.RunOnce(time.Now()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(dir, "archive", "2020-01-01.csv"))
	assert.NoError(t, err)
}

func TestHousekeeper_LeavesRecentFilesAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2026-07-29.csv")
	touchFile(t, path, time.Hour)

	h := NewHousekeeper(dir, 24, 10, 30)
	require.NoError(t, h.RunOnce(time.Now()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
