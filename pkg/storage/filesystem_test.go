package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndOpen(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	locator, err := store.Save("submissions/as-1/st-1/essay.txt", []byte("my answer"))
	require.NoError(t, err)
	assert.Equal(t, "submissions/as-1/st-1/essay.txt", locator)

	file, err := store.Open(locator)
	require.NoError(t, err)
	defer file.Close()
}

func TestLocalStorageRefusesEscapingLocator(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "blobs")
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	_, err = store.Save("submissions/a1/s1/../../../../escaped.txt", []byte("nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")

	// Nothing may appear outside the base directory.
	_, statErr := os.Stat(filepath.Join(root, "escaped.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalStorageRefusesAbsoluteLocator(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(filepath.Join(os.TempDir(), "abs.txt"), []byte("nope"))
	require.Error(t, err)

	_, err = store.Open("/etc/passwd")
	require.Error(t, err)
}

func TestLocalStorageDeleteMissingIsNoop(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Delete("reports/st-1/gone.csv"))
}
