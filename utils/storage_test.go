package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }

func TestSavePayloadWritesUnderUserDir(t *testing.T) {
	base := t.TempDir()
	content := "hello vault"

	storagePath, written, err := SavePayload(base, 7, ".txt", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), written)
	assert.True(t, strings.HasPrefix(storagePath, "user_7/"), "path %q not under user dir", storagePath)
	assert.True(t, strings.HasSuffix(storagePath, ".txt"))

	data, err := os.ReadFile(PayloadPath(base, storagePath))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestSavePayloadUniquePaths(t *testing.T) {
	base := t.TempDir()

	a, _, err := SavePayload(base, 1, ".bin", strings.NewReader("a"))
	require.NoError(t, err)
	b, _, err := SavePayload(base, 1, ".bin", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSavePayloadCleansUpOnReadFailure(t *testing.T) {
	base := t.TempDir()

	_, _, err := SavePayload(base, 3, ".dat", failingReader{})
	require.Error(t, err)

	// No partial payload may remain on disk.
	var leftovers []string
	err = filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRemovePayload(t *testing.T) {
	base := t.TempDir()
	storagePath, _, err := SavePayload(base, 5, ".txt", strings.NewReader("bye"))
	require.NoError(t, err)

	require.NoError(t, RemovePayload(base, storagePath))
	_, statErr := os.Stat(PayloadPath(base, storagePath))
	assert.True(t, os.IsNotExist(statErr))

	// Removing an already-missing payload is not an error.
	assert.NoError(t, RemovePayload(base, storagePath))
}
