package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Payloads live under <baseDir>/user_<id>/<uuid><ext>. The returned storage
// path is relative to baseDir and is treated as an opaque locator by
// everything above the file store.

// SavePayload streams r into a fresh payload file for the user and returns
// the storage path and byte count. A partially written file is removed
// before the error is returned, so an aborted transfer leaves nothing on
// disk.
func SavePayload(baseDir string, userID uint, ext string, r io.Reader) (string, int64, error) {
	userDir := fmt.Sprintf("user_%d", userID)
	if err := os.MkdirAll(filepath.Join(baseDir, userDir), 0o755); err != nil {
		return "", 0, err
	}

	storagePath := filepath.Join(userDir, uuid.NewString()+ext)
	dstPath := filepath.Join(baseDir, storagePath)

	out, err := os.Create(dstPath)
	if err != nil {
		return "", 0, err
	}

	written, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dstPath)
		return "", 0, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dstPath)
		return "", 0, err
	}
	return storagePath, written, nil
}

// PayloadPath resolves a storage path back to its on-disk location.
func PayloadPath(baseDir, storagePath string) string {
	return filepath.Join(baseDir, storagePath)
}

// RemovePayload deletes a payload file. Missing files are not an error so
// delete and rollback paths stay idempotent.
func RemovePayload(baseDir, storagePath string) error {
	err := os.Remove(filepath.Join(baseDir, storagePath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
