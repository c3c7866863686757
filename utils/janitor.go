package utils

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"securevault/models"
)

// Janitor housekeeping: payload files a crash left behind between "written"
// and "recorded" are swept once they are old enough to be clearly dead, and
// expired entries are purged from the in-memory fallback stores.
const orphanMinAge = time.Hour

// StartJanitor launches a background goroutine that periodically sweeps
// orphaned payload files and expired in-memory state. Best-effort: failures
// are logged and retried on the next tick.
func StartJanitor(db *gorm.DB, baseDir string, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)
			PurgeExpiredSessions()
			PurgeExpiredChallenges()
			if err := sweepOrphanPayloads(db, baseDir); err != nil {
				Sugar.Warnf("janitor sweep failed: %v", err)
			}
		}
	}()
}

func sweepOrphanPayloads(db *gorm.DB, baseDir string) error {
	cutoff := time.Now().Add(-orphanMinAge)
	return filepath.Walk(baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || info.ModTime().After(cutoff) {
			return nil
		}
		rel, relErr := filepath.Rel(baseDir, path)
		if relErr != nil {
			return nil
		}
		var count int64
		if err := db.Model(&models.File{}).Where("storage_path = ?", rel).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if rmErr := os.Remove(path); rmErr == nil {
				Sugar.Infof("janitor removed orphan payload %s", rel)
			}
		}
		return nil
	})
}
