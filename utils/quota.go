package utils

import (
	"sync"

	"gorm.io/gorm"

	"securevault/models"
)

// The per-user quota lock table. Reservations and releases for one user are
// mutually exclusive; different users never contend. The lock covers only
// the counter check-and-update, never payload I/O.
var (
	userLocks   = map[uint]*sync.Mutex{}
	userLocksMu sync.Mutex
)

func userLock(id uint) *sync.Mutex {
	userLocksMu.Lock()
	defer userLocksMu.Unlock()
	mu, ok := userLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		userLocks[id] = mu
	}
	return mu
}

// QuotaReserve atomically charges bytes against the user's quota before any
// payload byte is written. Returns ErrQuotaExceeded without applying the
// change when the reservation would pass the user's limit.
func QuotaReserve(db *gorm.DB, userID uint, bytes int64) (int64, error) {
	mu := userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return 0, err
	}
	newUsage := user.UsedBytes + bytes
	if bytes > 0 && newUsage > user.QuotaLimitBytes {
		return user.UsedBytes, ErrQuotaExceeded
	}
	if newUsage < 0 {
		newUsage = 0
	}
	if err := db.Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("used_bytes", newUsage).Error; err != nil {
		return user.UsedBytes, err
	}
	return newUsage, nil
}

// QuotaRelease returns bytes to the user's quota, floored at zero. Called on
// delete and on rollback when an upload fails after its reservation; a
// reservation must never outlive its initiating request.
func QuotaRelease(db *gorm.DB, userID uint, bytes int64) (int64, error) {
	return QuotaReserve(db, userID, -bytes)
}
