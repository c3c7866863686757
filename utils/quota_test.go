package utils

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"securevault/models"
)

func newQuotaTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory SQLite: one connection, or each new conn sees an empty DB.
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func newQuotaTestUser(t *testing.T, db *gorm.DB, limit int64) uint {
	t.Helper()
	user := models.User{
		Username:        "quota-user",
		Email:           "quota@example.com",
		PasswordHash:    "x",
		Verified:        true,
		QuotaLimitBytes: limit,
	}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func usedBytes(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var user models.User
	require.NoError(t, db.First(&user, userID).Error)
	return user.UsedBytes
}

func TestQuotaReserveWithinLimit(t *testing.T) {
	db := newQuotaTestDB(t)
	userID := newQuotaTestUser(t, db, 100)

	used, err := QuotaReserve(db, userID, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), used)

	// Exactly filling the quota is allowed.
	used, err = QuotaReserve(db, userID, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(100), used)
	assert.Equal(t, int64(100), usedBytes(t, db, userID))
}

func TestQuotaReserveExceeded(t *testing.T) {
	db := newQuotaTestDB(t)
	userID := newQuotaTestUser(t, db, 100)

	_, err := QuotaReserve(db, userID, 90)
	require.NoError(t, err)

	_, err = QuotaReserve(db, userID, 11)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	// A rejected reservation must not change the counter.
	assert.Equal(t, int64(90), usedBytes(t, db, userID))
}

func TestQuotaReleaseFloorsAtZero(t *testing.T) {
	db := newQuotaTestDB(t)
	userID := newQuotaTestUser(t, db, 100)

	_, err := QuotaReserve(db, userID, 30)
	require.NoError(t, err)

	used, err := QuotaRelease(db, userID, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)
	assert.Equal(t, int64(0), usedBytes(t, db, userID))
}

func TestQuotaReserveUnknownUser(t *testing.T) {
	db := newQuotaTestDB(t)
	_, err := QuotaReserve(db, 9999, 10)
	assert.Error(t, err)
}

func TestQuotaReserveConcurrentNeverOvershoots(t *testing.T) {
	db := newQuotaTestDB(t)
	userID := newQuotaTestUser(t, db, 100)

	const workers = 20
	const chunk = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := QuotaReserve(db, userID, chunk); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Exactly quota/chunk reservations fit; the rest must have been refused.
	assert.Equal(t, 10, successes)
	assert.Equal(t, int64(100), usedBytes(t, db, userID))
}
