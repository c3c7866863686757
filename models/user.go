package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a vault account. Passwords are stored as bcrypt hashes only,
// and Email is persisted lower-cased so uniqueness is case-insensitive.
//
// UsedBytes is the per-user storage counter. It is mutated exclusively through
// the quota manager (utils.QuotaReserve / utils.QuotaRelease) and must always
// equal the sum of SizeBytes over the user's files.
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Username        string    `gorm:"size:64;not null" json:"username"`
	Email           string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash    string    `gorm:"size:255;not null" json:"-"`
	Verified        bool      `gorm:"not null;default:false" json:"verified"`
	UsedBytes       int64     `gorm:"not null;default:0" json:"used_bytes"`
	QuotaLimitBytes int64     `gorm:"not null" json:"quota_limit_bytes"`
	RegisterIP      string    `gorm:"size:45" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Files           []File    `json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
