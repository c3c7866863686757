package models

import "time"

// File records one stored payload and its metadata. UserID is the owner and
// is never reassigned; StoragePath is an opaque locator relative to the
// configured upload directory.
type File struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"-"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	SizeBytes   int64     `gorm:"not null" json:"size"`
	MimeType    string    `gorm:"size:255" json:"type"`
	StoragePath string    `gorm:"size:1024;not null" json:"-"`
	UploadedAt  time.Time `gorm:"index" json:"uploadedAt"`
}
