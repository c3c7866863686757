package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"securevault/config"
	"securevault/models"
	"securevault/utils"
)

// FileController handles upload, listing, download and deletion of vault
// files. Quota accounting follows a strict order: reserve before any disk
// write, release whenever the write or the record insert fails, release
// after record removal on delete.
type FileController struct {
	db             *gorm.DB
	uploadDir      string
	maxUploadBytes int64
}

// NewFileController creates a FileController.
func NewFileController(db *gorm.DB) *FileController {
	cfg := config.Get()
	return &FileController{
		db:             db,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// Upload stores a multipart "file" part for the authenticated user.
func (f *FileController) Upload(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	header, err := ctx.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "missing file field")
		return
	}
	if header.Size <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40031, "empty file")
		return
	}
	if f.maxUploadBytes > 0 && header.Size > f.maxUploadBytes {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41302, "file exceeds maximum upload size")
		return
	}

	name := utils.SanitizeFilename(header.Filename)
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if _, err := utils.QuotaReserve(f.db, userID, header.Size); err != nil {
		if errors.Is(err, utils.ErrQuotaExceeded) {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, 41301, "storage quota exceeded")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to reserve storage")
		return
	}

	src, err := header.Open()
	if err != nil {
		_, _ = utils.QuotaRelease(f.db, userID, header.Size)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to read upload")
		return
	}
	defer src.Close()

	storagePath, written, err := utils.SavePayload(f.uploadDir, userID, filepath.Ext(name), src)
	if err != nil || written != header.Size {
		if err == nil {
			// Truncated copy, e.g. client disconnect mid-upload.
			utils.RemovePayload(f.uploadDir, storagePath)
			err = fmt.Errorf("short write: %d of %d bytes", written, header.Size)
		}
		_, _ = utils.QuotaRelease(f.db, userID, header.Size)
		utils.Sugar.Warnf("payload write failed for user %d: %v", userID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to store file")
		return
	}

	record := models.File{
		UserID:      userID,
		Name:        name,
		SizeBytes:   header.Size,
		MimeType:    mimeType,
		StoragePath: storagePath,
		UploadedAt:  time.Now(),
	}
	if err := f.db.Create(&record).Error; err != nil {
		utils.RemovePayload(f.uploadDir, storagePath)
		_, _ = utils.QuotaRelease(f.db, userID, header.Size)
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to record file")
		return
	}

	utils.Success(ctx, gin.H{"message": "upload successful", "file": record})
}

// List returns the authenticated user's files, most recent first.
func (f *FileController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var files []models.File
	if err := f.db.Where("user_id = ?", userID).
		Order("uploaded_at DESC, id DESC").Find(&files).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to list files")
		return
	}

	utils.Success(ctx, gin.H{"files": files, "count": len(files)})
}

// fetchOwned loads a file by id and checks ownership. A missing id is 404;
// an existing file owned by someone else is 403, never disguised as 404.
func (f *FileController) fetchOwned(ctx *gin.Context, userID uint) (*models.File, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "file not found")
		return nil, false
	}

	var record models.File
	if err := f.db.First(&record, uint(id)).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "file not found")
		return nil, false
	}
	if record.UserID != userID {
		utils.Error(ctx, http.StatusForbidden, 40301, "not the owner of this file")
		return nil, false
	}
	return &record, true
}

// Download streams a stored payload back with its original name.
func (f *FileController) Download(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	record, ok := f.fetchOwned(ctx, userID)
	if !ok {
		return
	}

	path := utils.PayloadPath(f.uploadDir, record.StoragePath)
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Name))
	ctx.Header("Content-Type", record.MimeType)
	ctx.File(path)
}

// Delete removes a file's payload and record, then releases its quota.
func (f *FileController) Delete(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	record, ok := f.fetchOwned(ctx, userID)
	if !ok {
		return
	}

	// Payload removal is best effort: a missing payload must not keep the
	// record (and its quota share) alive forever.
	if err := utils.RemovePayload(f.uploadDir, record.StoragePath); err != nil {
		utils.Sugar.Warnf("payload removal failed for file %d: %v", record.ID, err)
	}

	res := f.db.Delete(&models.File{}, record.ID)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50035, "failed to delete file")
		return
	}
	// A concurrent delete may have won the race after fetchOwned; only the
	// call that removed the row may release its quota share.
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40420, "file not found")
		return
	}

	if _, err := utils.QuotaRelease(f.db, userID, record.SizeBytes); err != nil {
		utils.Sugar.Warnf("quota release failed for user %d: %v", userID, err)
	}

	utils.Success(ctx, gin.H{"message": "file deleted", "id": record.ID})
}
