package controllers

import (
	"github.com/gin-gonic/gin"

	"securevault/config"
	"securevault/utils"
)

// GetLimits exposes the public storage limits so clients can render the
// quota meter before uploading.
func GetLimits(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"quota_limit_bytes": cfg.QuotaLimitBytes,
		"max_upload_bytes":  cfg.MaxUploadBytes,
	})
}
