package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"securevault/config"
	"securevault/middleware"
	"securevault/models"
	"securevault/utils"
)

// AuthController handles registration, OTP verification, login, logout and
// the profile endpoint.
type AuthController struct {
	db *gorm.DB

	otpTTL     time.Duration
	otpLength  int
	resendWait time.Duration
	sessionTTL time.Duration
	quotaLimit int64

	// sendMail delivers the OTP mail; swapped out in tests.
	sendMail func(to, subject, body string) error
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	cfg := config.Get()
	return &AuthController{
		db:         db,
		otpTTL:     time.Duration(cfg.OTPTTLMinutes) * time.Minute,
		otpLength:  cfg.OTPLength,
		resendWait: time.Duration(cfg.OTPResendCooldownSec) * time.Second,
		sessionTTL: time.Duration(cfg.SessionTTLHours) * time.Hour,
		quotaLimit: cfg.QuotaLimitBytes,
		sendMail:   utils.SendMail,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// issueOTP generates a challenge for email and hands the plaintext code to
// the mailer exactly once. The challenge is saved only after delivery
// succeeded so undeliverable codes don't accumulate.
func (a *AuthController) issueOTP(email string) error {
	code := utils.GenerateVerificationCode(a.otpLength)
	subject := "SecureVault verification code"
	body := fmt.Sprintf("Your SecureVault verification code is:\n\n%s\n\nThis code expires in %d minutes.\n\nIf you did not request this, please ignore this email.\n",
		code, int(a.otpTTL.Minutes()))
	if err := a.sendMail(email, subject, body); err != nil {
		return err
	}
	utils.SaveChallenge(email, code, a.otpTTL)
	return nil
}

// Register creates an unverified account and emails it a verification code.
// Registering an email that exists but was never verified re-issues the
// code instead of failing; only a verified email is a conflict.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=2,max=64"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6,max=72"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	ip := ctx.ClientIP()
	if !utils.RegistrationCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many attempts, please retry later")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42911, "daily registration limit reached")
		return
	}

	var existing models.User
	err := a.db.Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil && existing.Verified:
		utils.Error(ctx, http.StatusConflict, 40901, "email already registered and verified")
		return
	case err == nil:
		// Unverified account: re-issue the code, do not insert again.
		if !utils.EmailCooldownTrySet(email, a.resendWait) {
			utils.Error(ctx, http.StatusTooManyRequests, 42912, "verification code recently sent, please wait")
			return
		}
		if sendErr := a.issueOTP(email); sendErr != nil {
			utils.Sugar.Warnf("otp delivery failed for registration resend: %v", sendErr)
			utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to send verification code")
			return
		}
		utils.Success(ctx, gin.H{"message": "verification code resent", "email": email})
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to check account")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to hash password")
		return
	}

	user := models.User{
		Username:        username,
		Email:           email,
		PasswordHash:    hash,
		QuotaLimitBytes: a.quotaLimit,
		RegisterIP:      ip,
	}
	if err := a.db.Create(&user).Error; err != nil {
		// A concurrent registration may have taken the unique email index.
		utils.Error(ctx, http.StatusConflict, 40901, "email already registered")
		return
	}

	_ = utils.EmailCooldownTrySet(email, a.resendWait)
	if err := a.issueOTP(email); err != nil {
		// Remove the fresh row so the user can retry registration.
		_ = a.db.Delete(&models.User{}, user.ID).Error
		utils.Sugar.Warnf("otp delivery failed for registration: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to send verification code")
		return
	}

	utils.RegistrationDailyIncrement(ip)
	utils.Created(ctx, gin.H{"message": "registration successful, please verify the code", "email": email})
}

// VerifyOTP consumes a verification code, marks the account verified and
// logs the user in.
func (a *AuthController) VerifyOTP(ctx *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		OTP   string `json:"otp" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	email := normalizeEmail(req.Email)
	if err := utils.VerifyChallenge(email, strings.TrimSpace(req.OTP)); err != nil {
		switch {
		case errors.Is(err, utils.ErrOtpNotFound):
			utils.Error(ctx, http.StatusBadRequest, 40011, "no verification code for this email")
		case errors.Is(err, utils.ErrOtpExpired):
			utils.Error(ctx, http.StatusBadRequest, 40012, "verification code expired")
		case errors.Is(err, utils.ErrOtpAttemptsExceeded):
			utils.Error(ctx, http.StatusBadRequest, 40013, "too many wrong attempts, request a new code")
		default:
			utils.Error(ctx, http.StatusBadRequest, 40014, "verification code mismatch")
		}
		return
	}

	// markVerified is idempotent; a no-op when already verified.
	if err := a.db.Model(&models.User{}).Where("email = ?", email).
		UpdateColumn("verified", true).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to mark account verified")
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", email).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found after verification")
		return
	}

	token, err := utils.MintSession(user.ID, a.sessionTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to create session")
		return
	}
	a.setSessionCookie(ctx, token)

	utils.Success(ctx, gin.H{
		"message": "account verified and logged in",
		"token":   token,
		"user":    publicUser(user),
	})
}

// Login verifies credentials and mints a session token. Unverified accounts
// are rejected even with the correct password.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	email := normalizeEmail(req.Email)
	var user models.User
	if err := a.db.Where("email = ?", email).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "invalid email or password")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "invalid email or password")
		return
	}
	if !user.Verified {
		utils.ErrorData(ctx, http.StatusUnauthorized, 40111, "account not verified",
			gin.H{"email": email, "needs_verification": true})
		return
	}

	token, err := utils.MintSession(user.ID, a.sessionTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create session")
		return
	}
	a.setSessionCookie(ctx, token)

	utils.Success(ctx, gin.H{
		"message": "login successful",
		"token":   token,
		"user":    publicUser(user),
	})
}

// Logout invalidates the current session. Idempotent: an unknown or
// already-deleted token still yields 200.
func (a *AuthController) Logout(ctx *gin.Context) {
	if token := middleware.SessionToken(ctx); token != "" {
		utils.DeleteSession(token)
	}
	ctx.SetCookie(middleware.SessionCookieName, "", -1, "/", "", false, true)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Profile returns the authenticated user's account and storage summary.
func (a *AuthController) Profile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	var totalFiles int64
	if err := a.db.Model(&models.File{}).Where("user_id = ?", userID).Count(&totalFiles).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to count files")
		return
	}

	utils.Success(ctx, gin.H{
		"username":     user.Username,
		"email":        user.Email,
		"total_files":  totalFiles,
		"used_storage": user.UsedBytes,
		"quota_limit":  user.QuotaLimitBytes,
		"created_at":   user.CreatedAt,
	})
}

func (a *AuthController) setSessionCookie(ctx *gin.Context, token string) {
	ctx.SetCookie(middleware.SessionCookieName, token, int(a.sessionTTL.Seconds()), "/", "", false, true)
}

func publicUser(user models.User) gin.H {
	return gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	v, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
