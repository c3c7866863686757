package utils

import "errors"

// Sentinel errors shared by the stores. Handlers map these onto HTTP
// statuses and business codes.
var (
	ErrQuotaExceeded       = errors.New("storage quota exceeded")
	ErrOtpNotFound         = errors.New("no verification code for this email")
	ErrOtpExpired          = errors.New("verification code expired")
	ErrOtpMismatch         = errors.New("verification code mismatch")
	ErrOtpAttemptsExceeded = errors.New("verification attempts exceeded")
	ErrSessionNotFound     = errors.New("session unknown or expired")
)
