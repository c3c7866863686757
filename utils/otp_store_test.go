package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerificationCode(t *testing.T) {
	code := GenerateVerificationCode(6)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code must be numeric, got %q", code)
	}

	assert.Len(t, GenerateVerificationCode(8), 8)
	// Non-positive lengths fall back to the default
	assert.Len(t, GenerateVerificationCode(0), 6)
}

func TestVerifyChallengeConsumesOnSuccess(t *testing.T) {
	email := "consume@example.com"
	SaveChallenge(email, "123456", time.Minute)

	require.NoError(t, VerifyChallenge(email, "123456"))

	// The challenge is gone; replaying the same code must fail.
	assert.ErrorIs(t, VerifyChallenge(email, "123456"), ErrOtpNotFound)
}

func TestVerifyChallengeMismatchLeavesChallengeLive(t *testing.T) {
	email := "mismatch@example.com"
	SaveChallenge(email, "654321", time.Minute)

	assert.ErrorIs(t, VerifyChallenge(email, "000000"), ErrOtpMismatch)
	// Still verifiable with the right code afterwards.
	assert.NoError(t, VerifyChallenge(email, "654321"))
}

func TestVerifyChallengeAttemptBound(t *testing.T) {
	email := "bound@example.com"
	SaveChallenge(email, "111222", time.Minute)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, VerifyChallenge(email, "999999"), ErrOtpMismatch)
	}
	// The bound is exhausted: even the correct code is rejected now.
	assert.ErrorIs(t, VerifyChallenge(email, "111222"), ErrOtpAttemptsExceeded)
	// And the challenge was discarded entirely.
	assert.ErrorIs(t, VerifyChallenge(email, "111222"), ErrOtpNotFound)
}

func TestVerifyChallengeWithinAttemptBound(t *testing.T) {
	email := "within@example.com"
	SaveChallenge(email, "333444", time.Minute)

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, VerifyChallenge(email, "000001"), ErrOtpMismatch)
	}
	assert.NoError(t, VerifyChallenge(email, "333444"))
}

func TestVerifyChallengeExpired(t *testing.T) {
	email := "expired@example.com"
	SaveChallenge(email, "777888", -time.Second)

	assert.ErrorIs(t, VerifyChallenge(email, "777888"), ErrOtpExpired)
	// Expiry discards the challenge.
	assert.ErrorIs(t, VerifyChallenge(email, "777888"), ErrOtpNotFound)
}

func TestSaveChallengeOverwritesPrior(t *testing.T) {
	email := "overwrite@example.com"
	SaveChallenge(email, "101010", time.Minute)
	SaveChallenge(email, "202020", time.Minute)

	assert.ErrorIs(t, VerifyChallenge(email, "101010"), ErrOtpMismatch)
	assert.NoError(t, VerifyChallenge(email, "202020"))
}

func TestVerifyChallengeEmailCaseInsensitive(t *testing.T) {
	SaveChallenge("Mixed@Example.COM", "555666", time.Minute)
	assert.NoError(t, VerifyChallenge("mixed@example.com", "555666"))
}

func TestVerifyChallengeUnknownEmail(t *testing.T) {
	assert.ErrorIs(t, VerifyChallenge("nobody@example.com", "123456"), ErrOtpNotFound)
}

func TestPurgeExpiredChallenges(t *testing.T) {
	SaveChallenge("stale@example.com", "123123", -time.Minute)
	SaveChallenge("fresh@example.com", "321321", time.Minute)

	PurgeExpiredChallenges()

	assert.ErrorIs(t, VerifyChallenge("stale@example.com", "123123"), ErrOtpNotFound)
	assert.NoError(t, VerifyChallenge("fresh@example.com", "321321"))
}

func TestVerifyChallengeSingleUseUnderConcurrency(t *testing.T) {
	email := "race@example.com"
	SaveChallenge(email, "424242", time.Minute)

	const callers = 16
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- VerifyChallenge(email, "424242")
		}()
	}
	wg.Wait()
	close(results)

	// The correct code is accepted exactly once.
	wins := 0
	for err := range results {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
