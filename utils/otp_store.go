package utils

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"securevault/config"
)

// OTP challenges live in Redis when configured, otherwise in an in-memory
// map. Only per-key atomicity is required: a challenge is a single record
// keyed by email and there is at most one live challenge per email.
type otpChallenge struct {
	code      string
	expiresAt time.Time
	attempts  int
}

var (
	otpStore   = map[string]*otpChallenge{}
	otpStoreMu sync.Mutex
)

// The Redis value is "<code>|<unix expiry>". The key TTL carries a grace
// margin past the logical expiry so an expired challenge can still be
// reported as expired instead of missing, matching the memory store.
const otpExpiryGrace = time.Minute

// Consumption is a delete-if-equal so a code is single-use even when two
// verifications race: only the caller whose delete wins may succeed.
var otpConsumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	return 1
end
return 0
`)

// GenerateVerificationCode creates a numeric code with the given length
// from a cryptographically strong random source.
func GenerateVerificationCode(n int) string {
	if n <= 0 {
		n = 6
	}
	digits := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// fallback to time based modulo if crypto fails
			v = big.NewInt(time.Now().UnixNano() % 10)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits)
}

func otpCodeKey(email string) string     { return "otp:code:" + email }
func otpAttemptsKey(email string) string { return "otp:attempts:" + email }

// SaveChallenge stores a fresh challenge for an email with TTL, overwriting
// any prior one so at most one challenge is live per address. The code is
// never logged.
func SaveChallenge(email, code string, ttl time.Duration) {
	email = strings.ToLower(strings.TrimSpace(email))
	expiresAt := time.Now().Add(ttl)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		val := code + "|" + strconv.FormatInt(expiresAt.Unix(), 10)
		pipe := rc.Pipeline()
		pipe.Set(ctx, otpCodeKey(email), val, ttl+otpExpiryGrace)
		pipe.Set(ctx, otpAttemptsKey(email), 0, ttl+otpExpiryGrace)
		if _, err := pipe.Exec(ctx); err == nil {
			return
		}
	}
	otpStoreMu.Lock()
	otpStore[email] = &otpChallenge{code: code, expiresAt: expiresAt}
	otpStoreMu.Unlock()
}

// VerifyChallenge checks a code against the live challenge for email.
// Success consumes the challenge; a mismatch leaves it live until the
// attempt bound or the TTL exhausts it. The comparison is constant-time.
func VerifyChallenge(email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	maxAttempts := config.Get().OTPMaxAttempts

	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stored, err := rc.Get(ctx, otpCodeKey(email)).Result()
		if err == redis.Nil {
			return ErrOtpNotFound
		}
		if err == nil {
			storedCode := stored
			if i := strings.LastIndexByte(stored, '|'); i >= 0 {
				storedCode = stored[:i]
				if exp, parseErr := strconv.ParseInt(stored[i+1:], 10, 64); parseErr == nil && time.Now().Unix() > exp {
					rc.Del(ctx, otpCodeKey(email), otpAttemptsKey(email))
					return ErrOtpExpired
				}
			}
			n, incrErr := rc.Incr(ctx, otpAttemptsKey(email)).Result()
			if incrErr == nil && n > int64(maxAttempts) {
				rc.Del(ctx, otpCodeKey(email), otpAttemptsKey(email))
				return ErrOtpAttemptsExceeded
			}
			if subtle.ConstantTimeCompare([]byte(storedCode), []byte(code)) == 1 {
				won, evalErr := otpConsumeScript.Run(ctx, rc, []string{otpCodeKey(email), otpAttemptsKey(email)}, stored).Int()
				if evalErr == nil && won == 1 {
					return nil
				}
				// A concurrent verification consumed the challenge first.
				return ErrOtpNotFound
			}
			return ErrOtpMismatch
		}
		// On Redis error (e.g. network), fall through to the memory store.
	}

	otpStoreMu.Lock()
	defer otpStoreMu.Unlock()
	ch, ok := otpStore[email]
	if !ok {
		return ErrOtpNotFound
	}
	if time.Now().After(ch.expiresAt) {
		delete(otpStore, email)
		return ErrOtpExpired
	}
	if ch.attempts >= maxAttempts {
		delete(otpStore, email)
		return ErrOtpAttemptsExceeded
	}
	ch.attempts++
	if subtle.ConstantTimeCompare([]byte(ch.code), []byte(code)) == 1 {
		delete(otpStore, email)
		return nil
	}
	return ErrOtpMismatch
}

// PurgeExpiredChallenges drops expired challenges from the in-memory store.
// Redis entries expire on their own TTL.
func PurgeExpiredChallenges() {
	now := time.Now()
	otpStoreMu.Lock()
	for email, ch := range otpStore {
		if now.After(ch.expiresAt) {
			delete(otpStore, email)
		}
	}
	otpStoreMu.Unlock()
}
