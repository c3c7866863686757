package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"securevault/config"
)

// Registration and OTP-send throttles. Redis-backed when configured; the
// in-memory fallback keeps single-node deployments protected. All checks
// fail open on Redis errors to avoid locking users out on infra hiccups.

type cooldownEntry struct {
	expiresAt time.Time
	count     int
}

var (
	cooldowns   = map[string]*cooldownEntry{}
	cooldownsMu sync.Mutex
)

func memoryTrySet(key string, ttl time.Duration) bool {
	cooldownsMu.Lock()
	defer cooldownsMu.Unlock()
	if e, ok := cooldowns[key]; ok && time.Now().Before(e.expiresAt) {
		return false
	}
	cooldowns[key] = &cooldownEntry{expiresAt: time.Now().Add(ttl)}
	return true
}

func memoryIncr(key string, ttl time.Duration) int {
	cooldownsMu.Lock()
	defer cooldownsMu.Unlock()
	e, ok := cooldowns[key]
	if !ok || time.Now().After(e.expiresAt) {
		e = &cooldownEntry{expiresAt: time.Now().Add(ttl)}
		cooldowns[key] = e
	}
	e.count++
	return e.count
}

// EmailCooldownTrySet sets a per-email cooldown for sending an OTP mail.
// Returns false while a previous send is still cooling down.
func EmailCooldownTrySet(email string, cooldown time.Duration) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := "cooldown:email:" + email
		ok, err := rc.SetNX(ctx, key, "1", cooldown).Result()
		if err != nil {
			return true
		}
		return ok
	}
	return memoryTrySet("cooldown:email:"+email, cooldown)
}

// RegistrationCooldownTry enforces a short cooldown between registration
// attempts per IP.
func RegistrationCooldownTry(ip string) bool {
	sec := config.Get().RegisterAttemptCooldownSec
	if sec <= 0 {
		return true
	}
	ttl := time.Duration(sec) * time.Second
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		ok, err := rc.SetNX(ctx, "reg:cooldown:"+ip, "1", ttl).Result()
		if err != nil {
			return true
		}
		return ok
	}
	return memoryTrySet("reg:cooldown:"+ip, ttl)
}

// RegistrationDailyLimitCheck allows up to N successful registrations per
// day per IP.
func RegistrationDailyLimitCheck(ip string) bool {
	limit := config.Get().RegisterMaxPerIPPerDay
	if limit <= 0 {
		return true
	}
	key := "reg:succday:" + ip + ":" + time.Now().Format("20060102")
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		n, err := rc.Get(ctx, key).Int()
		if err == redis.Nil {
			n = 0
		} else if err != nil {
			return true
		}
		return n < limit
	}
	cooldownsMu.Lock()
	defer cooldownsMu.Unlock()
	if e, ok := cooldowns[key]; ok && time.Now().Before(e.expiresAt) {
		return e.count < limit
	}
	return true
}

// RegistrationDailyIncrement records a successful registration for today.
func RegistrationDailyIncrement(ip string) {
	key := "reg:succday:" + ip + ":" + time.Now().Format("20060102")
	ttl := time.Until(time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour))
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := rc.Incr(ctx, key).Err(); err == nil {
			_ = rc.Expire(ctx, key, ttl).Err()
		}
		return
	}
	memoryIncr(key, ttl)
}
