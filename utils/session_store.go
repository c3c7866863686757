package utils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"
)

// Sessions are opaque bearer tokens: 32 bytes from crypto/rand, hex encoded.
// The token is only ever matched verbatim against the store; nothing is
// derived from or parsed out of it. Redis is preferred when configured,
// with an in-memory fallback map.
type sessionEntry struct {
	userID    uint
	expiresAt time.Time
}

var (
	sessionStore   = map[string]sessionEntry{}
	sessionStoreMu sync.Mutex
)

func sessionKey(token string) string { return "session:" + token }

// MintSession creates and stores a new session token for the user.
func MintSession(userID uint, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, sessionKey(token), strconv.FormatUint(uint64(userID), 10), ttl).Err(); err == nil {
			return token, nil
		}
	}
	sessionStoreMu.Lock()
	sessionStore[token] = sessionEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	sessionStoreMu.Unlock()
	return token, nil
}

// LookupSession resolves a token to a user id. Expired tokens are purged
// lazily on lookup.
func LookupSession(token string) (uint, error) {
	if token == "" {
		return 0, ErrSessionNotFound
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		val, err := rc.Get(ctx, sessionKey(token)).Result()
		if err == nil {
			id, convErr := strconv.ParseUint(val, 10, 64)
			if convErr != nil {
				return 0, ErrSessionNotFound
			}
			return uint(id), nil
		}
		// Redis miss or error: fall through to the memory store so tokens
		// minted during a Redis outage stay valid.
	}
	sessionStoreMu.Lock()
	defer sessionStoreMu.Unlock()
	entry, ok := sessionStore[token]
	if !ok {
		return 0, ErrSessionNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(sessionStore, token)
		return 0, ErrSessionNotFound
	}
	return entry.userID, nil
}

// DeleteSession invalidates a token. It is idempotent.
func DeleteSession(token string) {
	if token == "" {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rc.Del(ctx, sessionKey(token)).Err()
	}
	sessionStoreMu.Lock()
	delete(sessionStore, token)
	sessionStoreMu.Unlock()
}

// PurgeExpiredSessions drops expired entries from the in-memory store.
func PurgeExpiredSessions() {
	now := time.Now()
	sessionStoreMu.Lock()
	for token, entry := range sessionStore {
		if now.After(entry.expiresAt) {
			delete(sessionStore, token)
		}
	}
	sessionStoreMu.Unlock()
}
