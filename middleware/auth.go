package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"securevault/utils"
)

const (
	// ContextUserIDKey is the key used to store the authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// SessionCookieName carries the session token for browser clients.
	SessionCookieName = "vault_session"
)

// SessionToken extracts the bearer token from the Authorization header or,
// failing that, the session cookie. Returns "" when neither is present.
func SessionToken(ctx *gin.Context) string {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := ctx.Cookie(SessionCookieName); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

// AuthRequired ensures the request carries a live session token. The token
// is opaque: it is matched against the session store verbatim, never parsed.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := SessionToken(ctx)
		if token == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "missing session token")
			ctx.Abort()
			return
		}

		userID, err := utils.LookupSession(token)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "session unknown or expired")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, userID)
		ctx.Next()
	}
}
