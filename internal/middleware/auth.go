package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/auth"
	"github.com/lalith-99/festivo/internal/models"
	"go.uber.org/zap"
)

// Context keys for values stored in gin.Context.
//
// Why string constants instead of inline strings?
//   - Typo protection. c.Get("usr_id") compiles fine and silently
//     returns nil; a misspelled constant does not compile.
//   - Handlers import these, so everyone agrees on the same keys.
const (
	ContextKeyUserID   = "user_id"
	ContextKeyUser     = "user"
	ContextKeyTenantID = "tenant_id"
)

// accessTokenParam carries the token on websocket upgrades, where
// browsers cannot set an Authorization header.
const accessTokenParam = "access_token"

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "kind": "unauthenticated"})
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if tok := c.Query(accessTokenParam); tok != "" {
			return tok, true
		}
		return "", false
	}
	// Split "Bearer eyJhbG..." into ["Bearer", "eyJhbG..."].
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Identity authenticates the request and loads the caller's user row.
//
// How it fits in the chain:
//   - The identity provider's token is verified first. A bad or expired
//     token stops the chain with a 401 and the handler never runs.
//   - The token's subject is then mapped to a local user, created on
//     first sight. Handlers only ever see local user ids.
func Identity(verifier *auth.Verifier, resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "missing or malformed authorization header, expected: Bearer <token>")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		user, err := resolver.Resolve(c.Request.Context(), claims)
		if err != nil {
			Logger(c).Error("resolve user failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "kind": "internal"})
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// GetUserID returns uuid.Nil when Identity did not run.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetUser(c *gin.Context) *models.User {
	val, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	u, _ := val.(*models.User)
	return u
}
