package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/auth"
	"chatrelay/internal/model"
	"chatrelay/internal/store"
)

const currentUserContextKey = "currentUser"

func CurrentUser(c *gin.Context) (model.User, bool) {
	value, ok := c.Get(currentUserContextKey)
	if !ok {
		return model.User{}, false
	}
	user, ok := value.(model.User)
	return user, ok
}

// RequireAuth validates the bearer token and resolves the full user
// record, so handlers work with an identity snapshot rather than a bare
// id. The token may arrive in the Authorization header or, for browser
// EventSource clients that cannot set headers, a "token" query param.
func RequireAuth(cfg auth.TokenConfig, st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := auth.VerifyToken(tokenString, cfg)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		user, err := st.GetUser(claims.UserID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			c.Abort()
			return
		}
		if user.Disabled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Inactive user"})
			c.Abort()
			return
		}

		c.Set(currentUserContextKey, user)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return c.Query("token")
}

func abortUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.JSON(http.StatusUnauthorized, gin.H{"error": "Could not validate credentials"})
	c.Abort()
}
