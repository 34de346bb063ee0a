package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	userIDContextKey    = "auth_user_id"
	authTokenContextKey = "auth_token"
	clientIDContextKey  = "client_id"
)

// Middleware validates bearer tokens and stores the authenticated user in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// UserIDFromContext retrieves the authenticated user id from the gin context.
func UserIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}

// TokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// ClientMiddleware resolves the anonymous client id from the X-Client-ID
// header or the client_id cookie, issuing a new cookie when neither is set.
func (s *Service) ClientMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := strings.TrimSpace(c.GetHeader(s.clientHeader))
		if clientID == "" {
			if cookie, err := c.Cookie(s.clientCookie); err == nil {
				clientID = cookie
			}
		}
		if _, err := uuid.Parse(clientID); err != nil {
			if clientID != "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
				return
			}
			clientID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(s.clientCookie, clientID, 365*24*3600, "/", "", false, true)
		}
		c.Set(clientIDContextKey, clientID)
		c.Next()
	}
}

// ClientIDFromContext returns the client id resolved by ClientMiddleware.
func ClientIDFromContext(c *gin.Context) string {
	return c.GetString(clientIDContextKey)
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}

// RequestToken returns the bearer or cookie token of an unauthenticated route.
func (s *Service) RequestToken(c *gin.Context) string {
	return s.extractToken(c)
}
