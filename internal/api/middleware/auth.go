package middleware

import (
	"context"
	"net/http"
	"strings"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/pkg/response"

	"github.com/gin-gonic/gin"
)

// Context keys.
const (
	ExternalIDKey = "external_id"
	ClaimsKey     = "claims"
	ViewerKey     = "viewer"
)

type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// Browsers cannot set headers on a websocket handshake.
	return c.Query("token")
}

// RequireAuth verifies the bearer token and stores its subject as the external id.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "authorization is required")
			return
		}

		claims, err := auth.ParseToken(am.jwtSecret, token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ExternalIDKey, claims.ExternalID())
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// ViewerResolver finds the profile registered for an external id.
type ViewerResolver interface {
	Resolve(ctx context.Context, externalID string) (*models.User, error)
}

// RequireViewer loads the caller's profile. Callers without one get 404 and
// must POST /users first.
func RequireViewer(users ViewerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.Resolve(c.Request.Context(), c.GetString(ExternalIDKey))
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(ViewerKey, user)
		c.Next()
	}
}

// Viewer returns the profile set by RequireViewer.
func Viewer(c *gin.Context) *models.User {
	v, _ := c.Get(ViewerKey)
	user, _ := v.(*models.User)
	return user
}
