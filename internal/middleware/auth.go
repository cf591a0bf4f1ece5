package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-proxy-bridge/pkg/ginadapter"
	"lambda-proxy-bridge/pkg/lambda"
)

// Context keys set by Identity
const (
	UserIDKey          = "user_id"
	ScopesKey          = "scopes"
	SecurityContextKey = "security_context"
)

// Identity copies the caller identity resolved from the invocation event
// into the gin context. Anonymous requests pass through untouched.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := ginadapter.CurrentPrincipal(c)
		if ok && !sc.IsAnonymous() {
			c.Set(UserIDKey, sc.Principal)
			c.Set(ScopesKey, sc.Claims)
			c.Set(SecurityContextKey, sc)

			logrus.WithFields(logrus.Fields{
				"user_id": sc.Principal,
				"scopes":  sc.Claims,
				"path":    c.Request.URL.Path,
			}).Debug("Caller identity attached")
		}
		c.Next()
	}
}

// RequireScopes rejects callers holding none of requiredScopes. It must run
// after Identity.
func RequireScopes(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(requiredScopes) == 0 {
			c.Next()
			return
		}

		sc, ok := GetSecurityContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		for _, required := range requiredScopes {
			if sc.HasClaim(required) {
				c.Next()
				return
			}
		}

		logrus.WithFields(logrus.Fields{
			"user_id":         sc.Principal,
			"user_scopes":     sc.Claims,
			"required_scopes": requiredScopes,
			"path":            c.Request.URL.Path,
		}).Warn("Authorization failed - insufficient scopes")

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":           "Insufficient permissions",
			"required_scopes": requiredScopes,
		})
	}
}

// GetUserFromContext extracts the caller identity from gin context
func GetUserFromContext(c *gin.Context) (userID string, scopes []string, ok bool) {
	userID = c.GetString(UserIDKey)
	if userID == "" {
		return "", nil, false
	}
	scopes = c.GetStringSlice(ScopesKey)
	return userID, scopes, true
}

// GetSecurityContext returns the full security context set by Identity
func GetSecurityContext(c *gin.Context) (*lambda.SecurityContext, bool) {
	v, exists := c.Get(SecurityContextKey)
	if !exists {
		return nil, false
	}
	sc, ok := v.(*lambda.SecurityContext)
	return sc, ok
}

// HasScope checks if the current caller holds scope
func HasScope(c *gin.Context, scope string) bool {
	sc, ok := GetSecurityContext(c)
	return ok && sc.HasClaim(scope)
}
