package credential

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"leadintake/internal/constants"
	"leadintake/internal/logger"
	"leadintake/pkg/errors"
	"leadintake/pkg/logging"
)

const (
	TenantIDKey = "tenant_id"
	UserIDKey   = "user_id"
)

// TenantID returns the tenant an auth middleware resolved for the request.
func TenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

// VendorAuth rejects requests whose sid/apikey headers do not resolve to a
// tenant before any body is read.
func VendorAuth(v *Validator, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sid := c.GetHeader(constants.HeaderSID)

		tenantID, err := v.Validate(ctx, sid, c.GetHeader(constants.HeaderAPIKey))
		if err != nil {
			if errors.IsAuthentication(err) {
				log.WarnwCtx(ctx, "Rejected vendor credentials",
					"sid", logger.MaskSecret(sid),
					"path", c.Request.URL.Path,
					"error", err,
				)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"message": messageOf(err),
				})
				return
			}
			log.ErrorwCtx(ctx, "Credential check failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Internal server error",
			})
			return
		}

		setTenant(c, tenantID)
		c.Next()
	}
}

// SessionAuth accepts a CRM session from the Authorization bearer token or
// the session cookie.
func SessionAuth(v *SessionVerifier, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(constants.SessionCookieName)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Authentication required"})
			return
		}

		claims, err := v.Verify(token)
		if err != nil {
			log.WarnwCtx(c.Request.Context(), "Rejected session", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": messageOf(err)})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		setTenant(c, claims.TenantID)
		c.Next()
	}
}

func setTenant(c *gin.Context, tenantID string) {
	c.Set(TenantIDKey, tenantID)
	c.Request = c.Request.WithContext(logging.WithTenantID(c.Request.Context(), tenantID))
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func messageOf(err error) string {
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
