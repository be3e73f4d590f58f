package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Middleware returns an Echo middleware that authenticates requests.
//
// The middleware:
//  1. Reads the Authorization header and strips the Bearer scheme
//  2. Verifies the token signature and claims
//  3. Sets the tenant id in the Echo context for downstream handlers
//  4. Returns 401 Unauthorized when verification fails
//
// When verification is disabled by configuration, every request is
// assigned the configured dev tenant instead.
func (v *Verifier) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !v.config.Enabled {
				c.Set(tenantIDKey, v.config.DevTenant)
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(tokenString) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			tenantID, err := v.VerifyToken(strings.TrimSpace(tokenString))
			if err != nil {
				v.logger.Warn(c.Request().Context(), "rejected bearer token",
					zap.String("remote_ip", c.RealIP()),
					zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}

			c.Set(tenantIDKey, tenantID)
			return next(c)
		}
	}
}
