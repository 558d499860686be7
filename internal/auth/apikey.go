package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// APIKeyLookup lists where a caller may present the shared key.
const APIKeyLookup = "header:Authorization:Bearer ,header:X-API-Key,query:token"

// APIKeyMiddleware returns a shared-key auth middleware. An empty key
// disables the check.
func APIKeyMiddleware(key string, skipper middleware.Skipper) echo.MiddlewareFunc {
	key = strings.TrimSpace(key)
	if key == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	expected := []byte(key)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper:   skipper,
		KeyLookup: APIKeyLookup,
		Validator: func(presented string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(presented), expected) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing api key")
		},
	})
}
