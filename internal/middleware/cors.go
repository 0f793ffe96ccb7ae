package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORS builds the cross-origin filter from configuration.  The browser
// client lives at clientURL; methods and headers come from the
// CORS_ALLOWED_* settings and are opaque to the rest of the service.
// Preflight OPTIONS requests are answered here and never reach the
// authenticator, matching the deployed browser contract.
func CORS(clientURL string, methods, headers []string) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{clientURL},
		AllowMethods:     methods,
		AllowHeaders:     headers,
		AllowCredentials: true,
	})
}
