package middleware // reusable HTTP middleware for the API

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fitstack/identity-service/internal/logger"
	"github.com/fitstack/identity-service/internal/service"
	"github.com/fitstack/identity-service/internal/token"
)

// Context keys under which the authenticated principal is stored.
const (
	CtxUsername    = "username"
	CtxAuthorities = "authorities"
)

// SubjectResolver resolves a username into its authentication view.  The
// user service implements it.
type SubjectResolver interface {
	AuthSubject(ctx context.Context, username string) (*service.Subject, error)
}

// Authenticate returns the request authenticator.  It inspects the
// Authorization header; requests without a Bearer token, with an
// unparseable token or with an unresolvable subject proceed
// unauthenticated; rejecting them is the job of RequireAuth and
// RequireRole further down the chain.  When the token verifies against the
// resolved subject, the principal is installed into the request context.
func Authenticate(codec *token.Codec, resolver SubjectResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return next(c)
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			username, err := codec.ExtractUsername(raw)
			if err != nil {
				// cause already logged by the codec
				return next(c)
			}

			subject, err := resolver.AuthSubject(c.Request().Context(), username)
			if err != nil {
				logger.L().Warnw("subject not resolvable", "username", username, "err", err)
				return next(c)
			}
			if !codec.Validate(raw, subject.Username) {
				logger.L().Warnw("token validation failed", "username", username)
				return next(c)
			}

			c.Set(CtxUsername, subject.Username)
			c.Set(CtxAuthorities, subject.Authorities)
			return next(c)
		}
	}
}

// RequireAuth rejects requests that carry no authenticated principal.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := c.Get(CtxUsername).(string); !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			return next(c)
		}
	}
}

// RequireRole rejects authenticated requests whose principal holds none of
// the given roles.  Role names are matched against the ROLE_-prefixed
// authority strings of the principal.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed["ROLE_"+r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authorities, ok := c.Get(CtxAuthorities).([]string)
			if !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			for _, a := range authorities {
				if allowed[a] {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}

// Principal returns the authenticated username stored by Authenticate, or
// "" when the request is anonymous.
func Principal(c echo.Context) string {
	username, _ := c.Get(CtxUsername).(string)
	return username
}
