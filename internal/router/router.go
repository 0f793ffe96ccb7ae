package router // route registration for the identity API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/fitstack/identity-service/internal/config"
	"github.com/fitstack/identity-service/internal/handler"
	"github.com/fitstack/identity-service/internal/middleware"
	"github.com/fitstack/identity-service/internal/model"
	"github.com/fitstack/identity-service/internal/token"
)

// RegisterRoutes registers the routes that live outside the API groups.
// Currently that is only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires the /api/auth group.  Most endpoints are public; the
// authenticator runs on the whole group so that change-password and
// reset-lock can see the principal, and RequireAuth/RequireRole gate only
// those two.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, codec *token.Codec, resolver middleware.SubjectResolver) {
	g := e.Group("/api/auth", middleware.Authenticate(codec, resolver))

	g.POST("/check-email", a.CheckEmail)
	g.POST("/check-username", a.CheckUsername)
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/confirm-email", a.ConfirmEmail)
	g.POST("/request-password-reset", a.RequestPasswordReset)
	g.POST("/reset-password", a.ResetPassword)

	g.POST("/change-password", a.ChangePassword, middleware.RequireAuth())
	g.POST("/reset-lock/:username", a.ResetLock,
		middleware.RequireAuth(), middleware.RequireRole(model.RoleAdmin))
}

// RegisterUsers wires the /api/users group.  Every endpoint requires an
// authenticated principal; the mutating administrative endpoints require the
// ADMIN role on top.  The user listing is served through the Redis response
// cache when one is available.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, codec *token.Codec, resolver middleware.SubjectResolver,
	cacheCfg config.CacheConfig, rdb *redis.Client) {

	g := e.Group("/api/users", middleware.Authenticate(codec, resolver), middleware.RequireAuth())

	g.GET("", u.List, middleware.ResponseCache(cacheCfg, rdb))
	g.GET("/:id", u.Get)
	g.GET("/by-email/:email", u.GetByEmail)
	g.GET("/by-username/:username", u.GetByUsername)
	g.GET("/username/:email", u.UsernameByEmail)
	g.GET("/email/:username", u.EmailByUsername)

	g.PUT("/:id", u.Update)
	g.DELETE("/delete-account", u.DeleteAccount)

	admin := middleware.RequireRole(model.RoleAdmin)
	g.DELETE("/:id", u.Delete, admin)
	g.PUT("/:id/role", u.UpdateRole, admin)
	g.POST("/:id/enable", u.Enable, admin)
	g.POST("/:id/disable", u.Disable, admin)
	g.POST("/:id/ban", u.Ban, admin)
	g.POST("/:id/unban", u.Unban, admin)
}
