package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fitstack/identity-service/internal/middleware"
	"github.com/fitstack/identity-service/internal/model"
	"github.com/fitstack/identity-service/internal/service"
	"github.com/fitstack/identity-service/internal/validation"
)

// refreshCookieMaxAge is the 7-day lifetime of the refresh token cookie set
// on confirm-email.
const refreshCookieMaxAge = 7 * 24 * 3600

// AuthService is the slice of the user service the auth endpoints consume.
type AuthService interface {
	IsEmailAvailable(ctx context.Context, email string) (bool, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
	Register(ctx context.Context, in service.RegistrationInput) error
	Login(ctx context.Context, username, password string) (*service.TokenPair, error)
	ConfirmEmail(ctx context.Context, token string) (*service.TokenPair, error)
	SendResetEmail(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, username, current, newPassword string) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ResetAccountLock(ctx context.Context, id int64) error
}

// AuthHandler bundles dependencies for the /api/auth endpoints.
type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler { return &AuthHandler{svc: svc} }

// ----- DTOs -----

type checkEmailReq struct {
	Email string `json:"email"`
}
type checkUsernameReq struct {
	Username string `json:"username"`
}
type availabilityResp struct {
	Available bool `json:"available"`
}
type signupReq struct {
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type loginResp struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
type confirmEmailReq struct {
	Token string `json:"token"`
}
type passwordResetReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// CheckEmail reports whether an email address is still free.
func (h *AuthHandler) CheckEmail(c echo.Context) error {
	var req checkEmailReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validation.EmailField(req.Email); errs.Any() {
		return c.JSON(http.StatusBadRequest, errs)
	}
	available, err := h.svc.IsEmailAvailable(c.Request().Context(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, availabilityResp{Available: available})
}

// CheckUsername reports whether a username is still free.
func (h *AuthHandler) CheckUsername(c echo.Context) error {
	var req checkUsernameReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validation.UsernameField(req.Username); errs.Any() {
		return c.JSON(http.StatusBadRequest, errs)
	}
	available, err := h.svc.IsUsernameAvailable(c.Request().Context(), req.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, availabilityResp{Available: available})
}

// Signup registers a new account and triggers the confirmation mail.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validation.Registration(req.Username, req.Firstname, req.Lastname, req.Email, req.Password); errs.Any() {
		return c.JSON(http.StatusBadRequest, errs)
	}
	err := h.svc.Register(c.Request().Context(), service.RegistrationInput{
		Username:  req.Username,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, "User registered successfully! Please confirm your email address.")
}

// Login exchanges credentials for an access/refresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}
	pair, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResp{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// ConfirmEmail activates the account named by the token and attaches the
// refresh token as an HTTP-only cookie.
func (h *AuthHandler) ConfirmEmail(c echo.Context) error {
	var req confirmEmailReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	pair, err := h.svc.ConfirmEmail(c.Request().Context(), req.Token)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     "refreshToken",
		Value:    pair.RefreshToken,
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
		MaxAge:   refreshCookieMaxAge,
		Expires:  time.Now().Add(refreshCookieMaxAge * time.Second),
	})
	return c.JSON(http.StatusOK, echo.Map{
		"message": "User account activated successfully!",
		"token":   pair.AccessToken,
	})
}

// RequestPasswordReset mails a reset link to the given address.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req passwordResetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validation.EmailField(req.Email); errs.Any() {
		return c.JSON(http.StatusBadRequest, errs)
	}
	if err := h.svc.SendResetEmail(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.String(http.StatusOK, "A password reset link has been sent to your email address.")
}

// ResetPassword sets a new password for the subject of the reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validation.NewPassword(req.NewPassword); errs.Any() {
		return c.JSON(http.StatusBadRequest, errs)
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.String(http.StatusOK, "Your password has been reset successfully.")
}

// ChangePassword rotates the password of the authenticated caller.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validation.NewPassword(req.NewPassword); errs.Any() {
		return c.JSON(http.StatusBadRequest, errs)
	}
	username := middleware.Principal(c)
	if err := h.svc.ChangePassword(c.Request().Context(), username, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.String(http.StatusOK, "Password changed successfully.")
}

// ResetLock clears the lockout state of the named account (admin only).
func (h *AuthHandler) ResetLock(c echo.Context) error {
	username := c.Param("username")
	u, err := h.svc.GetUserByUsername(c.Request().Context(), username)
	if err != nil {
		return err
	}
	if err := h.svc.ResetAccountLock(c.Request().Context(), u.ID); err != nil {
		return err
	}
	return c.String(http.StatusOK, "Account lock and failed login attempts reset successfully.")
}
