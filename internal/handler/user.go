package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fitstack/identity-service/internal/middleware"
	"github.com/fitstack/identity-service/internal/model"
	"github.com/fitstack/identity-service/internal/validation"
)

// UserAdminService is the slice of the user service the /api/users endpoints
// consume.
type UserAdminService interface {
	GetAllUsers(ctx context.Context) ([]model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUsernameByEmail(ctx context.Context, email string) (string, error)
	GetEmailByUsername(ctx context.Context, username string) (string, error)
	UpdateUser(ctx context.Context, id int64, firstname, lastname, email string) error
	DeleteUser(ctx context.Context, id int64) error
	UpdateUserRole(ctx context.Context, id int64, role string) error
	EnableUser(ctx context.Context, id int64) error
	DisableUser(ctx context.Context, id int64) error
	BanUser(ctx context.Context, id int64, until time.Time) error
	UnbanUser(ctx context.Context, id int64) error
}

// UserHandler bundles dependencies for the /api/users endpoints.
type UserHandler struct {
	svc UserAdminService
}

func NewUserHandler(svc UserAdminService) *UserHandler { return &UserHandler{svc: svc} }

// userResp is the JSON view of an account.  The password hash never leaves
// the service.
type userResp struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Firstname   string     `json:"firstname"`
	Lastname    string     `json:"lastname"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Enabled     bool       `json:"enabled"`
	Banned      bool       `json:"banned"`
	BannedUntil *time.Time `json:"bannedUntil,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type profileUpdateReq struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
}

type roleUpdateReq struct {
	Name string `json:"name"`
}

func toUserResp(u *model.User) userResp {
	return userResp{
		ID:          u.ID,
		Username:    u.Username,
		Firstname:   u.Firstname,
		Lastname:    u.Lastname,
		Email:       u.Email,
		Role:        u.PrimaryRole(),
		Enabled:     u.Enabled,
		Banned:      u.Banned,
		BannedUntil: u.BannedUntil,
		CreatedAt:   u.CreatedAt,
	}
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id, nil
}

// List returns every account.
func (h *UserHandler) List(c echo.Context) error {
	users, err := h.svc.GetAllUsers(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]userResp, 0, len(users))
	for i := range users {
		out = append(out, toUserResp(&users[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one account by id.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUserByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// GetByEmail returns one account by email address.
func (h *UserHandler) GetByEmail(c echo.Context) error {
	u, err := h.svc.GetUserByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// GetByUsername returns one account by username.
func (h *UserHandler) GetByUsername(c echo.Context) error {
	u, err := h.svc.GetUserByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}

// UsernameByEmail resolves an email address to its username.
func (h *UserHandler) UsernameByEmail(c echo.Context) error {
	username, err := h.svc.GetUsernameByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"username": username})
}

// EmailByUsername resolves a username to its email address.
func (h *UserHandler) EmailByUsername(c echo.Context) error {
	email, err := h.svc.GetEmailByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"email": email})
}

// Update rewrites the profile fields of an account.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req profileUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validation.ProfileUpdate(req.Firstname, req.Lastname, req.Email); errs.Any() {
		return c.JSON(http.StatusBadRequest, errs)
	}
	if err := h.svc.UpdateUser(c.Request().Context(), id, req.Firstname, req.Lastname, req.Email); err != nil {
		return err
	}
	return c.String(http.StatusOK, "User profile updated successfully.")
}

// Delete removes an account by id (admin only).
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUser(c.Request().Context(), id); err != nil {
		return err
	}
	return c.String(http.StatusOK, "User deleted successfully.")
}

// DeleteAccount removes the authenticated caller's own account.
func (h *UserHandler) DeleteAccount(c echo.Context) error {
	username := middleware.Principal(c)
	u, err := h.svc.GetUserByUsername(c.Request().Context(), username)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUser(c.Request().Context(), u.ID); err != nil {
		return err
	}
	return c.String(http.StatusOK, "Your account has been deleted.")
}

// UpdateRole replaces the account's role (admin only).
func (h *UserHandler) UpdateRole(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req roleUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role name required"})
	}
	if err := h.svc.UpdateUserRole(c.Request().Context(), id, req.Name); err != nil {
		return err
	}
	return c.String(http.StatusOK, "User role updated successfully.")
}

// Enable activates a disabled account (admin only).
func (h *UserHandler) Enable(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.EnableUser(c.Request().Context(), id); err != nil {
		return err
	}
	return c.String(http.StatusOK, "User enabled successfully.")
}

// Disable deactivates an account (admin only).
func (h *UserHandler) Disable(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DisableUser(c.Request().Context(), id); err != nil {
		return err
	}
	return c.String(http.StatusOK, "User disabled successfully.")
}

// Ban suspends an account for the given number of days (admin only).
func (h *UserHandler) Ban(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	days, err := strconv.Atoi(c.QueryParam("days"))
	if err != nil || days <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be a positive integer"})
	}
	until := time.Now().AddDate(0, 0, days)
	if err := h.svc.BanUser(c.Request().Context(), id, until); err != nil {
		return err
	}
	return c.String(http.StatusOK, "User banned successfully.")
}

// Unban lifts a suspension (admin only).
func (h *UserHandler) Unban(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.UnbanUser(c.Request().Context(), id); err != nil {
		return err
	}
	return c.String(http.StatusOK, "User unbanned successfully.")
}
