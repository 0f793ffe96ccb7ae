package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitstack/identity-service/internal/domain"
	"github.com/fitstack/identity-service/internal/model"
)

// userStub satisfies UserAdminService through overridable function fields.
type userStub struct {
	getByID    func(id int64) (*model.User, error)
	ban        func(id int64, until time.Time) error
	delete     func(id int64) error
	updateRole func(id int64, role string) error
}

func sampleUser() *model.User {
	return &model.User{
		ID:           7,
		Email:        "alice@example.com",
		Username:     "alice",
		Firstname:    "Alice",
		Lastname:     "Smith",
		PasswordHash: "$2a$secret",
		CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Enabled:      true,
		Roles:        []model.Role{{ID: 1, Name: "USER"}},
	}
}

func (s *userStub) GetAllUsers(ctx context.Context) ([]model.User, error) {
	return []model.User{*sampleUser()}, nil
}
func (s *userStub) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if s.getByID != nil {
		return s.getByID(id)
	}
	return sampleUser(), nil
}
func (s *userStub) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return sampleUser(), nil
}
func (s *userStub) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return sampleUser(), nil
}
func (s *userStub) GetUsernameByEmail(ctx context.Context, email string) (string, error) {
	return "alice", nil
}
func (s *userStub) GetEmailByUsername(ctx context.Context, username string) (string, error) {
	return "alice@example.com", nil
}
func (s *userStub) UpdateUser(ctx context.Context, id int64, firstname, lastname, email string) error {
	return nil
}
func (s *userStub) DeleteUser(ctx context.Context, id int64) error {
	if s.delete != nil {
		return s.delete(id)
	}
	return nil
}
func (s *userStub) UpdateUserRole(ctx context.Context, id int64, role string) error {
	if s.updateRole != nil {
		return s.updateRole(id, role)
	}
	return nil
}
func (s *userStub) EnableUser(ctx context.Context, id int64) error                  { return nil }
func (s *userStub) DisableUser(ctx context.Context, id int64) error                 { return nil }
func (s *userStub) BanUser(ctx context.Context, id int64, until time.Time) error {
	if s.ban != nil {
		return s.ban(id, until)
	}
	return nil
}
func (s *userStub) UnbanUser(ctx context.Context, id int64) error { return nil }

func newUserEcho(stub *userStub) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	u := NewUserHandler(stub)
	e.GET("/api/users", u.List)
	e.GET("/api/users/:id", u.Get)
	e.PUT("/api/users/:id", u.Update)
	e.DELETE("/api/users/:id", u.Delete)
	e.POST("/api/users/:id/ban", u.Ban)
	e.POST("/api/users/:id/enable", u.Enable)
	e.PUT("/api/users/:id/role", u.UpdateRole)
	return e
}

func TestListHidesPasswordHash(t *testing.T) {
	e := newUserEcho(&userStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
	assert.Contains(t, rec.Body.String(), `"role":"USER"`)
	assert.NotContains(t, rec.Body.String(), "$2a$secret")
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestGetRejectsBadID(t *testing.T) {
	e := newUserEcho(&userStub{})

	for _, path := range []string{"/api/users/abc", "/api/users/0", "/api/users/-3"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "path %s", path)
	}
}

func TestGetUnknownUserIs404(t *testing.T) {
	stub := &userStub{getByID: func(int64) (*model.User, error) {
		return nil, domain.E(domain.KindUserNotFound, "user was not found")
	}}
	e := newUserEcho(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/users/99", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBanValidatesDays(t *testing.T) {
	var gotUntil time.Time
	stub := &userStub{ban: func(id int64, until time.Time) error {
		gotUntil = until
		return nil
	}}
	e := newUserEcho(stub)

	for _, q := range []string{"", "?days=0", "?days=-1", "?days=abc"} {
		req := httptest.NewRequest(http.MethodPost, "/api/users/7/ban"+q, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "query %q", q)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/users/7/ban?days=3", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	want := time.Now().AddDate(0, 0, 3)
	assert.WithinDuration(t, want, gotUntil, time.Minute)
}

func TestUpdateValidatesProfile(t *testing.T) {
	e := newUserEcho(&userStub{})

	rec := doJSON(e, http.MethodPut, "/api/users/7",
		`{"firstname":"","lastname":"Smith","email":"bad"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errs))
	assert.Contains(t, errs, "firstname")
	assert.Contains(t, errs, "email")
}

func TestUpdateRoleBindsNameField(t *testing.T) {
	var gotRole string
	stub := &userStub{updateRole: func(id int64, role string) error {
		gotRole = role
		return nil
	}}
	e := newUserEcho(stub)

	rec := doJSON(e, http.MethodPut, "/api/users/7/role", `{"name":"ADMIN"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ADMIN", gotRole)

	rec = doJSON(e, http.MethodPut, "/api/users/7/role", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "role name required")
}

func TestErrorHandlerDefaultsTo400(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.POST("/api/users/:id/enable", func(c echo.Context) error {
		return domain.E(domain.KindAlreadyEnabled, "user account is already activated")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/users/7/enable", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already activated")
}
