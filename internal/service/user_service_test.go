package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitstack/identity-service/internal/database"
	"github.com/fitstack/identity-service/internal/domain"
	"github.com/fitstack/identity-service/internal/lockout"
	"github.com/fitstack/identity-service/internal/model"
	"github.com/fitstack/identity-service/internal/queue"
	"github.com/fitstack/identity-service/internal/repository"
	"github.com/fitstack/identity-service/internal/token"
	"github.com/fitstack/identity-service/internal/utils"
)

// ----- fakes -----

type fakeUsers struct {
	u              *model.User
	existsEmail    bool
	existsUsername bool
	saves          int
	deleted        bool
	replacedRole   int64
}

func (f *fakeUsers) find() (*model.User, error) {
	if f.u == nil {
		return nil, domain.E(domain.KindUserNotFound, "user was not found")
	}
	return f.u, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return f.find()
}
func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return f.find()
}
func (f *fakeUsers) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return f.find()
}
func (f *fakeUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return f.existsEmail, nil
}
func (f *fakeUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return f.existsUsername, nil
}
func (f *fakeUsers) Save(ctx context.Context, u *model.User) error {
	if u.ID == 0 {
		u.ID = 1
	}
	f.saves++
	if f.u == nil {
		f.u = u
	}
	return nil
}
func (f *fakeUsers) ReplaceRole(ctx context.Context, userID, roleID int64) error {
	f.replacedRole = roleID
	return nil
}
func (f *fakeUsers) Delete(ctx context.Context, u *model.User) error {
	f.deleted = true
	return nil
}
func (f *fakeUsers) All(ctx context.Context) ([]model.User, error) {
	if f.u == nil {
		return nil, nil
	}
	return []model.User{*f.u}, nil
}

type fakeRoles struct {
	roles map[string]*model.Role
}

func (f *fakeRoles) FindByName(ctx context.Context, name string) (*model.Role, error) {
	if r, ok := f.roles[name]; ok {
		return r, nil
	}
	return nil, domain.E(domain.KindRoleNotFound, "role "+name+" was not found")
}
func (f *fakeRoles) ExistsByName(ctx context.Context, name string) (bool, error) {
	_, ok := f.roles[name]
	return ok, nil
}
func (f *fakeRoles) Save(ctx context.Context, role *model.Role) error { return nil }

type fakeManager struct {
	users *fakeUsers
	roles *fakeRoles
}

func (m fakeManager) Users(q database.DBTX) repository.UserRepository { return m.users }
func (m fakeManager) Roles(q database.DBTX) repository.RoleRepository { return m.roles }

type fakeMailer struct {
	sent []string // subjects, in order
	err  error
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, subject)
	return nil
}

type fakePublisher struct {
	events []queue.UserLifecycleEvent
}

func (f *fakePublisher) Publish(ctx context.Context, ev queue.UserLifecycleEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// ----- fixture -----

type fixture struct {
	svc    *UserService
	users  *fakeUsers
	roles  *fakeRoles
	mailer *fakeMailer
	events *fakePublisher
	mock   sqlmock.Sqlmock
	codec  *token.Codec
}

func newFixture(t *testing.T, maxLogins int) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		users:  &fakeUsers{},
		roles:  &fakeRoles{roles: map[string]*model.Role{"USER": {ID: 1, Name: "USER"}, "ADMIN": {ID: 2, Name: "ADMIN"}}},
		mailer: &fakeMailer{},
		events: &fakePublisher{},
		mock:   mock,
		codec:  token.NewCodec([]byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour),
	}
	f.svc = NewUserService(db, fakeManager{users: f.users, roles: f.roles}, f.codec,
		f.mailer, lockout.New(), f.events, "http://client.example", maxLogins)
	return f
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := utils.HashPassword(pw)
	require.NoError(t, err)
	return h
}

func activeUser(t *testing.T) *model.User {
	return &model.User{
		ID:           1,
		Email:        "alice@example.com",
		Username:     "alice",
		Firstname:    "Alice",
		Lastname:     "Smith",
		PasswordHash: mustHash(t, "Str0ng!pass"),
		Enabled:      true,
		Roles:        []model.Role{{ID: 1, Name: "USER"}},
	}
}

// ----- registration -----

func TestRegisterCreatesDisabledUserAndMails(t *testing.T) {
	f := newFixture(t, 3)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.svc.Register(context.Background(), RegistrationInput{
		Username:  "alice",
		Firstname: "Alice",
		Lastname:  "Smith",
		Email:     "alice@example.com",
		Password:  "Str0ng!pass",
	})
	require.NoError(t, err)

	require.NotNil(t, f.users.u)
	assert.False(t, f.users.u.Enabled, "new accounts start deactivated")
	assert.False(t, f.users.u.Banned)
	require.Len(t, f.users.u.Roles, 1)
	assert.Equal(t, "USER", f.users.u.Roles[0].Name)
	assert.True(t, utils.VerifyPassword(f.users.u.PasswordHash, "Str0ng!pass"))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Confirm your email address", f.mailer.sent[0])

	require.Len(t, f.events.events, 1)
	assert.Equal(t, queue.EventUserRegistered, f.events.events[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegisterRejectsTakenIdentifiers(t *testing.T) {
	f := newFixture(t, 3)
	f.users.existsUsername = true
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.Register(context.Background(), RegistrationInput{Username: "alice", Email: "alice@example.com", Password: "Str0ng!pass"})
	assert.Equal(t, domain.KindUsernameTaken, domain.KindOf(err))

	f.users.existsUsername = false
	f.users.existsEmail = true
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err = f.svc.Register(context.Background(), RegistrationInput{Username: "alice", Email: "alice@example.com", Password: "Str0ng!pass"})
	assert.Equal(t, domain.KindEmailTaken, domain.KindOf(err))

	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.events.events)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegisterRollsBackWhenMailFails(t *testing.T) {
	f := newFixture(t, 3)
	f.mailer.err = errors.New("smtp down")
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.svc.Register(context.Background(), RegistrationInput{Username: "alice", Email: "alice@example.com", Password: "Str0ng!pass"})
	assert.Equal(t, domain.KindMailFailed, domain.KindOf(err))
	assert.Empty(t, f.events.events)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// ----- activation -----

func TestConfirmEmailActivatesAccount(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	u.Enabled = false
	f.users.u = u

	raw, err := f.codec.GenerateAccess("alice", "USER")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	pair, err := f.svc.ConfirmEmail(context.Background(), raw)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, u.Enabled)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, queue.EventUserEnabled, f.events.events[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConfirmEmailRejectsBadToken(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.svc.ConfirmEmail(context.Background(), "")
	assert.Equal(t, domain.KindTokenInvalid, domain.KindOf(err))

	_, err = f.svc.ConfirmEmail(context.Background(), "garbage")
	assert.Equal(t, domain.KindTokenInvalid, domain.KindOf(err))
}

func TestConfirmEmailTwice(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t) // already enabled

	raw, err := f.codec.GenerateAccess("alice", "USER")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err = f.svc.ConfirmEmail(context.Background(), raw)
	assert.Equal(t, domain.KindAlreadyEnabled, domain.KindOf(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// ----- login -----

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t)

	pair, err := f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, "USER", f.codec.Role(pair.AccessToken))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture(t, 3)

	_, err := f.svc.Login(context.Background(), "ghost", "whatever")
	assert.Equal(t, domain.KindUserNotFound, domain.KindOf(err))
}

func TestLoginWrongPasswordEventuallyLocks(t *testing.T) {
	f := newFixture(t, 2)
	u := activeUser(t)
	f.users.u = u

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(context.Background(), "alice", "Wr0ng!pass")
		assert.Equal(t, domain.KindBadCredentials, domain.KindOf(err))
	}

	// threshold reached: the next attempt locks, even with the right password
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	assert.Equal(t, domain.KindLocked, domain.KindOf(err))
	require.NotNil(t, u.LockedUntil)
	assert.True(t, u.LockedUntil.After(time.Now()))

	// while the lock holds, attempts are rejected without touching the row
	_, err = f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	assert.Equal(t, domain.KindLocked, domain.KindOf(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoginClearsExpiredLock(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	past := time.Now().Add(-time.Minute)
	u.LockedUntil = &past
	f.users.u = u

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	pair, err := f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Nil(t, u.LockedUntil)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	u.Enabled = false
	f.users.u = u

	_, err := f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	assert.Equal(t, domain.KindDisabled, domain.KindOf(err))
}

func TestLoginBannedAccount(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	u.Banned = true
	future := time.Now().Add(24 * time.Hour)
	u.BannedUntil = &future
	f.users.u = u

	_, err := f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	assert.Equal(t, domain.KindLocked, domain.KindOf(err))

	// a permanent ban has no end date
	u.BannedUntil = nil
	_, err = f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	assert.Equal(t, domain.KindLocked, domain.KindOf(err))
}

func TestLoginClearsExpiredBan(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	u.Banned = true
	past := time.Now().Add(-24 * time.Hour)
	u.BannedUntil = &past
	f.users.u = u

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	pair, err := f.svc.Login(context.Background(), "alice", "Str0ng!pass")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.False(t, u.Banned)
	assert.Nil(t, u.BannedUntil)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// ----- passwords -----

func TestChangePassword(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.ChangePassword(context.Background(), "alice", "Wr0ng!pass", "N3w!Secret")
	assert.Equal(t, domain.KindPasswordMismatch, domain.KindOf(err))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.ChangePassword(context.Background(), "alice", "Str0ng!pass", "Str0ng!pass")
	assert.Equal(t, domain.KindPasswordReused, domain.KindOf(err))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	err = f.svc.ChangePassword(context.Background(), "alice", "Str0ng!pass", "N3w!Secret")
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(f.users.u.PasswordHash, "N3w!Secret"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Your password has been changed", f.mailer.sent[0])
	require.Len(t, f.events.events, 1)
	assert.Equal(t, queue.EventPasswordChanged, f.events.events[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t)

	raw, err := f.codec.GenerateAccess("alice", "USER")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.ResetPassword(context.Background(), raw, "Str0ng!pass")
	assert.Equal(t, domain.KindPasswordReused, domain.KindOf(err))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	err = f.svc.ResetPassword(context.Background(), raw, "N3w!Secret")
	require.NoError(t, err)
	assert.True(t, utils.VerifyPassword(f.users.u.PasswordHash, "N3w!Secret"))
	assert.Empty(t, f.mailer.sent, "reset sends no notification mail")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSendResetEmail(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t)

	require.NoError(t, f.svc.SendResetEmail(context.Background(), "alice@example.com"))
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Reset your password", f.mailer.sent[0])

	f.mailer.err = errors.New("smtp down")
	err := f.svc.SendResetEmail(context.Background(), "alice@example.com")
	assert.Equal(t, domain.KindMailFailed, domain.KindOf(err))
}

// ----- administrative transitions -----

func TestEnableDisableUser(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	u.Enabled = false
	f.users.u = u

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.EnableUser(context.Background(), 1))
	assert.True(t, u.Enabled)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.EnableUser(context.Background(), 1)
	assert.Equal(t, domain.KindAlreadyEnabled, domain.KindOf(err))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.DisableUser(context.Background(), 1))
	assert.False(t, u.Enabled)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.DisableUser(context.Background(), 1)
	assert.Equal(t, domain.KindAlreadyDisabled, domain.KindOf(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBanAndUnbanUser(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	f.users.u = u

	err := f.svc.BanUser(context.Background(), 1, time.Now().Add(-time.Hour))
	assert.Equal(t, domain.KindInvalidBanEnd, domain.KindOf(err))
	assert.Equal(t, http.StatusBadRequest, domain.HTTPStatus(domain.KindOf(err)))

	until := time.Now().Add(48 * time.Hour)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.BanUser(context.Background(), 1, until))
	assert.True(t, u.Banned)
	require.NotNil(t, u.BannedUntil)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.UnbanUser(context.Background(), 1))
	assert.False(t, u.Banned)
	assert.Nil(t, u.BannedUntil)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.svc.UnbanUser(context.Background(), 1)
	assert.Equal(t, domain.KindNotBanned, domain.KindOf(err))

	types := make([]string, 0, len(f.events.events))
	for _, ev := range f.events.events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{queue.EventUserBanned, queue.EventUserUnbanned}, types)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateUserRole(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.UpdateUserRole(context.Background(), 1, "SUPERVISOR")
	assert.Equal(t, domain.KindRoleNotFound, domain.KindOf(err))

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.UpdateUserRole(context.Background(), 1, "ADMIN"))
	assert.Equal(t, int64(2), f.users.replacedRole)
	assert.Equal(t, "ADMIN", f.users.u.PrimaryRole())

	require.Len(t, f.events.events, 1)
	assert.Equal(t, queue.EventRoleChanged, f.events.events[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResetAccountLock(t *testing.T) {
	f := newFixture(t, 3)
	u := activeUser(t)
	until := time.Now().Add(time.Minute)
	u.LockedUntil = &until
	f.users.u = u

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.ResetAccountLock(context.Background(), 1))
	assert.Nil(t, u.LockedUntil)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteUserPublishesEvent(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.svc.DeleteUser(context.Background(), 1))
	assert.True(t, f.users.deleted)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, queue.EventUserDeleted, f.events.events[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateUserRejectsTakenEmail(t *testing.T) {
	f := newFixture(t, 3)
	f.users.u = activeUser(t)
	f.users.existsEmail = true

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.UpdateUser(context.Background(), 1, "Alice", "Smith", "other@example.com")
	assert.Equal(t, domain.KindEmailTaken, domain.KindOf(err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
