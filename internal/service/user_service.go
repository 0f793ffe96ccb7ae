// Package service contains the business logic for the user lifecycle:
// registration, activation, login with progressive lockout, password
// management and the administrative transitions.  It is the only layer
// allowed to mutate user rows.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fitstack/identity-service/internal/database"
	"github.com/fitstack/identity-service/internal/domain"
	"github.com/fitstack/identity-service/internal/lockout"
	"github.com/fitstack/identity-service/internal/logger"
	"github.com/fitstack/identity-service/internal/mail"
	"github.com/fitstack/identity-service/internal/model"
	"github.com/fitstack/identity-service/internal/queue"
	"github.com/fitstack/identity-service/internal/repository"
	"github.com/fitstack/identity-service/internal/token"
	"github.com/fitstack/identity-service/internal/utils"
)

// lockDuration is how long an account stays locked after too many
// consecutive failed logins.
const lockDuration = time.Minute

// TokenPair bundles a short-lived access token and a longer-lived refresh
// token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Subject is the authentication view of a user handed to the password
// check and to the request authenticator: username, stored hash and the
// ROLE_-prefixed authority strings.
type Subject struct {
	Username     string
	PasswordHash string
	Authorities  []string
}

// HasAuthority reports whether the subject carries the given authority.
func (s *Subject) HasAuthority(a string) bool {
	for _, have := range s.Authorities {
		if have == a {
			return true
		}
	}
	return false
}

// RegistrationInput carries the already-validated signup fields.
type RegistrationInput struct {
	Username  string
	Firstname string
	Lastname  string
	Email     string
	Password  string
}

// EventPublisher emits lifecycle audit events.  Publishing is best effort;
// the service logs failures and never fails a request over them.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.UserLifecycleEvent) error
}

// UserService orchestrates all state transitions on user records.
type UserService struct {
	db        *sql.DB
	repos     repository.Manager
	codec     *token.Codec
	mailer    mail.Sender
	locks     *lockout.Tracker
	events    EventPublisher
	clientURL string
	maxLogins int
}

// NewUserService wires the service.  events may be nil when no broker is
// configured.
func NewUserService(db *sql.DB, repos repository.Manager, codec *token.Codec,
	mailer mail.Sender, locks *lockout.Tracker, events EventPublisher,
	clientURL string, maxLoginAttempts int) *UserService {
	return &UserService{
		db:        db,
		repos:     repos,
		codec:     codec,
		mailer:    mailer,
		locks:     locks,
		events:    events,
		clientURL: clientURL,
		maxLogins: maxLoginAttempts,
	}
}

// ----- read operations -----

// GetAllUsers returns every user.
func (s *UserService) GetAllUsers(ctx context.Context) ([]model.User, error) {
	return s.repos.Users(s.db).All(ctx)
}

// GetUserByID returns one user or USER_NOT_FOUND.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.repos.Users(s.db).FindByID(ctx, id)
}

// GetUserByEmail returns one user or USER_NOT_FOUND.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.repos.Users(s.db).FindByEmail(ctx, email)
}

// GetUserByUsername returns one user or USER_NOT_FOUND.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.repos.Users(s.db).FindByUsername(ctx, username)
}

// GetUsernameByEmail resolves the login name behind an email address.
func (s *UserService) GetUsernameByEmail(ctx context.Context, email string) (string, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// GetEmailByUsername resolves the email address behind a login name.
func (s *UserService) GetEmailByUsername(ctx context.Context, username string) (string, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// IsEmailAvailable reports whether no user claims the email yet.
func (s *UserService) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	taken, err := s.repos.Users(s.db).ExistsByEmail(ctx, email)
	return !taken, err
}

// IsUsernameAvailable reports whether no user claims the username yet.
func (s *UserService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := s.repos.Users(s.db).ExistsByUsername(ctx, username)
	return !taken, err
}

// ----- registration and activation -----

// Register creates a disabled user with the default USER role and sends
// the confirmation mail.  The insert and the mail send share a transaction:
// an undeliverable confirmation rolls the user back.
func (s *UserService) Register(ctx context.Context, in RegistrationInput) error {
	var created model.User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)

		taken, err := users.ExistsByUsername(ctx, in.Username)
		if err != nil {
			return err
		}
		if taken {
			return domain.E(domain.KindUsernameTaken, "the username is already taken")
		}
		taken, err = users.ExistsByEmail(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return domain.E(domain.KindEmailTaken, "the email address is already in use")
		}

		userRole, err := s.repos.Roles(tx).FindByName(ctx, model.RoleUser)
		if err != nil {
			return err
		}

		hash, err := utils.HashPassword(in.Password)
		if err != nil {
			return err
		}
		u := model.User{
			Email:        in.Email,
			Username:     in.Username,
			Firstname:    in.Firstname,
			Lastname:     in.Lastname,
			PasswordHash: hash,
			Enabled:      false,
			Banned:       false,
			Roles:        []model.Role{*userRole},
		}
		if err := users.Save(ctx, &u); err != nil {
			return err
		}
		created = u

		return s.sendConfirmationEmail(&u)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventUserRegistered, &created)
	return nil
}

// ConfirmEmail activates the account named by the token's subject and
// returns a fresh token pair.  The refresh token is meant for the
// HTTP-only cookie the endpoint layer sets.
func (s *UserService) ConfirmEmail(ctx context.Context, raw string) (*TokenPair, error) {
	if raw == "" {
		return nil, domain.E(domain.KindTokenInvalid, "token is invalid or expired")
	}
	username, err := s.codec.ExtractUsername(raw)
	if err != nil {
		return nil, err
	}

	var confirmed model.User
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if u.Enabled {
			return domain.E(domain.KindAlreadyEnabled, "user account is already activated")
		}
		u.Enabled = true
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		confirmed = *u
		return nil
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.tokenPair(confirmed.Username, confirmed.PrimaryRole())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.EventUserEnabled, &confirmed)
	return pair, nil
}

// ----- login -----

// Login runs the normative credential check sequence.  The per-username
// guard makes the counter check and the lock transition atomic with respect
// to concurrent attempts for the same account.  Each persisted step commits
// on its own so that a lock written in step four survives the failed login
// that triggered it.
func (s *UserService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	unlock := s.locks.Guard(username)
	defer unlock()

	users := s.repos.Users(s.db)

	// 1. the account must exist
	u, err := users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	// 2. an expired lock is cleared before the attempt is evaluated
	if u.LockedUntil != nil && u.LockedUntil.Before(now) {
		s.locks.Reset(username)
		u.LockedUntil = nil
		if err := s.saveTx(ctx, u); err != nil {
			return nil, err
		}
	}

	// 3. an active lock rejects the attempt outright
	if u.LockedUntil != nil && u.LockedUntil.After(now) {
		return nil, lockedError(*u.LockedUntil)
	}

	// 4. too many failures lock the account for the next minute
	if s.locks.Attempts(username) >= s.maxLogins {
		until := now.Add(lockDuration)
		u.LockedUntil = &until
		if err := s.saveTx(ctx, u); err != nil {
			return nil, err
		}
		return nil, lockedError(until)
	}

	// 5. enabled/banned gates, then the password check
	subject, err := s.authSubject(ctx, u)
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(subject.PasswordHash, password) {
		s.locks.Increment(username)
		return nil, domain.E(domain.KindBadCredentials, "wrong username or password")
	}

	// 6. success clears the counter and mints a fresh pair
	s.locks.Reset(username)
	return s.tokenPair(u.Username, u.PrimaryRole())
}

// AuthSubject resolves a username into its authentication view, applying
// the enabled and banned gates.  The request authenticator uses it to
// install a principal.
func (s *UserService) AuthSubject(ctx context.Context, username string) (*Subject, error) {
	u, err := s.repos.Users(s.db).FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.authSubject(ctx, u)
}

// authSubject enforces the resolver gates on an already-loaded user.  A ban
// whose end has passed is cleared and persisted before the subject is
// returned.
func (s *UserService) authSubject(ctx context.Context, u *model.User) (*Subject, error) {
	if !u.Enabled {
		return nil, domain.E(domain.KindDisabled, "user account is not activated")
	}
	if u.Banned {
		if u.BannedUntil == nil {
			return nil, domain.E(domain.KindLocked, "user is permanently banned")
		}
		if u.BannedUntil.After(time.Now()) {
			return nil, domain.E(domain.KindLocked,
				fmt.Sprintf("user is banned until %s", u.BannedUntil.Format(time.RFC3339)))
		}
		u.Banned = false
		u.BannedUntil = nil
		if err := s.saveTx(ctx, u); err != nil {
			return nil, err
		}
	}

	authorities := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		authorities = append(authorities, "ROLE_"+role.Name)
	}
	return &Subject{
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Authorities:  authorities,
	}, nil
}

// ----- profile, deletion, password -----

// UpdateUser edits the profile fields.  A changed email must still be free.
func (s *UserService) UpdateUser(ctx context.Context, id int64, firstname, lastname, email string) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if u.Email != email {
			taken, err := users.ExistsByEmail(ctx, email)
			if err != nil {
				return err
			}
			if taken {
				return domain.E(domain.KindEmailTaken, "the email address is already in use")
			}
		}
		u.Firstname = firstname
		u.Lastname = lastname
		u.Email = email
		return users.Save(ctx, u)
	})
}

// DeleteUser removes the user and its role links.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	var deleted model.User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		deleted = *u
		return users.Delete(ctx, u)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventUserDeleted, &deleted)
	return nil
}

// ChangePassword rotates the password after re-authenticating the caller.
// The new password must differ from the stored one, and the notification
// mail is part of the transaction: if it cannot be sent, the change is
// undone.
func (s *UserService) ChangePassword(ctx context.Context, username, current, newPassword string) error {
	var changed model.User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if !utils.VerifyPassword(u.PasswordHash, current) {
			return domain.E(domain.KindPasswordMismatch, "the current password is incorrect")
		}
		if utils.VerifyPassword(u.PasswordHash, newPassword) {
			return domain.E(domain.KindPasswordReused, "the new password must differ from the old password")
		}
		hash, err := utils.HashPassword(newPassword)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		changed = *u
		return s.sendPasswordChangeNotification(u)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventPasswordChanged, &changed)
	return nil
}

// ResetPassword rotates the password of the token's subject.  No mail is
// sent; the caller proved mailbox ownership by presenting the token.
func (s *UserService) ResetPassword(ctx context.Context, raw, newPassword string) error {
	username, err := s.codec.ExtractUsername(raw)
	if err != nil {
		return err
	}
	var changed model.User
	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if !s.codec.Validate(raw, u.Username) {
			return domain.E(domain.KindTokenInvalid, "token is invalid or expired")
		}
		if utils.VerifyPassword(u.PasswordHash, newPassword) {
			return domain.E(domain.KindPasswordReused, "the new password must differ from the old password")
		}
		hash, err := utils.HashPassword(newPassword)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		changed = *u
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventPasswordChanged, &changed)
	return nil
}

// SendResetEmail mails a password-reset link to the account behind email.
func (s *UserService) SendResetEmail(ctx context.Context, email string) error {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	tok, err := s.codec.GenerateAccess(u.Username, u.PrimaryRole())
	if err != nil {
		return err
	}
	resetURL := s.clientURL + "/reset-password?token=" + tok
	body := fmt.Sprintf(`<html>
<body>
    <h1>Reset your password</h1>
    <p>Please click the following link to reset your password:</p>
    <a href="%s">Reset password</a>
    <br><br>
</body>
</html>`, resetURL)
	if err := s.mailer.Send(u.Email, "Reset your password", body); err != nil {
		logger.L().Errorw("reset mail failed", "email", u.Email, "err", err)
		return domain.E(domain.KindMailFailed, "failed to send the password reset email")
	}
	return nil
}

// ----- administrative transitions -----

// EnableUser activates an account; activating twice is an error.
func (s *UserService) EnableUser(ctx context.Context, id int64) error {
	var enabled model.User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if u.Enabled {
			return domain.E(domain.KindAlreadyEnabled, "user account is already activated")
		}
		u.Enabled = true
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		enabled = *u
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventUserEnabled, &enabled)
	return nil
}

// DisableUser deactivates an account; deactivating twice is an error.
func (s *UserService) DisableUser(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !u.Enabled {
			return domain.E(domain.KindAlreadyDisabled, "user account is already deactivated")
		}
		u.Enabled = false
		return users.Save(ctx, u)
	})
}

// BanUser bans an account until the given time, which must be in the
// future.
func (s *UserService) BanUser(ctx context.Context, id int64, until time.Time) error {
	if !until.After(time.Now()) {
		return domain.E(domain.KindInvalidBanEnd,
			fmt.Sprintf("ban end %s is not in the future", until.Format(time.RFC3339)))
	}
	var banned model.User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		u.Banned = true
		u.BannedUntil = &until
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		banned = *u
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventUserBanned, &banned)
	return nil
}

// UnbanUser lifts a ban; an account that is not banned is an error.
func (s *UserService) UnbanUser(ctx context.Context, id int64) error {
	var unbanned model.User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !u.Banned {
			return domain.E(domain.KindNotBanned, "user is not banned")
		}
		u.Banned = false
		u.BannedUntil = nil
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		unbanned = *u
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventUserUnbanned, &unbanned)
	return nil
}

// ResetAccountLock clears the persisted lock and the in-memory failure
// counter for the account.
func (s *UserService) ResetAccountLock(ctx context.Context, id int64) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		u.LockedUntil = nil
		if err := users.Save(ctx, u); err != nil {
			return err
		}
		s.locks.Reset(u.Username)
		return nil
	})
}

// UpdateUserRole replaces the user's role set with exactly the named role.
func (s *UserService) UpdateUserRole(ctx context.Context, id int64, roleName string) error {
	var updated model.User
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		users := s.repos.Users(tx)
		u, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		role, err := s.repos.Roles(tx).FindByName(ctx, roleName)
		if err != nil {
			return err
		}
		if err := users.ReplaceRole(ctx, u.ID, role.ID); err != nil {
			return err
		}
		u.Roles = []model.Role{*role}
		updated = *u
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, queue.EventRoleChanged, &updated)
	return nil
}

// ----- helpers -----

func (s *UserService) tokenPair(username, role string) (*TokenPair, error) {
	access, err := s.codec.GenerateAccess(username, role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.GenerateRefresh(username)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// saveTx persists a single user row in its own transaction.  Used by the
// login steps whose writes must survive the failure they precede.
func (s *UserService) saveTx(ctx context.Context, u *model.User) error {
	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		return s.repos.Users(tx).Save(ctx, u)
	})
}

func (s *UserService) sendConfirmationEmail(u *model.User) error {
	tok, err := s.codec.GenerateAccess(u.Username, u.PrimaryRole())
	if err != nil {
		return err
	}
	confirmURL := s.clientURL + "/confirm-email?token=" + tok
	body := fmt.Sprintf(`<html>
<body>
    <h1>Confirm your email address</h1>
    <p>Please click the following link to confirm your email address:</p>
    <a href="%s">Confirm email</a>
    <br><br>
</body>
</html>`, confirmURL)
	if err := s.mailer.Send(u.Email, "Confirm your email address", body); err != nil {
		logger.L().Errorw("confirmation mail failed", "email", u.Email, "err", err)
		return domain.E(domain.KindMailFailed, "failed to send the confirmation email")
	}
	return nil
}

func (s *UserService) sendPasswordChangeNotification(u *model.User) error {
	body := `<html>
<body>
    <h1>Your password has been changed</h1>
    <p>If you did not request this change, please contact support immediately.</p>
</body>
</html>`
	if err := s.mailer.Send(u.Email, "Your password has been changed", body); err != nil {
		logger.L().Errorw("password change mail failed", "email", u.Email, "err", err)
		return domain.E(domain.KindMailFailed, "failed to send the password change notification")
	}
	return nil
}

func lockedError(until time.Time) error {
	return domain.E(domain.KindLocked,
		fmt.Sprintf("account is locked until %s", until.Format(time.RFC3339)))
}

// publish emits a lifecycle event after a committed transition.  Broker
// trouble is logged and otherwise ignored.
func (s *UserService) publish(ctx context.Context, typ string, u *model.User) {
	if s.events == nil {
		return
	}
	ev := queue.UserLifecycleEvent{
		Type:       typ,
		UserID:     u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.PrimaryRole(),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.L().Warnw("lifecycle event publish failed", "type", typ, "user", u.Username, "err", err)
	}
}
