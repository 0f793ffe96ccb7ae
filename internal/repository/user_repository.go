package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/fitstack/identity-service/internal/database"
	"github.com/fitstack/identity-service/internal/domain"
	"github.com/fitstack/identity-service/internal/model"
)

// UserRepository is the persistence contract for user rows and their role
// links.  Implementations run against whichever DBTX they were built with,
// so the service layer decides the transaction boundary.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Save(ctx context.Context, u *model.User) error
	ReplaceRole(ctx context.Context, userID, roleID int64) error
	Delete(ctx context.Context, u *model.User) error
	All(ctx context.Context) ([]model.User, error)
}

const userColumns = "id, email, username, firstname, lastname, password, created_at, enabled, banned, banned_until, locked_until"

// UserRepo implements UserRepository on MySQL.
type UserRepo struct{ q database.DBTX }

// NewUserRepo binds a repo to a pool or an open transaction.
func NewUserRepo(q database.DBTX) *UserRepo { return &UserRepo{q: q} }

// FindByID fetches a user with roles loaded, or USER_NOT_FOUND.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return r.scanUser(ctx, row)
}

// FindByEmail fetches a user by email, or USER_NOT_FOUND.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return r.scanUser(ctx, row)
}

// FindByUsername fetches a user by username, or USER_NOT_FOUND.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username)
	return r.scanUser(ctx, row)
}

// ExistsByEmail reports whether a user row claims the email.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email=?)", email).Scan(&exists)
	return exists, err
}

// ExistsByUsername reports whether a user row claims the username.
func (r *UserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username=?)", username).Scan(&exists)
	return exists, err
}

// Save inserts u when its ID is zero (assigning ID, CreatedAt and the role
// links) and updates the row otherwise.  Role links are only written on
// insert; ReplaceRole handles later role changes.
func (r *UserRepo) Save(ctx context.Context, u *model.User) error {
	if u.ID == 0 {
		return r.insert(ctx, u)
	}
	_, err := r.q.ExecContext(ctx,
		"UPDATE users SET email=?, firstname=?, lastname=?, password=?, enabled=?, banned=?, banned_until=?, locked_until=? WHERE id=?",
		u.Email, u.Firstname, u.Lastname, u.PasswordHash,
		u.Enabled, u.Banned, u.BannedUntil, u.LockedUntil, u.ID)
	if err != nil {
		return mapDuplicate(err)
	}
	return nil
}

func (r *UserRepo) insert(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO users (email, username, firstname, lastname, password, created_at, enabled, banned, banned_until, locked_until) VALUES (?,?,?,?,?,?,?,?,?,?)",
		u.Email, u.Username, u.Firstname, u.Lastname, u.PasswordHash,
		u.CreatedAt, u.Enabled, u.Banned, u.BannedUntil, u.LockedUntil)
	if err != nil {
		return mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	for _, role := range u.Roles {
		if _, err := r.q.ExecContext(ctx,
			"INSERT INTO users_roles (user_id, role_id) VALUES (?,?)", u.ID, role.ID); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceRole atomically swaps the user's role set for exactly one role.
// Callers run it inside a transaction together with any related writes.
func (r *UserRepo) ReplaceRole(ctx context.Context, userID, roleID int64) error {
	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM users_roles WHERE user_id=?", userID); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO users_roles (user_id, role_id) VALUES (?,?)", userID, roleID)
	return err
}

// Delete removes the user row and cascades the role links.
func (r *UserRepo) Delete(ctx context.Context, u *model.User) error {
	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM users_roles WHERE user_id=?", u.ID); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, "DELETE FROM users WHERE id=?", u.ID)
	return err
}

// All returns every user with roles loaded.
func (r *UserRepo) All(ctx context.Context) ([]model.User, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUserRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range users {
		roles, err := r.loadRoles(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
		users[i].Roles = roles
	}
	return users, nil
}

func (r *UserRepo) scanUser(ctx context.Context, row *sql.Row) (*model.User, error) {
	u, err := scanUserRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.E(domain.KindUserNotFound, "user was not found")
		}
		return nil, err
	}
	u.Roles, err = r.loadRoles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func scanUserRow(scan func(dest ...any) error) (*model.User, error) {
	var u model.User
	var bannedUntil, lockedUntil sql.NullTime
	err := scan(&u.ID, &u.Email, &u.Username, &u.Firstname, &u.Lastname,
		&u.PasswordHash, &u.CreatedAt, &u.Enabled, &u.Banned, &bannedUntil, &lockedUntil)
	if err != nil {
		return nil, err
	}
	if bannedUntil.Valid {
		t := bannedUntil.Time
		u.BannedUntil = &t
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		u.LockedUntil = &t
	}
	return &u, nil
}

func (r *UserRepo) loadRoles(ctx context.Context, userID int64) ([]model.Role, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT r.id, r.name FROM roles r JOIN users_roles ur ON ur.role_id=r.id WHERE ur.user_id=? ORDER BY r.id",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// mapDuplicate turns a MySQL duplicate-key error (1062) into the matching
// business kind by inspecting which unique index tripped.
func mapDuplicate(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "1062") {
		return err
	}
	if strings.Contains(msg, "email") {
		return domain.E(domain.KindEmailTaken, "the email address is already in use")
	}
	return domain.E(domain.KindUsernameTaken, "the username is already taken")
}
