package model

import "time"

// Well-known role names.  The application seeds exactly these two rows in
// the roles table at startup; USER is the default grant for new accounts.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents an application user record as stored in the `users`
// table.  Each field corresponds to a column in the database.  The json
// tags are omitted here because these structs are used internally by the
// repository and service layers; handlers define separate response types.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address (max 50 chars).
//  Username     – unique login name (3–30 alphanumeric chars).
//  Firstname    – given name (2–30 letters).
//  Lastname     – family name (2–30 letters).
//  PasswordHash – bcrypt hashed password.
//  CreatedAt    – timestamp of creation; set once on insert.
//  Enabled      – whether the account has been activated.
//  Banned       – whether an admin has banned the account.
//  BannedUntil  – end of a time-limited ban; nil means permanent when Banned.
//  LockedUntil  – end of a failed-login lockout; nil when not locked.
//  Roles        – roles granted via the users_roles link table.
type User struct {
	ID           int64      // users.id
	Email        string     // users.email
	Username     string     // users.username
	Firstname    string     // users.firstname
	Lastname     string     // users.lastname
	PasswordHash string     // users.password
	CreatedAt    time.Time  // users.created_at
	Enabled      bool       // users.enabled
	Banned       bool       // users.banned
	BannedUntil  *time.Time // users.banned_until (nullable)
	LockedUntil  *time.Time // users.locked_until (nullable)
	Roles        []Role     // joined via users_roles
}

// PrimaryRole returns the name of the user's effective role.  The link
// table allows several rows per user, but the domain treats the first
// role by iteration order as the single primary role and falls back to
// USER when the set is empty.
func (u *User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return RoleUser
	}
	return u.Roles[0].Name
}

// Role represents a row in the `roles` table.
type Role struct {
	ID   int64  // roles.id
	Name string // roles.name
}
