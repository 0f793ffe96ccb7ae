// Package validation holds the pure field predicates applied to request
// bodies before any business logic runs.  Each DTO has a static schema
// function returning a field→message map; an empty map means the input is
// well formed.
package validation

import (
	"regexp"
	"unicode"
)

var (
	emailRe    = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+\.[a-z]{2,}$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9]{3,30}$`)
	nameRe     = regexp.MustCompile(`^[A-Za-z]{2,30}$`)
)

// Errors accumulates per-field validation messages.
type Errors map[string]string

// Any reports whether at least one field failed.
func (e Errors) Any() bool { return len(e) > 0 }

func (e Errors) add(field, msg string) {
	if msg != "" {
		e[field] = msg
	}
}

// Email checks the address format and the 50 character column limit.
func Email(v string) string {
	if len(v) > 50 || !emailRe.MatchString(v) {
		return "must be a valid email address of at most 50 characters"
	}
	return ""
}

// Username checks for 3–30 alphanumeric characters.
func Username(v string) string {
	if !usernameRe.MatchString(v) {
		return "must be 3-30 alphanumeric characters"
	}
	return ""
}

// Name checks a first or last name for 2–30 letters.
func Name(v string) string {
	if !nameRe.MatchString(v) {
		return "must be 2-30 letters"
	}
	return ""
}

// Password enforces at least 8 characters with one uppercase letter, one
// lowercase letter, one digit and one special character.
func Password(v string) string {
	var upper, lower, digit, special bool
	for _, r := range v {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if len(v) < 8 || !upper || !lower || !digit || !special {
		return "must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit and a special character"
	}
	return ""
}

// Registration is the schema for the signup body.
func Registration(username, firstname, lastname, email, password string) Errors {
	e := Errors{}
	e.add("username", Username(username))
	e.add("firstname", Name(firstname))
	e.add("lastname", Name(lastname))
	e.add("email", Email(email))
	e.add("password", Password(password))
	return e
}

// EmailField is the schema for bodies carrying only an email.
func EmailField(email string) Errors {
	e := Errors{}
	e.add("email", Email(email))
	return e
}

// UsernameField is the schema for bodies carrying only a username.
func UsernameField(username string) Errors {
	e := Errors{}
	e.add("username", Username(username))
	return e
}

// NewPassword is the schema for bodies introducing a new password.
func NewPassword(password string) Errors {
	e := Errors{}
	e.add("newPassword", Password(password))
	return e
}

// ProfileUpdate is the schema for the profile edit body.
func ProfileUpdate(firstname, lastname, email string) Errors {
	e := Errors{}
	e.add("firstname", Name(firstname))
	e.add("lastname", Name(lastname))
	e.add("email", Email(email))
	return e
}
