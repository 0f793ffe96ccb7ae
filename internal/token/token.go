// Package token mints and verifies the signed bearer tokens handed to API
// clients.  Access tokens carry the caller's username and role; refresh
// tokens carry only the username and live longer.  Verification is
// fail-closed: any parse problem surfaces as the generic TOKEN_INVALID kind
// and the concrete cause is only logged.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fitstack/identity-service/internal/domain"
	"github.com/fitstack/identity-service/internal/logger"
	"github.com/fitstack/identity-service/internal/model"
)

// Codec signs and verifies HS256 tokens with a single symmetric key.
type Codec struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec builds a codec from the already hex-decoded signing key and the
// configured validities.
func NewCodec(key []byte, accessTTL, refreshTTL time.Duration) *Codec {
	return &Codec{key: key, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// GenerateAccess mints an access token with subject, role, iat and exp
// claims.  An empty role falls back to USER.
func (c *Codec) GenerateAccess(username, role string) (string, error) {
	if role == "" {
		role = model.RoleUser
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(c.accessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// GenerateRefresh mints a refresh token carrying no role claim.
func (c *Codec) GenerateRefresh(username string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(c.refreshTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// ExtractUsername returns the sub claim of a verified token.  Bad signature,
// malformed input and expiry all collapse into TOKEN_INVALID; the cause is
// logged but never returned to the caller.
func (c *Codec) ExtractUsername(raw string) (string, error) {
	claims, err := c.parse(raw)
	if err != nil {
		logger.L().Warnw("token rejected", "cause", err)
		return "", domain.E(domain.KindTokenInvalid, "token is invalid or expired")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		logger.L().Warnw("token rejected", "cause", "missing sub claim")
		return "", domain.E(domain.KindTokenInvalid, "token is invalid or expired")
	}
	return sub, nil
}

// Validate reports whether raw verifies, names expectedUsername as its
// subject and has not expired.  jwt.Parse already enforces exp, so a token
// that parses and matches the subject is valid.
func (c *Codec) Validate(raw, expectedUsername string) bool {
	sub, err := c.ExtractUsername(raw)
	return err == nil && sub == expectedUsername
}

// Role returns the role claim of a verified token, or "" when absent.
func (c *Codec) Role(raw string) string {
	claims, err := c.parse(raw)
	if err != nil {
		return ""
	}
	role, _ := claims["role"].(string)
	return role
}

func (c *Codec) parse(raw string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("unexpected claims format")
	}
	return claims, nil
}
