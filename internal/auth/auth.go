// Package auth guards the dashboard with a single bcrypt password and a
// signed session cookie.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	CookieName = "lotto_session"
	subject    = "dashboard"
	issuer     = "roamlotto"
)

var (
	ErrBadPassword  = errors.New("wrong password")
	ErrInvalidToken = errors.New("invalid token")
)

// Hash & check
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Authenticator issues dashboard sessions. With an empty password hash the
// dashboard is open and every request counts as authenticated.
type Authenticator struct {
	secret       []byte
	passwordHash string
	ttl          time.Duration
	now          func() time.Time
}

func New(jwtSecret, passwordHash string) *Authenticator {
	return &Authenticator{
		secret:       []byte(jwtSecret),
		passwordHash: passwordHash,
		ttl:          72 * time.Hour,
		now:          time.Now,
	}
}

func (a *Authenticator) Enabled() bool { return a != nil && a.passwordHash != "" }

func (a *Authenticator) TTL() time.Duration { return a.ttl }

// Login checks pw and returns a signed session token.
func (a *Authenticator) Login(pw string) (string, error) {
	if !a.Enabled() {
		return "", errors.New("dashboard password not configured")
	}
	if !CheckPassword(pw, a.passwordHash) {
		return "", ErrBadPassword
	}
	return a.IssueToken()
}

func (a *Authenticator) IssueToken() (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret not set")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Valid reports whether tok is a live session token.
func (a *Authenticator) Valid(tok string) error {
	if len(a.secret) == 0 {
		return errors.New("jwt secret not set")
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims,
		func(*jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid || claims.Subject != subject {
		return ErrInvalidToken
	}
	return nil
}
