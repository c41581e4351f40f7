// Package auth is the login stub: a fixed user list with bcrypt password
// hashes, a simulated login round-trip, and HS256 session tokens that the
// WebSocket upgrade accepts as ?token=.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/techtie/match-app/internal/delay"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")

	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// User is an account that may log in.
type User struct {
	ID           string `yaml:"id" json:"id"`
	Email        string `yaml:"email" json:"email"`
	Name         string `yaml:"name" json:"name"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(h), nil
}

// LoadUsers reads a YAML user list of the form
//
//	users:
//	  - id: u1
//	    email: sarah@example.com
//	    password_hash: $2a$10$...
func LoadUsers(path string) ([]User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read %s: %w", path, err)
	}
	var f struct {
		Users []User `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("auth: decode %s: %w", path, err)
	}
	for i, u := range f.Users {
		if u.ID == "" || u.Email == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("auth: user %d: id, email and password_hash are required", i)
		}
	}
	return f.Users, nil
}

// Config controls token signing and the simulated login latency.
type Config struct {
	Secret   []byte
	Latency  time.Duration
	TokenTTL time.Duration
}

// Authenticator checks credentials and issues tokens.
type Authenticator struct {
	users map[string]User // lower-cased email -> user
	byID  map[string]User
	cfg   Config
	now   func() time.Time
}

// NewAuthenticator creates an Authenticator over users.
func NewAuthenticator(users []User, cfg Config) *Authenticator {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	byEmail := make(map[string]User, len(users))
	byID := make(map[string]User, len(users))
	for _, u := range users {
		byEmail[normalizeEmail(u.Email)] = u
		byID[u.ID] = u
	}
	return &Authenticator{users: byEmail, byID: byID, cfg: cfg, now: time.Now}
}

// Login waits the configured latency, then verifies the credentials and
// returns a signed token. Cancelling ctx during the wait abandons the login
// with an error matching delay.ErrCanceled.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, User, error) {
	if err := delay.Sleep(ctx, a.cfg.Latency); err != nil {
		return "", User{}, err
	}

	u, ok := a.users[normalizeEmail(email)]
	if !ok {
		return "", User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", User{}, ErrInvalidCredentials
	}

	token, err := a.Issue(u.ID)
	if err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

// Issue signs a token for userID.
func (a *Authenticator) Issue(userID string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns its user id.
func (a *Authenticator) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// UserName returns the display name of userID, or "" for unknown and
// anonymous users.
func (a *Authenticator) UserName(userID string) string {
	return a.byID[userID].Name
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
