package auth

import (
	"errors"
	"time"
)

type User struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        string
	Role                string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	ResetToken          *string
	ResetTokenExpiry    *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SafeUser is the only account shape that leaves the package boundary.
type SafeUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) Sanitized() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// ErrNotFound is the single lookup-miss sentinel; repositories map
// sql.ErrNoRows to it so callers never branch on a driver error.
var ErrNotFound = errors.New("not found")

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrAccountNotFound    = errors.New("account not found")
)

type ErrAccountLocked struct {
	Until time.Time
}

func (e ErrAccountLocked) Error() string {
	return "account temporarily locked"
}
