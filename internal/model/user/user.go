package user

import (
	"strings"
	"time"
)

const (
	StatusActive = "active"
	TypeUser     = "user"
)

// User is an account identified by email and authenticated through one-time codes.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	OTP           string     `json:"-"`
	OTPExpiresAt  *time.Time `json:"-"`
	EmailVerified bool       `json:"email_verified"`
	Status        string     `json:"status"`
	Type          string     `json:"type"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Public is the user projection returned to clients.
type Public struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	Status        string `json:"status"`
	Type          string `json:"type"`
}

// Public strips credentials from the user record.
func (u User) Public() Public {
	return Public{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Status:        u.Status,
		Type:          u.Type,
	}
}

// Active reports whether the account may sign in.
func (u User) Active() bool {
	return u.Status == StatusActive
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
