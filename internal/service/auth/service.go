// Package auth implements passwordless email login: one-time codes sent by
// mail and JWT session tokens.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/moodchat/backend/internal/config"
	"github.com/zhouzirui/moodchat/backend/internal/model/user"
	"github.com/zhouzirui/moodchat/backend/internal/store"
)

const (
	otpDigits       = 6
	mailSendTimeout = 30 * time.Second
)

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrOTPRequired        = errors.New("email and otp are required")
	ErrInvalidCredentials = errors.New("invalid email or otp")
	ErrNoOTP              = errors.New("no otp pending")
	ErrOTPExpired         = errors.New("otp expired")
	ErrInvalidOTP         = errors.New("otp mismatch")
	ErrInactive           = errors.New("account inactive")
	ErrUserNotFound       = errors.New("user not found")
)

var messages = map[error]string{
	ErrEmailRequired:      "Email is required",
	ErrOTPRequired:        "Email and OTP are required",
	ErrInvalidCredentials: "Invalid email or OTP",
	ErrNoOTP:              "No OTP found. Please request a new one.",
	ErrOTPExpired:         "OTP has expired. Please request a new one.",
	ErrInvalidOTP:         "Invalid OTP",
	ErrInactive:           "Account is inactive. Please contact support.",
	ErrUserNotFound:       "User not found",
	ErrTokenExpired:       "Token has expired. Please login again.",
	ErrInvalidToken:       "Invalid token. Please login again.",
}

// Message returns the client-facing text for an auth error.
func Message(err error) string {
	for sentinel, text := range messages {
		if errors.Is(err, sentinel) {
			return text
		}
	}
	return "An error occurred. Please try again."
}

// UserStore is the account persistence used by Service.
type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	GetUserByID(ctx context.Context, id string) (*user.User, error)
	UpdateUserOTP(ctx context.Context, id, otp string, expiresAt time.Time) error
	ClearUserOTP(ctx context.Context, id string) error
	VerifyUserEmail(ctx context.Context, id string) error
	UpdateUserName(ctx context.Context, id, name string) error
}

// Session is returned after a successful login.
type Session struct {
	Token string      `json:"token"`
	User  user.Public `json:"user"`
}

// CheckResult reports whether an email can skip the OTP step.
type CheckResult struct {
	Verified bool
	Session  *Session
}

// Service handles the login flow.
type Service struct {
	users       UserStore
	tokens      *TokenManager
	mailer      Mailer
	otpLifetime time.Duration
	development bool
	now         func() time.Time
	pending     sync.WaitGroup
}

// NewService wires the login flow.
func NewService(users UserStore, tokens *TokenManager, mailer Mailer, cfg config.AuthConfig, development bool) *Service {
	lifetime := cfg.OTPLifetime
	if lifetime <= 0 {
		lifetime = 10 * time.Minute
	}
	return &Service{
		users:       users,
		tokens:      tokens,
		mailer:      mailer,
		otpLifetime: lifetime,
		development: development,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Tokens exposes the token manager for request authentication.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// CheckEmail logs verified users straight in.
func (s *Service) CheckEmail(ctx context.Context, email string) (CheckResult, error) {
	if strings.TrimSpace(email) == "" {
		return CheckResult{}, ErrEmailRequired
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return CheckResult{}, nil
	}
	if err != nil {
		return CheckResult{}, err
	}
	if !u.EmailVerified {
		return CheckResult{}, nil
	}

	session, err := s.session(*u)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Verified: true, Session: &session}, nil
}

// RequestOTP issues a fresh code, creating the account on first use. The
// email is sent in the background.
func (s *Service) RequestOTP(ctx context.Context, email, name string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	name = strings.TrimSpace(name)

	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.otpLifetime)

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		displayName := name
		if displayName == "" {
			displayName, _, _ = strings.Cut(email, "@")
		}
		u := &user.User{
			ID:           uuid.NewString(),
			Email:        email,
			Name:         displayName,
			OTP:          code,
			OTPExpiresAt: &expiresAt,
			Status:       user.StatusActive,
			Type:         user.TypeUser,
			CreatedAt:    s.now(),
		}
		if err := s.users.CreateUser(ctx, u); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if err := s.users.UpdateUserOTP(ctx, existing.ID, code, expiresAt); err != nil {
			return err
		}
		if name != "" && existing.Name == "" {
			if err := s.users.UpdateUserName(ctx, existing.ID, name); err != nil {
				return err
			}
		}
	}

	if s.development {
		log.Printf("[auth] OTP for %s: %s", email, code)
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		sendCtx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()
		if err := s.mailer.SendOTP(sendCtx, email, code, name); err != nil {
			log.Printf("[auth] failed to send OTP email to %s: %v", email, err)
		}
	}()
	return nil
}

// VerifyOTP checks the submitted code and logs the user in.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (Session, error) {
	code = strings.TrimSpace(code)
	if strings.TrimSpace(email) == "" || code == "" {
		return Session{}, ErrOTPRequired
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	switch {
	case u.OTP == "":
		return Session{}, ErrNoOTP
	case u.OTPExpiresAt != nil && s.now().After(*u.OTPExpiresAt):
		// 过期的验证码直接作废
		if err := s.users.ClearUserOTP(ctx, u.ID); err != nil {
			log.Printf("[auth] failed to clear expired otp for %s: %v", u.ID, err)
		}
		return Session{}, ErrOTPExpired
	case subtle.ConstantTimeCompare([]byte(u.OTP), []byte(code)) != 1:
		return Session{}, ErrInvalidOTP
	case !u.Active():
		return Session{}, ErrInactive
	}

	if err := s.users.VerifyUserEmail(ctx, u.ID); err != nil {
		return Session{}, err
	}
	verified, err := s.users.GetUserByID(ctx, u.ID)
	if err != nil {
		return Session{}, err
	}
	log.Printf("[auth] user %s verified", verified.ID)
	return s.session(*verified)
}

// CurrentUser loads the public profile for an authenticated id.
func (s *Service) CurrentUser(ctx context.Context, id string) (user.Public, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return user.Public{}, ErrUserNotFound
	}
	if err != nil {
		return user.Public{}, err
	}
	return u.Public(), nil
}

// Wait blocks until background emails have been handed off.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) session(u user.User) (Session, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: u.Public()}, nil
}

// GenerateOTP returns a uniformly random six digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()+100000), nil
}
