package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zhouzirui/moodchat/backend/internal/model/user"
)

// ErrDuplicateEmail is returned when an account already uses the address.
var ErrDuplicateEmail = errors.New("store: email already registered")

const userColumns = `id, email, name, otp, otp_expires_at, email_verified, status, type, created_at`

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	u.Email = user.NormalizeEmail(u.Email)
	if _, err := s.GetUserByEmail(ctx, u.Email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	var expires sql.NullString
	if u.OTPExpiresAt != nil {
		expires = nullString(formatTime(*u.OTPExpiresAt))
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, nullString(u.Name), nullString(u.OTP), expires,
		boolToInt(u.EmailVerified), u.Status, u.Type, formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail looks up an account by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, user.NormalizeEmail(email))
}

// GetUserByID looks up an account by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// UpdateUserOTP stores a pending one-time code.
func (s *Store) UpdateUserOTP(ctx context.Context, id, otp string, expiresAt time.Time) error {
	_, err := s.exec(ctx, `UPDATE users SET otp = ?, otp_expires_at = ? WHERE id = ?`, otp, formatTime(expiresAt), id)
	if err != nil {
		return fmt.Errorf("failed to update otp: %w", err)
	}
	return nil
}

// ClearUserOTP removes any pending one-time code.
func (s *Store) ClearUserOTP(ctx context.Context, id string) error {
	if _, err := s.exec(ctx, `UPDATE users SET otp = NULL, otp_expires_at = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear otp: %w", err)
	}
	return nil
}

// VerifyUserEmail marks the address verified and consumes the code.
func (s *Store) VerifyUserEmail(ctx context.Context, id string) error {
	_, err := s.exec(ctx, `UPDATE users SET email_verified = 1, otp = NULL, otp_expires_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	return nil
}

// UpdateUserName sets the display name.
func (s *Store) UpdateUserName(ctx context.Context, id, name string) error {
	if _, err := s.exec(ctx, `UPDATE users SET name = ? WHERE id = ?`, nullString(name), id); err != nil {
		return fmt.Errorf("failed to update name: %w", err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (*user.User, error) {
	var (
		u         user.User
		name, otp sql.NullString
		expires   sql.NullString
		verified  int
		createdAt string
	)
	err := s.queryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &name, &otp, &expires, &verified, &u.Status, &u.Type, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Name = name.String
	u.OTP = otp.String
	u.EmailVerified = verified != 0
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if expires.Valid && expires.String != "" {
		t, err := parseTime(expires.String)
		if err != nil {
			return nil, err
		}
		u.OTPExpiresAt = &t
	}
	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
