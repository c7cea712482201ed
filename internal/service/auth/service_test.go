package auth

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/moodchat/backend/internal/config"
	"github.com/zhouzirui/moodchat/backend/internal/store"
)

type sentMail struct {
	to, code, name string
}

type fakeMailer struct {
	sent chan sentMail
	err  error
}

func (f *fakeMailer) SendOTP(_ context.Context, to, code, name string) error {
	f.sent <- sentMail{to: to, code: code, name: name}
	return f.err
}

func newTestService(t *testing.T) (*Service, *fakeMailer, *store.Store) {
	t.Helper()
	s, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mailer := &fakeMailer{sent: make(chan sentMail, 4)}
	svc := NewService(s, NewTokenManager("secret", time.Hour), mailer, config.AuthConfig{OTPLifetime: 10 * time.Minute}, false)
	return svc, mailer, s
}

func receive(t *testing.T, mailer *fakeMailer) sentMail {
	t.Helper()
	select {
	case m := <-mailer.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OTP email")
		return sentMail{}
	}
}

func TestGenerateOTPFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^[1-9][0-9]{5}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP err: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected code %q", code)
		}
	}
}

func TestLoginFlow(t *testing.T) {
	svc, mailer, _ := newTestService(t)
	ctx := context.Background()

	check, err := svc.CheckEmail(ctx, "ada@example.com")
	if err != nil || check.Verified {
		t.Fatalf("expected unverified unknown email, got %+v, %v", check, err)
	}

	if err := svc.RequestOTP(ctx, " Ada@Example.com ", ""); err != nil {
		t.Fatalf("RequestOTP err: %v", err)
	}
	mail := receive(t, mailer)
	svc.Wait()
	if mail.to != "ada@example.com" {
		t.Fatalf("unexpected recipient %q", mail.to)
	}

	if _, err := svc.VerifyOTP(ctx, "ada@example.com", "000000"); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected ErrInvalidOTP, got %v", err)
	}

	session, err := svc.VerifyOTP(ctx, "ada@example.com", mail.code)
	if err != nil {
		t.Fatalf("VerifyOTP err: %v", err)
	}
	if session.Token == "" || !session.User.EmailVerified || session.User.Name != "ada" {
		t.Fatalf("unexpected session: %+v", session)
	}

	claims, err := svc.Tokens().Parse(session.Token)
	if err != nil || claims.UserID != session.User.ID {
		t.Fatalf("token does not identify the user: %+v, %v", claims, err)
	}

	if _, err := svc.VerifyOTP(ctx, "ada@example.com", mail.code); !errors.Is(err, ErrNoOTP) {
		t.Fatalf("expected code to be consumed, got %v", err)
	}

	check, err = svc.CheckEmail(ctx, "ada@example.com")
	if err != nil || !check.Verified || check.Session == nil {
		t.Fatalf("expected verified login, got %+v, %v", check, err)
	}

	me, err := svc.CurrentUser(ctx, session.User.ID)
	if err != nil || me.Email != "ada@example.com" {
		t.Fatalf("unexpected current user %+v, %v", me, err)
	}
}

func TestRequestOTPUpdatesExistingUser(t *testing.T) {
	svc, mailer, users := newTestService(t)
	ctx := context.Background()

	if err := svc.RequestOTP(ctx, "bob@example.com", "Bob"); err != nil {
		t.Fatalf("RequestOTP err: %v", err)
	}
	first := receive(t, mailer)
	if err := svc.RequestOTP(ctx, "bob@example.com", "Robert"); err != nil {
		t.Fatalf("RequestOTP err: %v", err)
	}
	second := receive(t, mailer)
	svc.Wait()

	u, err := users.GetUserByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail err: %v", err)
	}
	if u.OTP != second.code {
		t.Fatalf("expected latest code %q, got %q (first was %q)", second.code, u.OTP, first.code)
	}
	if u.Name != "Bob" {
		t.Fatalf("existing name must be kept, got %q", u.Name)
	}
}

func TestVerifyOTPErrors(t *testing.T) {
	svc, mailer, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.VerifyOTP(ctx, "", "123456"); !errors.Is(err, ErrOTPRequired) {
		t.Fatalf("expected ErrOTPRequired, got %v", err)
	}
	if _, err := svc.VerifyOTP(ctx, "ghost@example.com", "123456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := svc.RequestOTP(ctx, "cy@example.com", ""); err != nil {
		t.Fatalf("RequestOTP err: %v", err)
	}
	mail := receive(t, mailer)
	svc.Wait()

	svc.now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	if _, err := svc.VerifyOTP(ctx, "cy@example.com", mail.code); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	if _, err := svc.VerifyOTP(ctx, "cy@example.com", mail.code); !errors.Is(err, ErrNoOTP) {
		t.Fatalf("expected expired code to be cleared, got %v", err)
	}
	if !strings.Contains(Message(ErrOTPExpired), "expired") {
		t.Fatalf("unexpected message %q", Message(ErrOTPExpired))
	}

	if _, err := svc.CurrentUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := svc.RequestOTP(ctx, "  ", ""); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}
}

func TestMailFailureDoesNotFailRequest(t *testing.T) {
	svc, mailer, _ := newTestService(t)
	mailer.err = errors.New("smtp down")

	if err := svc.RequestOTP(context.Background(), "dee@example.com", ""); err != nil {
		t.Fatalf("RequestOTP err: %v", err)
	}
	receive(t, mailer)
	svc.Wait()
}
