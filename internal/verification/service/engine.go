package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"rdx-auth/internal/audit"
	"rdx-auth/internal/devcode"
	userdomain "rdx-auth/internal/user/domain"
	"rdx-auth/internal/verification"
	"rdx-auth/internal/verification/domain"
)

// Sentinel errors for the verification engine; handler maps them to HTTP codes.
var (
	ErrInvalidCode     = errors.New("invalid or expired verification code")
	ErrTooManyAttempts = errors.New("too many verification attempts; request a new code")
)

// ChallengeRepo is the minimal challenge repository needed by the engine.
type ChallengeRepo interface {
	Create(ctx context.Context, c *domain.Challenge) error
	GetActive(ctx context.Context, channel domain.Channel, subject string) (*domain.Challenge, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Consume(ctx context.Context, id string) (bool, error)
	InvalidateActive(ctx context.Context, channel domain.Channel, subject string) error
}

// UserRepo is the minimal user repository needed by the engine.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByPhone(ctx context.Context, countryCode, number string) (*userdomain.User, error)
	SetVerified(ctx context.Context, userID string, channel userdomain.VerificationChannel) error
}

// Notifier delivers a verification code to a recipient over a channel.
type Notifier interface {
	Send(ctx context.Context, channel domain.Channel, recipient, code string) error
}

// Engine issues and checks verification codes for email and phone ownership.
type Engine struct {
	challenges  ChallengeRepo
	users       UserRepo
	notifier    Notifier
	devStore    devcode.Store
	auditor     audit.AuditLogger
	codeTTL     time.Duration
	maxAttempts int
	nowF        func() time.Time
}

// NewEngine returns an Engine with the given dependencies.
// devStore may be nil; set it only when dev code mode is enabled.
// auditor may be nil; audit logging is then disabled.
func NewEngine(challenges ChallengeRepo, users UserRepo, notifier Notifier, devStore devcode.Store, auditor audit.AuditLogger, codeTTL time.Duration, maxAttempts int) *Engine {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &Engine{
		challenges:  challenges,
		users:       users,
		notifier:    notifier,
		devStore:    devStore,
		auditor:     auditor,
		codeTTL:     codeTTL,
		maxAttempts: maxAttempts,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// SendEmailCode issues a fresh code for the email address and delivers it.
// An unknown or already-verified address is a silent no-op so callers can
// always answer the same way regardless of whether an account exists.
func (e *Engine) SendEmailCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil || u.EmailVerified {
		return nil
	}
	return e.issue(ctx, domain.ChannelEmail, email, email)
}

// SendPhoneCode issues a fresh code for the phone number and delivers it.
// Unknown or already-verified numbers are a silent no-op.
func (e *Engine) SendPhoneCode(ctx context.Context, countryCode, number string) error {
	u, err := e.users.GetByPhone(ctx, countryCode, number)
	if err != nil {
		return err
	}
	if u == nil || u.PhoneVerified {
		return nil
	}
	subject := countryCode + number
	return e.issue(ctx, domain.ChannelPhone, subject, subject)
}

// issue supersedes any outstanding challenge for the subject, stores a new
// hashed code, and delivers the plain code to the recipient.
func (e *Engine) issue(ctx context.Context, channel domain.Channel, subject, recipient string) error {
	if err := e.challenges.InvalidateActive(ctx, channel, subject); err != nil {
		return err
	}
	code, err := verification.GenerateCode()
	if err != nil {
		return err
	}
	now := e.nowF()
	c := &domain.Challenge{
		ID:        uuid.NewString(),
		Channel:   channel,
		Subject:   subject,
		CodeHash:  verification.HashCode(code),
		ExpiresAt: now.Add(e.codeTTL),
		CreatedAt: now,
	}
	if err := e.challenges.Create(ctx, c); err != nil {
		return err
	}
	if e.devStore != nil {
		e.devStore.Put(ctx, string(channel), subject, code, c.ExpiresAt)
	}
	if err := e.notifier.Send(ctx, channel, recipient, code); err != nil {
		// The challenge stays valid; the caller can request a resend.
		log.Printf("verification: code delivery failed channel=%s: %v", channel, err)
		return err
	}
	return nil
}

// VerifyEmailCode checks the code for the email address and, on success,
// marks the user's email verified.
func (e *Engine) VerifyEmailCode(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	return e.verify(ctx, domain.ChannelEmail, email, code, func(ctx context.Context) (*userdomain.User, error) {
		return e.users.GetByEmail(ctx, email)
	})
}

// VerifyPhoneCode checks the code for the phone number and, on success,
// marks the user's phone verified.
func (e *Engine) VerifyPhoneCode(ctx context.Context, countryCode, number, code string) error {
	subject := countryCode + number
	return e.verify(ctx, domain.ChannelPhone, subject, code, func(ctx context.Context) (*userdomain.User, error) {
		return e.users.GetByPhone(ctx, countryCode, number)
	})
}

func (e *Engine) verify(ctx context.Context, channel domain.Channel, subject, code string, lookup func(context.Context) (*userdomain.User, error)) error {
	c, err := e.challenges.GetActive(ctx, channel, subject)
	if err != nil {
		return err
	}
	if c == nil || !c.ExpiresAt.After(e.nowF()) {
		return ErrInvalidCode
	}
	attempts, err := e.challenges.IncrementAttempts(ctx, c.ID)
	if err != nil {
		return err
	}
	if attempts > e.maxAttempts {
		if err := e.challenges.InvalidateActive(ctx, channel, subject); err != nil {
			return err
		}
		e.auditor.LogEvent(ctx, "", audit.ActionVerifyRateLimit, "verification", "channel="+string(channel))
		return ErrTooManyAttempts
	}
	if !verification.CodeEqual(code, c.CodeHash) {
		return ErrInvalidCode
	}
	ok, err := e.challenges.Consume(ctx, c.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	u, err := lookup(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrInvalidCode
	}
	var userChannel userdomain.VerificationChannel
	switch channel {
	case domain.ChannelEmail:
		userChannel = userdomain.ChannelEmail
	case domain.ChannelPhone:
		userChannel = userdomain.ChannelPhone
	}
	return e.users.SetVerified(ctx, u.ID, userChannel)
}
