// Package audit records security events emitted by the auth code paths.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"rdx-auth/internal/audit/domain"
	auditrepo "rdx-auth/internal/audit/repository"
)

// SentinelUserID is the user_id used for events with no resolvable user
// (e.g. a login failure against an unknown email).
const SentinelUserID = "_anonymous"

// Actions recorded by the auth code paths.
const (
	ActionUserRegistered  = "user_registered"
	ActionPasswordSet     = "password_set"
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionCodeIssued      = "auth_code_issued"
	ActionCodeExchanged   = "auth_code_exchanged"
	ActionTokenRefreshed  = "token_refreshed"
	ActionReuseDetected   = "refresh_reuse_detected"
	ActionLogout          = "logout"
	ActionVerifyRateLimit = "verification_rate_limited"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor
// for client IP. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if userID == "" {
		userID = SentinelUserID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// Nop is an AuditLogger that records nothing. Useful in tests.
type Nop struct{}

func (Nop) LogEvent(ctx context.Context, userID, action, resource, metadata string) {}
