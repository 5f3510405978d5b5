package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rdx-auth/internal/audit/domain"
)

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
	fail    error
}

func (r *memAuditRepo) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	cp := *a
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memAuditRepo) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestLogEvent_PersistsEntry(t *testing.T) {
	repo := &memAuditRepo{}
	logger := NewLogger(repo, func(ctx context.Context) string { return "10.0.0.1" })

	logger.LogEvent(context.Background(), "user-1", ActionLoginSuccess, "session", "")

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.UserID != "user-1" || e.Action != ActionLoginSuccess || e.Resource != "session" {
		t.Errorf("entry = %+v", e)
	}
	if e.IP != "10.0.0.1" {
		t.Errorf("IP = %q, want 10.0.0.1", e.IP)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Error("entry should have an ID and timestamp")
	}
}

func TestLogEvent_AnonymousFallback(t *testing.T) {
	repo := &memAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "", ActionLoginFailure, "session", "email=unknown")

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	if repo.entries[0].UserID != SentinelUserID {
		t.Errorf("UserID = %q, want %q", repo.entries[0].UserID, SentinelUserID)
	}
	if repo.entries[0].IP != "unknown" {
		t.Errorf("IP = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogEvent_BestEffort(t *testing.T) {
	repo := &memAuditRepo{fail: errors.New("db down")}
	logger := NewLogger(repo, nil)

	// Must not panic or propagate the repository error.
	logger.LogEvent(context.Background(), "user-1", ActionLogout, "session", "")
}

func TestLogEvent_NilRepo(t *testing.T) {
	logger := NewLogger(nil, nil)
	logger.LogEvent(context.Background(), "user-1", ActionLogout, "session", "")
}
