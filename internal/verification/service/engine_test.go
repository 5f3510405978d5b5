package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rdx-auth/internal/audit"
	"rdx-auth/internal/devcode"
	userdomain "rdx-auth/internal/user/domain"
	"rdx-auth/internal/verification/domain"
)

type captureAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *captureAuditor) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

type memChallengeRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Challenge
}

func newMemChallengeRepo() *memChallengeRepo {
	return &memChallengeRepo{m: make(map[string]*domain.Challenge)}
}

func (r *memChallengeRepo) Create(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.m[c.ID] = &cp
	return nil
}

func (r *memChallengeRepo) GetActive(ctx context.Context, channel domain.Channel, subject string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *domain.Challenge
	for _, c := range r.m {
		if c.Channel != channel || c.Subject != subject || c.Consumed || !c.ExpiresAt.After(time.Now().UTC()) {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (r *memChallengeRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return 0, errors.New("challenge not found")
	}
	c.Attempts++
	return c.Attempts, nil
}

func (r *memChallengeRepo) Consume(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok || c.Consumed || !c.ExpiresAt.After(time.Now().UTC()) {
		return false, nil
	}
	c.Consumed = true
	return true, nil
}

func (r *memChallengeRepo) InvalidateActive(ctx context.Context, channel domain.Channel, subject string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.m {
		if c.Channel == channel && c.Subject == subject {
			c.Consumed = true
		}
	}
	return nil
}

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func newMemUserRepo(users ...*userdomain.User) *memUserRepo {
	r := &memUserRepo{byID: make(map[string]*userdomain.User)}
	for _, u := range users {
		cp := *u
		r.byID[u.ID] = &cp
	}
	return r
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByPhone(ctx context.Context, countryCode, number string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Phone.CountryCode == countryCode && u.Phone.Number == number {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) SetVerified(ctx context.Context, userID string, channel userdomain.VerificationChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return nil
	}
	if channel == userdomain.ChannelEmail {
		u.EmailVerified = true
	} else {
		u.PhoneVerified = true
	}
	return nil
}

type captureNotifier struct {
	mu    sync.Mutex
	sends []sentCode
	fail  error
}

type sentCode struct {
	channel   domain.Channel
	recipient string
	code      string
}

func (n *captureNotifier) Send(ctx context.Context, channel domain.Channel, recipient, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sends = append(n.sends, sentCode{channel: channel, recipient: recipient, code: code})
	return nil
}

func (n *captureNotifier) last() (sentCode, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sends) == 0 {
		return sentCode{}, false
	}
	return n.sends[len(n.sends)-1], true
}

func testUser() *userdomain.User {
	return &userdomain.User{
		ID:    "user-1",
		Email: "alice@example.com",
		Phone: userdomain.PhoneNumber{CountryCode: "44", Number: "7700900123"},
		Roles: []string{"user"},
	}
}

func newTestEngine(users *memUserRepo, notifier *captureNotifier) (*Engine, *memChallengeRepo) {
	challenges := newMemChallengeRepo()
	return NewEngine(challenges, users, notifier, nil, nil, 10*time.Minute, 5), challenges
}

func TestSendEmailCode_DeliversAndStoresHashed(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	engine, challenges := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "Alice@Example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}

	sent, ok := notifier.last()
	if !ok {
		t.Fatal("expected a code to be delivered")
	}
	if sent.channel != domain.ChannelEmail || sent.recipient != "alice@example.com" {
		t.Errorf("sent = %+v, want email to alice@example.com", sent)
	}
	if len(sent.code) != 6 {
		t.Errorf("code length = %d, want 6", len(sent.code))
	}

	c, err := challenges.GetActive(ctx, domain.ChannelEmail, "alice@example.com")
	if err != nil || c == nil {
		t.Fatalf("GetActive = (%v, %v), want a challenge", c, err)
	}
	if c.CodeHash == sent.code {
		t.Error("challenge stores the plain code; it must store a hash")
	}
}

func TestSendEmailCode_UnknownAddressIsSilentNoOp(t *testing.T) {
	users := newMemUserRepo()
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)

	if err := engine.SendEmailCode(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("SendEmailCode for unknown address: %v", err)
	}
	if _, ok := notifier.last(); ok {
		t.Error("no code should be delivered for an unknown address")
	}
}

func TestSendEmailCode_AlreadyVerifiedIsNoOp(t *testing.T) {
	u := testUser()
	u.EmailVerified = true
	users := newMemUserRepo(u)
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)

	if err := engine.SendEmailCode(context.Background(), u.Email); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	if _, ok := notifier.last(); ok {
		t.Error("no code should be delivered for an already-verified address")
	}
}

func TestSendEmailCode_SupersedesPriorCode(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("first SendEmailCode: %v", err)
	}
	first, _ := notifier.last()
	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second SendEmailCode: %v", err)
	}
	second, _ := notifier.last()

	if err := engine.VerifyEmailCode(ctx, "alice@example.com", first.code); !errors.Is(err, ErrInvalidCode) {
		// A re-send invalidates the earlier code even before it expires.
		// The two random codes could collide; tolerate that one-in-a-million case.
		if first.code != second.code {
			t.Errorf("VerifyEmailCode(old code) = %v, want ErrInvalidCode", err)
		}
	}
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", second.code); err != nil {
		t.Errorf("VerifyEmailCode(new code) = %v, want success", err)
	}
}

func TestVerifyEmailCode_MarksUserVerified(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	sent, _ := notifier.last()
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", sent.code); err != nil {
		t.Fatalf("VerifyEmailCode: %v", err)
	}

	u, _ := users.GetByEmail(ctx, "alice@example.com")
	if !u.EmailVerified {
		t.Error("user should be email-verified after a successful code check")
	}
}

func TestVerifyEmailCode_SingleUse(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	sent, _ := notifier.last()
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", sent.code); err != nil {
		t.Fatalf("first VerifyEmailCode: %v", err)
	}
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", sent.code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("second VerifyEmailCode = %v, want ErrInvalidCode", err)
	}
}

func TestVerifyEmailCode_WrongCode(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("VerifyEmailCode(wrong) = %v, want ErrInvalidCode", err)
	}
	u, _ := users.GetByEmail(ctx, "alice@example.com")
	if u.EmailVerified {
		t.Error("user must not be verified after a wrong code")
	}
}

func TestVerifyEmailCode_AttemptLimit(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	sent, _ := notifier.last()
	wrong := "000000"
	if wrong == sent.code {
		wrong = "000001"
	}
	for i := 0; i < 5; i++ {
		if err := engine.VerifyEmailCode(ctx, "alice@example.com", wrong); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d = %v, want ErrInvalidCode", i+1, err)
		}
	}
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", wrong); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("sixth attempt = %v, want ErrTooManyAttempts", err)
	}
	// The challenge is dead even for the correct code now.
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", sent.code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("correct code after limit = %v, want ErrInvalidCode", err)
	}
}

func TestVerifyEmailCode_AttemptLimitIsAudited(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	challenges := newMemChallengeRepo()
	auditor := &captureAuditor{}
	engine := NewEngine(challenges, users, notifier, nil, auditor, 10*time.Minute, 5)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	sent, _ := notifier.last()
	wrong := "000000"
	if wrong == sent.code {
		wrong = "000001"
	}
	for i := 0; i < 5; i++ {
		if err := engine.VerifyEmailCode(ctx, "alice@example.com", wrong); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d = %v, want ErrInvalidCode", i+1, err)
		}
	}
	if err := engine.VerifyEmailCode(ctx, "alice@example.com", wrong); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("sixth attempt = %v, want ErrTooManyAttempts", err)
	}

	var got []string
	auditor.mu.Lock()
	got = append(got, auditor.actions...)
	auditor.mu.Unlock()
	if len(got) != 1 || got[0] != audit.ActionVerifyRateLimit {
		t.Errorf("audit actions = %v, want exactly one %q", got, audit.ActionVerifyRateLimit)
	}
}

func TestVerifyEmailCode_Expired(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	challenges := newMemChallengeRepo()
	engine := NewEngine(challenges, users, notifier, nil, nil, 10*time.Minute, 5)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	sent, _ := notifier.last()

	// Move the engine clock past the code's expiry.
	engine.nowF = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }

	if err := engine.VerifyEmailCode(ctx, "alice@example.com", sent.code); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("VerifyEmailCode(expired) = %v, want ErrInvalidCode", err)
	}
}

func TestSendAndVerifyPhoneCode(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	engine, _ := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendPhoneCode(ctx, "44", "7700900123"); err != nil {
		t.Fatalf("SendPhoneCode: %v", err)
	}
	sent, ok := notifier.last()
	if !ok {
		t.Fatal("expected a code to be delivered")
	}
	if sent.channel != domain.ChannelPhone || sent.recipient != "447700900123" {
		t.Errorf("sent = %+v, want phone to 447700900123", sent)
	}

	if err := engine.VerifyPhoneCode(ctx, "44", "7700900123", sent.code); err != nil {
		t.Fatalf("VerifyPhoneCode: %v", err)
	}
	u, _ := users.GetByPhone(ctx, "44", "7700900123")
	if !u.PhoneVerified {
		t.Error("user should be phone-verified after a successful code check")
	}
}

func TestSendEmailCode_DevStoreHoldsPlainCode(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{}
	challenges := newMemChallengeRepo()
	store := devcode.NewMemoryStore()
	engine := NewEngine(challenges, users, notifier, store, nil, 10*time.Minute, 5)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	sent, _ := notifier.last()
	code, ok := store.Get(ctx, "email", "alice@example.com")
	if !ok {
		t.Fatal("dev store should hold the issued code")
	}
	if code != sent.code {
		t.Errorf("dev store code = %q, want the delivered code %q", code, sent.code)
	}
}

func TestSendEmailCode_DeliveryFailureKeepsChallenge(t *testing.T) {
	users := newMemUserRepo(testUser())
	notifier := &captureNotifier{fail: errors.New("smtp down")}
	engine, challenges := newTestEngine(users, notifier)
	ctx := context.Background()

	if err := engine.SendEmailCode(ctx, "alice@example.com"); err == nil {
		t.Fatal("expected delivery error to propagate")
	}
	c, err := challenges.GetActive(ctx, domain.ChannelEmail, "alice@example.com")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if c == nil {
		t.Error("challenge should remain stored so a resend can follow")
	}
}
