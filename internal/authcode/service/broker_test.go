package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rdx-auth/internal/authcode/domain"
	"rdx-auth/internal/security"
)

type memCodeRepo struct {
	mu sync.Mutex
	m  map[string]*domain.AuthorizationCode // by code hash
}

func newMemCodeRepo() *memCodeRepo {
	return &memCodeRepo{m: make(map[string]*domain.AuthorizationCode)}
}

func (r *memCodeRepo) Create(ctx context.Context, c *domain.AuthorizationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.m[c.CodeHash] = &cp
	return nil
}

func (r *memCodeRepo) Consume(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[codeHash]
	if !ok || c.Consumed || !c.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	c.Consumed = true
	cp := *c
	return &cp, nil
}

const (
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testClient    = "rdx-web"
	testRedirect  = "https://app.example.com/callback"
)

func newTestBroker() (*Broker, *memCodeRepo) {
	repo := newMemCodeRepo()
	return NewBroker(repo, []string{testClient}, time.Minute), repo
}

func issueParams() IssueParams {
	return IssueParams{
		UserID:              "user-1",
		ClientID:            testClient,
		RedirectURI:         testRedirect,
		Scope:               "openid profile",
		State:               "xyz",
		CodeChallenge:       security.PKCEChallenge(testVerifier),
		CodeChallengeMethod: security.PKCEMethodS256,
	}
}

func TestIssueAndExchange(t *testing.T) {
	broker, _ := newTestBroker()
	ctx := context.Background()

	code, err := broker.Issue(ctx, issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) < 22 {
		t.Errorf("code length = %d, want high-entropy opaque code", len(code))
	}

	res, err := broker.Exchange(ctx, code, testClient, testRedirect, testVerifier)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if res.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", res.UserID)
	}
	if res.Scope != "openid profile" {
		t.Errorf("Scope = %q, want openid profile", res.Scope)
	}
}

func TestIssue_UnknownClient(t *testing.T) {
	broker, _ := newTestBroker()
	p := issueParams()
	p.ClientID = "evil-client"
	if _, err := broker.Issue(context.Background(), p); !errors.Is(err, ErrInvalidClient) {
		t.Errorf("Issue(unknown client) = %v, want ErrInvalidClient", err)
	}
}

func TestIssue_MalformedRequests(t *testing.T) {
	broker, _ := newTestBroker()
	ctx := context.Background()

	p := issueParams()
	p.RedirectURI = ""
	if _, err := broker.Issue(ctx, p); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Issue(no redirect) = %v, want ErrInvalidRequest", err)
	}

	p = issueParams()
	p.CodeChallengeMethod = "plain"
	if _, err := broker.Issue(ctx, p); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Issue(plain method) = %v, want ErrInvalidRequest", err)
	}

	p = issueParams()
	p.CodeChallenge = ""
	if _, err := broker.Issue(ctx, p); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Issue(method without challenge) = %v, want ErrInvalidRequest", err)
	}
}

func TestExchange_SingleUse(t *testing.T) {
	broker, _ := newTestBroker()
	ctx := context.Background()

	code, err := broker.Issue(ctx, issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := broker.Exchange(ctx, code, testClient, testRedirect, testVerifier); err != nil {
		t.Fatalf("first Exchange: %v", err)
	}
	if _, err := broker.Exchange(ctx, code, testClient, testRedirect, testVerifier); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("second Exchange = %v, want ErrInvalidGrant", err)
	}
}

func TestExchange_FailuresAreIndistinguishable(t *testing.T) {
	broker, _ := newTestBroker()
	ctx := context.Background()

	code, err := broker.Issue(ctx, issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name                          string
		code, client, redirect, verif string
	}{
		{"unknown code", "not-a-code", testClient, testRedirect, testVerifier},
		{"wrong client", code, "other-client", testRedirect, testVerifier},
		{"wrong redirect", code, testClient, "https://evil.example.com/cb", testVerifier},
		{"wrong verifier", code, testClient, testRedirect, "wrong-verifier-wrong-verifier-wrong-verifier"},
		{"empty verifier", code, testClient, testRedirect, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broker2, _ := newTestBroker()
			c2, err := broker2.Issue(ctx, issueParams())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			use := tc.code
			if use == code {
				use = c2
			}
			if _, err := broker2.Exchange(ctx, use, tc.client, tc.redirect, tc.verif); !errors.Is(err, ErrInvalidGrant) {
				t.Errorf("Exchange = %v, want ErrInvalidGrant", err)
			}
		})
	}
}

func TestExchange_ExpiredCode(t *testing.T) {
	repo := newMemCodeRepo()
	broker := NewBroker(repo, []string{testClient}, time.Millisecond)
	ctx := context.Background()

	code, err := broker.Issue(ctx, issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := broker.Exchange(ctx, code, testClient, testRedirect, testVerifier); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Exchange(expired) = %v, want ErrInvalidGrant", err)
	}
}

func TestExchange_NoPKCEWhenNotRequested(t *testing.T) {
	broker, _ := newTestBroker()
	ctx := context.Background()

	p := issueParams()
	p.CodeChallenge = ""
	p.CodeChallengeMethod = ""
	code, err := broker.Issue(ctx, p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := broker.Exchange(ctx, code, testClient, testRedirect, ""); err != nil {
		t.Errorf("Exchange without PKCE = %v, want success", err)
	}

	// A verifier supplied against a challenge-less code is rejected.
	code2, err := broker.Issue(ctx, p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := broker.Exchange(ctx, code2, testClient, testRedirect, testVerifier); !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("Exchange(stray verifier) = %v, want ErrInvalidGrant", err)
	}
}

func TestExchange_ConcurrentSingleWinner(t *testing.T) {
	broker, _ := newTestBroker()
	ctx := context.Background()

	code, err := broker.Issue(ctx, issueParams())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = broker.Exchange(ctx, code, testClient, testRedirect, testVerifier)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrInvalidGrant) {
			t.Errorf("unexpected exchange error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("concurrent exchanges produced %d winners, want exactly 1", wins)
	}
}
