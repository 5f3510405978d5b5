package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rdx-auth/internal/authcode/domain"
	"rdx-auth/internal/security"
)

// Sentinel errors for the authorization-code broker; handler maps them to
// OAuth2 error codes. ErrInvalidGrant deliberately covers every redemption
// failure (unknown, expired, consumed, mismatched, bad verifier) so callers
// cannot probe which condition failed.
var (
	ErrInvalidClient  = errors.New("unknown or unauthorized client")
	ErrInvalidRequest = errors.New("malformed authorization request")
	ErrInvalidGrant   = errors.New("invalid authorization grant")
)

const codeBytes = 32

// CodeRepo is the minimal authorization-code repository needed by the broker.
type CodeRepo interface {
	Create(ctx context.Context, c *domain.AuthorizationCode) error
	Consume(ctx context.Context, codeHash string) (*domain.AuthorizationCode, error)
}

// IssueParams carries everything needed to mint a code for an authenticated user.
type IssueParams struct {
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ExchangeResult is the surviving context of a redeemed code.
type ExchangeResult struct {
	UserID string
	Scope  string
}

// Broker issues short-lived single-use authorization codes and redeems them.
type Broker struct {
	codes   CodeRepo
	clients map[string]struct{}
	codeTTL time.Duration
	nowF    func() time.Time
}

// NewBroker returns a Broker that accepts only the given client IDs.
func NewBroker(codes CodeRepo, clientIDs []string, codeTTL time.Duration) *Broker {
	clients := make(map[string]struct{}, len(clientIDs))
	for _, id := range clientIDs {
		clients[id] = struct{}{}
	}
	return &Broker{
		codes:   codes,
		clients: clients,
		codeTTL: codeTTL,
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a single-use code bound to the client, redirect URI, and the
// optional PKCE challenge. The caller must have authenticated the user first.
func (b *Broker) Issue(ctx context.Context, p IssueParams) (string, error) {
	if _, ok := b.clients[p.ClientID]; !ok {
		return "", ErrInvalidClient
	}
	if p.RedirectURI == "" {
		return "", ErrInvalidRequest
	}
	if p.CodeChallenge != "" && p.CodeChallengeMethod != security.PKCEMethodS256 {
		return "", ErrInvalidRequest
	}
	if p.CodeChallenge == "" && p.CodeChallengeMethod != "" {
		return "", ErrInvalidRequest
	}
	code, err := security.NewOpaqueToken(codeBytes)
	if err != nil {
		return "", err
	}
	now := b.nowF()
	c := &domain.AuthorizationCode{
		ID:                  uuid.NewString(),
		CodeHash:            security.HashToken(code),
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		Scope:               p.Scope,
		State:               p.State,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		UserID:              p.UserID,
		ExpiresAt:           now.Add(b.codeTTL),
		CreatedAt:           now,
	}
	if err := b.codes.Create(ctx, c); err != nil {
		return "", err
	}
	return code, nil
}

// Exchange redeems a code exactly once. The consume is an atomic check-and-set
// in the repository, so a replayed code loses even against a racing first use.
func (b *Broker) Exchange(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*ExchangeResult, error) {
	c, err := b.codes.Consume(ctx, security.HashToken(code))
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrInvalidGrant
	}
	if c.ClientID != clientID || c.RedirectURI != redirectURI {
		return nil, ErrInvalidGrant
	}
	if c.CodeChallenge != "" {
		if !security.VerifyPKCE(codeVerifier, c.CodeChallenge, c.CodeChallengeMethod) {
			return nil, ErrInvalidGrant
		}
	} else if codeVerifier != "" {
		return nil, ErrInvalidGrant
	}
	return &ExchangeResult{UserID: c.UserID, Scope: c.Scope}, nil
}
