package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"rdx-auth/internal/audit"
	authcodesvc "rdx-auth/internal/authcode/service"
	"rdx-auth/internal/security"
	sessionsvc "rdx-auth/internal/session/service"
	userdomain "rdx-auth/internal/user/domain"
)

// Sentinel errors for the auth service; handler maps them to HTTP codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotVerified        = errors.New("account has no verified contact channel")
)

// ValidationError reports malformed caller input. Safe to return to clients.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	Create(ctx context.Context, u *userdomain.User) error
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionCoordinator is the session lifecycle surface the auth service drives.
type SessionCoordinator interface {
	StartSession(ctx context.Context, userID string) (*sessionsvc.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*sessionsvc.Grant, error)
	Logout(ctx context.Context, refreshToken string) error
}

// CodeBroker issues and redeems single-use authorization codes.
type CodeBroker interface {
	Issue(ctx context.Context, p authcodesvc.IssueParams) (string, error)
	Exchange(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*authcodesvc.ExchangeResult, error)
}

// RegisterParams is the profile supplied at registration. The password is set
// later, after the user proves ownership of a contact channel.
type RegisterParams struct {
	Email            string
	GivenName        string
	FamilyName       string
	PhoneCountryCode string
	PhoneNumber      string
	DateOfBirth      string
	Address          userdomain.Address
}

// AuthorizeParams is a credentials-carrying authorization-code request.
type AuthorizeParams struct {
	Email               string
	Password            string
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthService implements registration, password setup, login, the
// authorization-code flow, and the refresh/logout surface.
type AuthService struct {
	users    UserRepo
	sessions SessionCoordinator
	broker   CodeBroker
	hasher   *security.Hasher
	auditor  audit.AuditLogger
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(users UserRepo, sessions SessionCoordinator, broker CodeBroker, hasher *security.Hasher, auditor audit.AuditLogger) *AuthService {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		broker:   broker,
		hasher:   hasher,
		auditor:  auditor,
	}
}

// Register creates an unverified user with the given profile and no password.
// Duplicate email or phone surfaces as *userdomain.DuplicateError.
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (string, error) {
	email := strings.TrimSpace(strings.ToLower(p.Email))
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if (p.PhoneCountryCode == "") != (p.PhoneNumber == "") {
		return "", &ValidationError{Msg: "phone requires both country code and number"}
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:          uuid.NewString(),
		Email:       email,
		GivenName:   strings.TrimSpace(p.GivenName),
		FamilyName:  strings.TrimSpace(p.FamilyName),
		Phone:       userdomain.PhoneNumber{CountryCode: p.PhoneCountryCode, Number: p.PhoneNumber},
		DateOfBirth: p.DateOfBirth,
		Address:     p.Address,
		Roles:       []string{userdomain.RoleUser},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.Validate(); err != nil {
		return "", &ValidationError{Msg: err.Error()}
	}
	if err := s.users.Create(ctx, u); err != nil {
		return "", err
	}
	s.auditor.LogEvent(ctx, u.ID, audit.ActionUserRegistered, "user", "email="+email)
	return u.ID, nil
}

// SetPassword stores the user's first (or replacement) password and opens a
// session so the client lands signed in. Requires a verified contact channel.
func (s *AuthService) SetPassword(ctx context.Context, userID, password string) (*sessionsvc.Grant, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if !u.EmailVerified && !u.PhoneVerified {
		return nil, ErrNotVerified
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hashed); err != nil {
		return nil, err
	}
	grant, err := s.sessions.StartSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.auditor.LogEvent(ctx, userID, audit.ActionPasswordSet, "user", "")
	return grant, nil
}

// Login authenticates email/password and opens a session (BFF variant).
func (s *AuthService) Login(ctx context.Context, email, password string) (*sessionsvc.Grant, error) {
	u, err := s.authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	grant, err := s.sessions.StartSession(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	s.auditor.LogEvent(ctx, u.ID, audit.ActionLoginSuccess, "session", "")
	return grant, nil
}

// Authorize authenticates and mints a single-use authorization code bound to
// the client, redirect URI, and optional PKCE challenge.
func (s *AuthService) Authorize(ctx context.Context, p AuthorizeParams) (code, state string, err error) {
	if p.ResponseType != "code" {
		return "", "", authcodesvc.ErrInvalidRequest
	}
	u, err := s.authenticate(ctx, p.Email, p.Password)
	if err != nil {
		return "", "", err
	}
	code, err = s.broker.Issue(ctx, authcodesvc.IssueParams{
		UserID:              u.ID,
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		Scope:               p.Scope,
		State:               p.State,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
	})
	if err != nil {
		return "", "", err
	}
	s.auditor.LogEvent(ctx, u.ID, audit.ActionCodeIssued, "authorization_code", "client="+p.ClientID)
	return code, p.State, nil
}

// ExchangeCode redeems an authorization code for a token pair.
func (s *AuthService) ExchangeCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*sessionsvc.Grant, error) {
	res, err := s.broker.Exchange(ctx, code, clientID, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}
	grant, err := s.sessions.StartSession(ctx, res.UserID)
	if err != nil {
		return nil, err
	}
	s.auditor.LogEvent(ctx, res.UserID, audit.ActionCodeExchanged, "authorization_code", "client="+clientID)
	return grant, nil
}

// Refresh rotates the refresh token and returns a fresh token pair.
// A replayed token revokes its whole session before the error is returned.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*sessionsvc.Grant, error) {
	grant, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrRefreshTokenReuse) {
			s.auditor.LogEvent(ctx, "", audit.ActionReuseDetected, "session", "")
		}
		return nil, err
	}
	s.auditor.LogEvent(ctx, grant.UserID, audit.ActionTokenRefreshed, "session", "")
	return grant, nil
}

// Logout revokes the session owning the refresh token. Idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.sessions.Logout(ctx, refreshToken); err != nil {
		return err
	}
	s.auditor.LogEvent(ctx, "", audit.ActionLogout, "session", "")
	return nil
}

// authenticate resolves email/password to a user or ErrInvalidCredentials.
// Every failure mode returns the same error so callers cannot probe for
// registered addresses.
func (s *AuthService) authenticate(ctx context.Context, email, password string) (*userdomain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" {
		s.auditor.LogEvent(ctx, "", audit.ActionLoginFailure, "session", "email="+email)
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		s.auditor.LogEvent(ctx, u.ID, audit.ActionLoginFailure, "session", "")
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Msg: "email is required"}
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return &ValidationError{Msg: "invalid email format"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return &ValidationError{Msg: "password must be at least 12 characters"}
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return &ValidationError{Msg: "password must contain at least one uppercase letter"}
	}
	if !hasLower {
		return &ValidationError{Msg: "password must contain at least one lowercase letter"}
	}
	if !hasNumber {
		return &ValidationError{Msg: "password must contain at least one number"}
	}
	if !hasSymbol {
		return &ValidationError{Msg: "password must contain at least one symbol"}
	}
	return nil
}
