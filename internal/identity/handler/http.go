// Package handler exposes the /auth HTTP surface.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authcodesvc "rdx-auth/internal/authcode/service"
	identitysvc "rdx-auth/internal/identity/service"
	"rdx-auth/internal/security"
	"rdx-auth/internal/server/middleware"
	sessionsvc "rdx-auth/internal/session/service"
)

// AuthService is the identity surface the handler drives.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*sessionsvc.Grant, error)
	Authorize(ctx context.Context, p identitysvc.AuthorizeParams) (code, state string, err error)
	ExchangeCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*sessionsvc.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*sessionsvc.Grant, error)
	Logout(ctx context.Context, refreshToken string) error
}

// ClaimsResolver answers "who am I" queries.
type ClaimsResolver interface {
	Resolve(ctx context.Context, userID string) (*identitysvc.Claims, error)
}

// Handler serves login, the authorization-code flow, refresh, and logout.
type Handler struct {
	auth     AuthService
	resolver ClaimsResolver
	tokens   *security.TokenProvider
}

// NewHandler returns a Handler with the given dependencies.
func NewHandler(auth AuthService, resolver ClaimsResolver, tokens *security.TokenProvider) *Handler {
	return &Handler{auth: auth, resolver: resolver, tokens: tokens}
}

// Register mounts the auth routes on the router group.
func (h *Handler) Register(r *gin.RouterGroup) {
	r.POST("/login", h.login)
	r.POST("/authorize", h.authorize)
	r.POST("/token", h.token)
	r.POST("/exchange", h.token)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", h.logout)
	r.GET("/status", h.status)
	r.GET("/me", middleware.RequireAuth(h.tokens), h.me)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	grant, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identitysvc.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "errorCode": "INVALID_CREDENTIALS"})
			return
		}
		internalError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"accessToken":  grant.AccessToken,
		"refreshToken": grant.RefreshToken,
		"expiresIn":    expiresIn(grant),
	})
}

type authorizeRequest struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	ResponseType        string `json:"responseType"`
	ClientID            string `json:"clientId"`
	RedirectURI         string `json:"redirectUri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"codeChallenge"`
	CodeChallengeMethod string `json:"codeChallengeMethod"`
}

func (h *Handler) authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	code, state, err := h.auth.Authorize(c.Request.Context(), identitysvc.AuthorizeParams{
		Email:               req.Email,
		Password:            req.Password,
		ResponseType:        req.ResponseType,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, identitysvc.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		case errors.Is(err, authcodesvc.ErrInvalidClient):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_client"})
		case errors.Is(err, authcodesvc.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		default:
			internalError(c, "authorize", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "state": state})
}

type tokenRequest struct {
	GrantType    string `json:"grantType" form:"grant_type"`
	Code         string `json:"code" form:"code"`
	ClientID     string `json:"clientId" form:"client_id"`
	RedirectURI  string `json:"redirectUri" form:"redirect_uri"`
	CodeVerifier string `json:"codeVerifier" form:"code_verifier"`
}

// token redeems an authorization code for a token pair. Every redemption
// failure is the same invalid_grant answer; the reason stays server-side.
func (h *Handler) token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if req.GrantType != "" && req.GrantType != "authorization_code" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}
	grant, err := h.auth.ExchangeCode(c.Request.Context(), req.Code, req.ClientID, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		if errors.Is(err, authcodesvc.ErrInvalidGrant) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
			return
		}
		internalError(c, "token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  grant.AccessToken,
		"refreshToken": grant.RefreshToken,
		"tokenType":    "Bearer",
		"expiresIn":    expiresIn(grant),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	grant, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		// Replay detection and plain expiry both answer 401 without detail.
		if errors.Is(err, sessionsvc.ErrInvalidRefreshToken) || errors.Is(err, sessionsvc.ErrRefreshTokenReuse) {
			c.JSON(http.StatusUnauthorized, gin.H{"errorCode": "INVALID_REFRESH_TOKEN"})
			return
		}
		internalError(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  grant.AccessToken,
		"refreshToken": grant.RefreshToken,
		"expiresIn":    expiresIn(grant),
	})
}

func (h *Handler) logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		internalError(c, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	userID, _ := middleware.GetUserID(c.Request.Context())
	claims, err := h.resolver.Resolve(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, identitysvc.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"errorCode": "UNKNOWN_SUBJECT"})
			return
		}
		internalError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sub":           claims.Sub,
		"email":         claims.Email,
		"givenName":     claims.GivenName,
		"familyName":    claims.FamilyName,
		"roles":         claims.Roles,
		"emailVerified": claims.EmailVerified,
		"phoneVerified": claims.PhoneVerified,
	})
}

// status answers 200 with authenticated=false for missing or invalid tokens;
// it never 401s, so clients can poll it without error handling.
func (h *Handler) status(c *gin.Context) {
	raw := middleware.BearerToken(c)
	if raw == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	id, err := h.tokens.ValidateAccess(raw)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "sub": id.UserID})
}

func expiresIn(grant *sessionsvc.Grant) int {
	return int(time.Until(grant.AccessExpiresAt).Seconds())
}

func internalError(c *gin.Context, op string, err error) {
	log.Printf("handler: %s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"errorCode": "INTERNAL_ERROR"})
}
