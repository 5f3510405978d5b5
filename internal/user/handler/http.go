// Package handler exposes the registration and verification HTTP surface.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rdx-auth/internal/devcode"
	identitysvc "rdx-auth/internal/identity/service"
	sessionsvc "rdx-auth/internal/session/service"
	userdomain "rdx-auth/internal/user/domain"
	verificationsvc "rdx-auth/internal/verification/service"
)

// Registrar is the identity surface the user handler drives.
type Registrar interface {
	Register(ctx context.Context, p identitysvc.RegisterParams) (string, error)
	SetPassword(ctx context.Context, userID, password string) (*sessionsvc.Grant, error)
}

// VerificationEngine is the code issue/verify surface the handler drives.
type VerificationEngine interface {
	SendEmailCode(ctx context.Context, email string) error
	SendPhoneCode(ctx context.Context, countryCode, number string) error
	VerifyEmailCode(ctx context.Context, email, code string) error
	VerifyPhoneCode(ctx context.Context, countryCode, number, code string) error
}

// Handler serves user registration, verification, and password setup.
type Handler struct {
	identity Registrar
	verifier VerificationEngine
	devStore devcode.Store
}

// NewHandler returns a Handler. devStore may be nil; the dev code endpoint
// then answers 404.
func NewHandler(identity Registrar, verifier VerificationEngine, devStore devcode.Store) *Handler {
	return &Handler{identity: identity, verifier: verifier, devStore: devStore}
}

// Register mounts the user routes on the router group.
func (h *Handler) Register(r *gin.RouterGroup) {
	r.POST("/users", h.createUser)
	r.POST("/users/verification/email/send", h.sendEmailCode)
	r.POST("/users/verification/email/verify", h.verifyEmailCode)
	r.POST("/users/verification/phone/send", h.sendPhoneCode)
	r.POST("/users/verification/phone/verify", h.verifyPhoneCode)
	r.POST("/users/:id/password", h.setPassword)
}

// RegisterDev mounts the dev-only plain-code endpoint.
func (h *Handler) RegisterDev(r *gin.RouterGroup) {
	r.GET("/verification/code", h.devGetCode)
}

type phonePayload struct {
	CountryCode string `json:"countryCode"`
	Number      string `json:"number"`
}

type addressPayload struct {
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	Country      string `json:"country"`
	Postcode     string `json:"postcode"`
}

type createUserRequest struct {
	Email       string         `json:"email"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	Phone       phonePayload   `json:"phoneNumber"`
	DateOfBirth string         `json:"dateOfBirth"`
	Address     addressPayload `json:"address"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	id, err := h.identity.Register(c.Request.Context(), identitysvc.RegisterParams{
		Email:            req.Email,
		GivenName:        req.FirstName,
		FamilyName:       req.LastName,
		PhoneCountryCode: req.Phone.CountryCode,
		PhoneNumber:      req.Phone.Number,
		DateOfBirth:      req.DateOfBirth,
		Address: userdomain.Address{
			Line1:    req.Address.AddressLine1,
			Line2:    req.Address.AddressLine2,
			City:     req.Address.City,
			Country:  req.Address.Country,
			Postcode: req.Address.Postcode,
		},
	})
	if err != nil {
		var dup *userdomain.DuplicateError
		var ve *identitysvc.ValidationError
		switch {
		case errors.As(err, &dup):
			code := "EMAIL_ALREADY_EXISTS"
			if dup.Field == "phone" {
				code = "PHONE_ALREADY_EXISTS"
			}
			c.JSON(http.StatusConflict, gin.H{"errorCode": code})
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, gin.H{"errorCode": "VALIDATION_FAILED", "message": ve.Msg})
		default:
			internalError(c, "create user", err)
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type emailSendRequest struct {
	Email string `json:"email"`
}

// sendEmailCode always answers 202 so callers cannot probe which addresses
// have accounts. Delivery failures are logged server-side only.
func (h *Handler) sendEmailCode(c *gin.Context) {
	var req emailSendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	if err := h.verifier.SendEmailCode(c.Request.Context(), req.Email); err != nil {
		log.Printf("handler: email code send failed: %v", err)
	}
	c.Status(http.StatusAccepted)
}

type emailVerifyRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
}

func (h *Handler) verifyEmailCode(c *gin.Context) {
	var req emailVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.VerificationCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	h.respondVerify(c, h.verifier.VerifyEmailCode(c.Request.Context(), req.Email, req.VerificationCode))
}

type phoneSendRequest struct {
	Phone phonePayload `json:"phoneNumber"`
}

func (h *Handler) sendPhoneCode(c *gin.Context) {
	var req phoneSendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone.Number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	if err := h.verifier.SendPhoneCode(c.Request.Context(), req.Phone.CountryCode, req.Phone.Number); err != nil {
		log.Printf("handler: phone code send failed: %v", err)
	}
	c.Status(http.StatusAccepted)
}

type phoneVerifyRequest struct {
	Phone            phonePayload `json:"phoneNumber"`
	VerificationCode string       `json:"verificationCode"`
}

func (h *Handler) verifyPhoneCode(c *gin.Context) {
	var req phoneVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone.Number == "" || req.VerificationCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	h.respondVerify(c, h.verifier.VerifyPhoneCode(c.Request.Context(), req.Phone.CountryCode, req.Phone.Number, req.VerificationCode))
}

func (h *Handler) respondVerify(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"verified": true})
	case errors.Is(err, verificationsvc.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"errorCode": "TOO_MANY_ATTEMPTS", "message": "request a new code"})
	case errors.Is(err, verificationsvc.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "INVALID_OR_EXPIRED_CODE"})
	default:
		internalError(c, "verify code", err)
	}
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) setPassword(c *gin.Context) {
	var req setPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	grant, err := h.identity.SetPassword(c.Request.Context(), c.Param("id"), req.Password)
	if err != nil {
		var ve *identitysvc.ValidationError
		switch {
		case errors.Is(err, identitysvc.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"errorCode": "USER_NOT_FOUND"})
		case errors.Is(err, identitysvc.ErrNotVerified):
			c.JSON(http.StatusForbidden, gin.H{"errorCode": "NOT_VERIFIED"})
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, gin.H{"errorCode": "VALIDATION_FAILED", "message": ve.Msg})
		default:
			internalError(c, "set password", err)
		}
		return
	}
	// "token" duplicates the access token for clients that predate the
	// accessToken/refreshToken pair in this response.
	c.JSON(http.StatusOK, gin.H{
		"token":        grant.AccessToken,
		"accessToken":  grant.AccessToken,
		"refreshToken": grant.RefreshToken,
		"expiresIn":    int(time.Until(grant.AccessExpiresAt).Seconds()),
	})
}

// devGetCode returns the plain verification code for a subject. Mounted only
// when dev code mode is enabled; never in production.
func (h *Handler) devGetCode(c *gin.Context) {
	if h.devStore == nil {
		c.Status(http.StatusNotFound)
		return
	}
	channel := c.Query("channel")
	subject := c.Query("subject")
	if channel == "" || subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "MALFORMED_REQUEST"})
		return
	}
	code, ok := h.devStore.Get(c.Request.Context(), channel, subject)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

func internalError(c *gin.Context, op string, err error) {
	log.Printf("handler: %s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"errorCode": "INTERNAL_ERROR"})
}
