package domain

import (
	"errors"
	"fmt"
	"time"
)

// User is the core user entity. Identity fields (email, phone) are immutable
// once created; uniqueness of both is enforced by the store at insertion time.
type User struct {
	ID            string
	Email         string
	GivenName     string
	FamilyName    string
	Phone         PhoneNumber
	DateOfBirth   string // ISO date string as submitted by the client
	Address       Address
	PasswordHash  string // empty until the create-password step completes
	Roles         []string
	EmailVerified bool
	PhoneVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PhoneNumber is a phone split into dialing country code and national number.
type PhoneNumber struct {
	CountryCode string
	Number      string
}

// String returns the E.164-style concatenation used as a verification subject.
func (p PhoneNumber) String() string {
	return p.CountryCode + p.Number
}

// Address is the postal address captured at registration.
type Address struct {
	Line1    string
	Line2    string
	City     string
	Country  string
	Postcode string
}

// VerificationChannel identifies which contact detail a verification applies to.
type VerificationChannel string

const (
	ChannelEmail VerificationChannel = "email"
	ChannelPhone VerificationChannel = "phone"
)

// RoleUser is the default role granted at registration.
const RoleUser = "user"

// DuplicateError reports a uniqueness violation on user creation.
type DuplicateError struct {
	Field string // "email" or "phone"
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s", e.Field)
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{RoleUser}
	}
	return nil
}
