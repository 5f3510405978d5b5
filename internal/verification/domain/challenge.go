package domain

import "time"

// Channel is the delivery channel a verification code is sent over.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Challenge represents a pending verification code (stored in verification_challenges table).
// Subject is the address the code was sent to: the email, or country code + number for phone.
type Challenge struct {
	ID        string
	Channel   Channel
	Subject   string
	CodeHash  string
	Attempts  int
	Consumed  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
