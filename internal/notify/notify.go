// Package notify delivers verification codes over email and SMS.
package notify

import (
	"context"
	"fmt"

	"rdx-auth/internal/verification/domain"
)

// EmailSender sends a verification code to an email address.
type EmailSender interface {
	SendCode(ctx context.Context, to, code string) error
}

// SMSSender sends a verification code to a phone number.
type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// Router dispatches a code to the sender for the challenge's channel.
type Router struct {
	Email EmailSender
	SMS   SMSSender
}

// NewRouter returns a Router over the given senders. Either may be nil;
// sending on a channel with no sender configured returns an error.
func NewRouter(email EmailSender, sms SMSSender) *Router {
	return &Router{Email: email, SMS: sms}
}

// Send delivers code to recipient over the given channel.
func (r *Router) Send(ctx context.Context, channel domain.Channel, recipient, code string) error {
	switch channel {
	case domain.ChannelEmail:
		if r.Email == nil {
			return fmt.Errorf("notify: no email sender configured")
		}
		return r.Email.SendCode(ctx, recipient, code)
	case domain.ChannelPhone:
		if r.SMS == nil {
			return fmt.Errorf("notify: no sms sender configured")
		}
		return r.SMS.SendCode(ctx, recipient, code)
	default:
		return fmt.Errorf("notify: unknown channel %q", channel)
	}
}
