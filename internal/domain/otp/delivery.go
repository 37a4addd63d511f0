package otp

import (
	"context"
	"time"

	"github.com/techdigits/backend/internal/domain/shared"
)

// Channel is the contact channel a code is delivered over.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ParseChannel validates a configured channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS:
		return Channel(s), nil
	}
	return "", shared.NewDomainError(shared.CodeInvalidInput, "Unknown delivery channel: "+s)
}

// Delivery is a code to hand to a contact channel.
type Delivery struct {
	Channel Channel
	Address string
	Code    string
	TTL     time.Duration
	Purpose Purpose
}

// Notifier delivers codes. Delivery is best effort: a returned error is
// reported as DELIVERY_FAILED and never invalidates the challenge.
type Notifier interface {
	Send(ctx context.Context, d Delivery) error
}
