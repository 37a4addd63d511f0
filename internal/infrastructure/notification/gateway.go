// Package notification delivers one-time codes over email and SMS.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Message is a rendered notification for one recipient.
type Message struct {
	To      string
	Subject string
	Body    string
	// Code is also carried separately so log-only senders can choose
	// whether to print it.
	Code string
}

// Sender hands a message to one transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Gateway routes code deliveries to the sender of their channel. Channels
// without a configured sender go to the fallback.
type Gateway struct {
	senders  map[otp.Channel]Sender
	fallback Sender
	timeout  time.Duration
	logger   *zap.Logger
}

var _ otp.Notifier = (*Gateway)(nil)

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithSender routes channel to s.
func WithSender(channel otp.Channel, s Sender) GatewayOption {
	return func(g *Gateway) {
		if s != nil {
			g.senders[channel] = s
		}
	}
}

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// NewGateway creates a gateway that falls back to fallback.
func NewGateway(fallback Sender, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		senders:  make(map[otp.Channel]Sender),
		fallback: fallback,
		timeout:  10 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send renders d and delivers it. Failures come back as DELIVERY_FAILED;
// the caller decides whether they matter.
func (g *Gateway) Send(ctx context.Context, d otp.Delivery) error {
	if d.Address == "" {
		return shared.NewDomainError(shared.CodeDeliveryFailed, "No contact address for "+string(d.Channel))
	}
	sender, ok := g.senders[d.Channel]
	if !ok {
		sender = g.fallback
	}
	if sender == nil {
		return shared.NewDomainError(shared.CodeDeliveryFailed, "No sender for "+string(d.Channel))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	msg := Render(d)
	if err := sender.Send(ctx, msg); err != nil {
		g.logger.Warn("Code delivery failed",
			zap.String("channel", string(d.Channel)),
			zap.String("purpose", string(d.Purpose)),
			zap.Error(err),
		)
		return &shared.DomainError{
			Code:    shared.CodeDeliveryFailed,
			Message: fmt.Sprintf("Could not deliver code by %s", d.Channel),
		}
	}
	return nil
}

// Render builds the message text for a delivery.
func Render(d otp.Delivery) Message {
	minutes := int(d.TTL.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	subject := "Your payment verification code"
	action := "confirm your payment"
	if d.Purpose == otp.PurposePasswordReset {
		subject = "Your password reset code"
		action = "reset your password"
	}
	body := fmt.Sprintf("Your code to %s is %s. It expires in %d minutes. Do not share it with anyone.",
		action, d.Code, minutes)
	return Message{To: d.Address, Subject: subject, Body: body, Code: d.Code}
}
