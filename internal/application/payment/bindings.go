package payment

import (
	"fmt"

	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/payment"
	"github.com/techdigits/backend/internal/domain/shared"
)

// Binding ties a payment method to its verification requirements.
type Binding struct {
	OtpRequired bool
	Channel     otp.Channel
}

// Bindings is the method → binding table.
type Bindings map[payment.Method]Binding

// RawBinding is a binding as read from configuration.
type RawBinding struct {
	OtpRequired bool
	Channel     string
}

// DefaultBindings returns the shipped table: card codes go by email and
// mobile money codes by SMS, both required.
func DefaultBindings() Bindings {
	return Bindings{
		payment.MethodCard:        {OtpRequired: true, Channel: otp.ChannelEmail},
		payment.MethodMobileMoney: {OtpRequired: true, Channel: otp.ChannelSMS},
	}
}

// ParseBindings validates a configured table. Methods missing from raw keep
// their default binding.
func ParseBindings(raw map[string]RawBinding) (Bindings, error) {
	b := DefaultBindings()
	for name, r := range raw {
		method, err := payment.ParseMethod(name)
		if err != nil {
			return nil, fmt.Errorf("payment binding %q: %w", name, err)
		}
		channel, err := otp.ParseChannel(r.Channel)
		if err != nil {
			return nil, fmt.Errorf("payment binding %q: %w", name, err)
		}
		b[method] = Binding{OtpRequired: r.OtpRequired, Channel: channel}
	}
	return b, nil
}

// For returns the binding of method.
func (b Bindings) For(method payment.Method) (Binding, error) {
	binding, ok := b[method]
	if !ok {
		return Binding{}, shared.NewDomainError(shared.CodeInvalidInput, "Payment method is not enabled")
	}
	return binding, nil
}
