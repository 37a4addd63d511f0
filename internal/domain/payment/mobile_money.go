package payment

import (
	"regexp"
	"strings"

	"github.com/techdigits/backend/internal/domain/shared"
)

// DefaultNumberingPlan matches local mobile numbers: 01 followed by nine digits.
const DefaultNumberingPlan = `^01[0-9]{9}$`

// NumberingPlan validates subscriber numbers.
type NumberingPlan struct {
	pattern *regexp.Regexp
}

// NewNumberingPlan compiles expr; an empty expr uses DefaultNumberingPlan.
func NewNumberingPlan(expr string) (*NumberingPlan, error) {
	if expr == "" {
		expr = DefaultNumberingPlan
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &NumberingPlan{pattern: re}, nil
}

// Matches reports whether msisdn belongs to the plan.
func (p *NumberingPlan) Matches(msisdn string) bool {
	return p.pattern.MatchString(strings.TrimSpace(msisdn))
}

// MobileMoneyDetails is the wallet data submitted at confirmation.
type MobileMoneyDetails struct {
	MSISDN string
}

// Validate checks the subscriber number against plan.
func (m MobileMoneyDetails) Validate(plan *NumberingPlan) error {
	if !plan.Matches(m.MSISDN) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid mobile money number")
	}
	return nil
}

// Redact masks every digit except the last two.
func (m MobileMoneyDetails) Redact() Details {
	return Details{MaskedMSISDN: MaskDigits(strings.TrimSpace(m.MSISDN), 2)}
}

// MaskDigits replaces all but the last keep characters of s with '*'.
func MaskDigits(s string, keep int) string {
	if len(s) <= keep {
		return s
	}
	return strings.Repeat("*", len(s)-keep) + s[len(s)-keep:]
}
