package payment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/techdigits/backend/internal/domain/shared"
)

var (
	panPattern  = regexp.MustCompile(`^[0-9]{13,19}$`)
	yearPattern = regexp.MustCompile(`^[0-9]{2}$`)
	cvvPattern  = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// CardDetails is the card data submitted at confirmation. It is validated,
// redacted and then dropped; PAN and CVV are never stored.
type CardDetails struct {
	Number      string
	ExpiryMonth int
	ExpiryYear  string
	CVV         string
}

// NormalizedNumber returns the PAN with whitespace removed.
func (c CardDetails) NormalizedNumber() string {
	return strings.Join(strings.Fields(c.Number), "")
}

// Validate checks the format of the card data. Only formats are checked:
// 13-19 digit PAN, month 1-12, two-digit year, expiry not in the past,
// 3-4 digit CVV.
func (c CardDetails) Validate(now time.Time) error {
	if !panPattern.MatchString(c.NormalizedNumber()) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid card number")
	}
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid expiry month")
	}
	if !yearPattern.MatchString(c.ExpiryYear) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid expiry year")
	}
	yy, _ := strconv.Atoi(c.ExpiryYear)
	year := expiryYear(yy, now)
	if year < now.Year() || (year == now.Year() && c.ExpiryMonth < int(now.Month())) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Card has expired")
	}
	if !cvvPattern.MatchString(c.CVV) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid CVV")
	}
	return nil
}

// expiryYear expands a two-digit year to the four-digit year nearest to now,
// so that "01" read in 2099 is 2101 and "99" read in 2001 is 1999.
func expiryYear(yy int, now time.Time) int {
	year := now.Year() - now.Year()%100 + yy
	switch {
	case year-now.Year() > 50:
		year -= 100
	case now.Year()-year > 50:
		year += 100
	}
	return year
}

// Redact keeps the last four PAN digits and the expiry as MM/YY.
func (c CardDetails) Redact() Details {
	pan := c.NormalizedNumber()
	last4 := pan
	if len(pan) > 4 {
		last4 = pan[len(pan)-4:]
	}
	return Details{
		Last4:  last4,
		Expiry: fmt.Sprintf("%02d/%s", c.ExpiryMonth, c.ExpiryYear),
	}
}
