package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SMSConfig holds the HTTP SMS provider settings.
type SMSConfig struct {
	Endpoint    string
	Username    string
	Password    string
	Sender      string
	CountryCode string
}

// HTTPSMSSender posts messages to a Twilio-style REST endpoint as a form
// with To, From and Body, authenticated with basic auth.
type HTTPSMSSender struct {
	cfg    SMSConfig
	client *http.Client
}

// NewHTTPSMSSender returns nil when no endpoint is configured. A nil client
// uses http.DefaultClient; deadlines come from the request context.
func NewHTTPSMSSender(cfg SMSConfig, client *http.Client) *HTTPSMSSender {
	if cfg.Endpoint == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSMSSender{cfg: cfg, client: client}
}

func (s *HTTPSMSSender) Send(ctx context.Context, msg Message) error {
	to, err := NormalizeE164(msg.To, s.cfg.CountryCode)
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.Sender)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NormalizeE164 turns a local or international number into E.164. A
// leading 0 is the national trunk prefix and is replaced by countryCode;
// numbers without a + get countryCode prepended.
func NormalizeE164(phone, countryCode string) (string, error) {
	var digits strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("invalid phone number %q", phone)
		}
	}
	n := digits.String()
	switch {
	case strings.HasPrefix(n, "+"):
	case strings.HasPrefix(n, "00"):
		n = "+" + n[2:]
	case strings.HasPrefix(n, "0"):
		n = "+" + countryCode + n[1:]
	default:
		n = "+" + countryCode + n
	}
	if l := len(n) - 1; l < 8 || l > 15 {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	return n, nil
}
