package notification

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type captureSender struct {
	msgs []Message
	err  error
	ctx  context.Context
}

func (c *captureSender) Send(ctx context.Context, msg Message) error {
	c.ctx = ctx
	c.msgs = append(c.msgs, msg)
	return c.err
}

func paymentDelivery(channel otp.Channel, address string) otp.Delivery {
	return otp.Delivery{
		Channel: channel,
		Address: address,
		Code:    "482913",
		TTL:     5 * time.Minute,
		Purpose: otp.PurposePayment,
	}
}

func TestGateway_RoutesByChannel(t *testing.T) {
	email := &captureSender{}
	sms := &captureSender{}
	fallback := &captureSender{}
	g := NewGateway(fallback, nil, WithSender(otp.ChannelEmail, email), WithSender(otp.ChannelSMS, sms))

	require.NoError(t, g.Send(context.Background(), paymentDelivery(otp.ChannelEmail, "a@example.com")))
	require.NoError(t, g.Send(context.Background(), paymentDelivery(otp.ChannelSMS, "01001234567")))

	require.Len(t, email.msgs, 1)
	assert.Equal(t, "a@example.com", email.msgs[0].To)
	require.Len(t, sms.msgs, 1)
	assert.Equal(t, "01001234567", sms.msgs[0].To)
	assert.Empty(t, fallback.msgs)
}

func TestGateway_FallsBackForUnconfiguredChannel(t *testing.T) {
	fallback := &captureSender{}
	g := NewGateway(fallback, nil, WithSender(otp.ChannelEmail, nil))

	require.NoError(t, g.Send(context.Background(), paymentDelivery(otp.ChannelEmail, "a@example.com")))
	assert.Len(t, fallback.msgs, 1)
}

func TestGateway_AppliesTimeout(t *testing.T) {
	s := &captureSender{}
	g := NewGateway(nil, nil, WithSender(otp.ChannelEmail, s), WithTimeout(time.Second))

	require.NoError(t, g.Send(context.Background(), paymentDelivery(otp.ChannelEmail, "a@example.com")))
	_, ok := s.ctx.Deadline()
	assert.True(t, ok)
}

func TestGateway_Failures(t *testing.T) {
	t.Run("sender error", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		s := &captureSender{err: errors.New("relay down")}
		g := NewGateway(nil, zap.New(core), WithSender(otp.ChannelEmail, s))

		err := g.Send(context.Background(), paymentDelivery(otp.ChannelEmail, "a@example.com"))
		assert.True(t, errors.Is(err, shared.ErrDeliveryFailed))
		assert.NotContains(t, err.Error(), "relay down")
		assert.Equal(t, 1, logs.FilterMessage("Code delivery failed").Len())
	})

	t.Run("missing address", func(t *testing.T) {
		g := NewGateway(&captureSender{}, nil)
		err := g.Send(context.Background(), paymentDelivery(otp.ChannelSMS, ""))
		assert.True(t, errors.Is(err, shared.ErrDeliveryFailed))
	})

	t.Run("no sender at all", func(t *testing.T) {
		g := NewGateway(nil, nil)
		err := g.Send(context.Background(), paymentDelivery(otp.ChannelSMS, "+201001234567"))
		assert.True(t, errors.Is(err, shared.ErrDeliveryFailed))
	})
}

func TestRender(t *testing.T) {
	msg := Render(paymentDelivery(otp.ChannelEmail, "a@example.com"))
	assert.Equal(t, "Your payment verification code", msg.Subject)
	assert.Contains(t, msg.Body, "482913")
	assert.Contains(t, msg.Body, "5 minutes")
	assert.Equal(t, "482913", msg.Code)

	reset := Render(otp.Delivery{
		Channel: otp.ChannelEmail,
		Address: "a@example.com",
		Code:    "000123",
		TTL:     10 * time.Minute,
		Purpose: otp.PurposePasswordReset,
	})
	assert.Equal(t, "Your password reset code", reset.Subject)
	assert.Contains(t, reset.Body, "reset your password")
	assert.Contains(t, reset.Body, "10 minutes")
}

func TestLogSender(t *testing.T) {
	msg := Message{To: "alice@example.com", Subject: "s", Body: "b", Code: "482913"}

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, NewLogSender("email", true, zap.New(core)).Send(context.Background(), msg))
	entry := logs.All()[0]
	assert.Equal(t, "482913", entry.ContextMap()["code"])
	assert.Equal(t, "al****om", entry.ContextMap()["to"])

	core, logs = observer.New(zap.InfoLevel)
	require.NoError(t, NewLogSender("email", false, zap.New(core)).Send(context.Background(), msg))
	_, revealed := logs.All()[0].ContextMap()["code"]
	assert.False(t, revealed)
}

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "01001234567", want: "+201001234567"},
		{in: "1001234567", want: "+201001234567"},
		{in: "+201001234567", want: "+201001234567"},
		{in: "00201001234567", want: "+201001234567"},
		{in: " 010-0123 4567 ", want: "+201001234567"},
		{in: "(010) 0123.4567", want: "+201001234567"},
		{in: "12ab", wantErr: true},
		{in: "123", wantErr: true},
		{in: "1+2345678901", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeE164(tt.in, "20")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPSMSSender(t *testing.T) {
	var got url.Values
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewHTTPSMSSender(SMSConfig{
		Endpoint:    srv.URL,
		Username:    "AC123",
		Password:    "secret",
		Sender:      "+15550001111",
		CountryCode: "20",
	}, srv.Client())

	require.NoError(t, s.Send(context.Background(), Message{To: "01001234567", Body: "Your code is 482913"}))
	assert.Equal(t, "AC123", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, "+201001234567", got.Get("To"))
	assert.Equal(t, "+15550001111", got.Get("From"))
	assert.Equal(t, "Your code is 482913", got.Get("Body"))
}

func TestHTTPSMSSender_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid To number", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewHTTPSMSSender(SMSConfig{Endpoint: srv.URL, CountryCode: "20"}, srv.Client())
	err := s.Send(context.Background(), Message{To: "01001234567", Body: "x"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "400"))
	assert.Contains(t, err.Error(), "invalid To number")
}

func TestSenderConstructorsRequireConfig(t *testing.T) {
	assert.Nil(t, NewHTTPSMSSender(SMSConfig{}, nil))
	assert.Nil(t, NewSMTPSender(SMTPConfig{}))

	s := NewSMTPSender(SMTPConfig{Host: "mail.example.com", Username: "noreply@example.com"})
	require.NotNil(t, s)
	assert.Equal(t, 587, s.cfg.Port)
	assert.Equal(t, "noreply@example.com", s.cfg.From)
}

func TestSMTPSender_Compose(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "mail.example.com", From: "noreply@example.com"})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	raw := string(s.compose(Message{To: "a@example.com", Subject: "Your code", Body: "Code 482913"}))
	assert.Contains(t, raw, "From: noreply@example.com\r\n")
	assert.Contains(t, raw, "To: a@example.com\r\n")
	assert.Contains(t, raw, "Subject: Your code\r\n")
	assert.Contains(t, raw, "Date: Sun, 01 Mar 2026 12:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nCode 482913\r\n"))
}
