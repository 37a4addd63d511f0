// Package payment drives an order from pending to paid: it issues the code,
// verifies it, validates method details and records the payment.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	orderapp "github.com/techdigits/backend/internal/application/order"
	otpapp "github.com/techdigits/backend/internal/application/otp"
	"github.com/techdigits/backend/internal/domain/identity"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/payment"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// CodeDuplicateRequest is returned when an idempotency key is replayed.
const CodeDuplicateRequest = "DUPLICATE_REQUEST"

const (
	flowOtp    = "otp"
	flowDirect = "direct"
)

// Config contains configuration for the Processor
type Config struct {
	Bindings          Bindings
	NumberingPlan     *payment.NumberingPlan
	TransactionsLimit int
	IdempotencyTTL    time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	plan, _ := payment.NewNumberingPlan("")
	return Config{
		Bindings:          DefaultBindings(),
		NumberingPlan:     plan,
		TransactionsLimit: 200,
		IdempotencyTTL:    24 * time.Hour,
	}
}

// Dependencies groups the collaborators of a Processor.
type Dependencies struct {
	Ledger      *orderapp.Ledger
	Authority   *otpapp.Authority
	Payments    payment.Repository
	Users       identity.Repository
	Notifier    otp.Notifier
	Transactor  shared.Transactor
	Idempotency shared.IdempotencyStore
	Clock       shared.Clock
	Metrics     *telemetry.PaymentMetrics
	Logger      *zap.Logger
}

// Processor orchestrates Initiate → Confirm. The conditional transition of
// the order to paid is the single point that decides which caller finalizes;
// a payment is only written inside the transaction that won it.
type Processor struct {
	ledger      *orderapp.Ledger
	authority   *otpapp.Authority
	payments    payment.Repository
	users       identity.Repository
	notifier    otp.Notifier
	tx          shared.Transactor
	idempotency shared.IdempotencyStore
	clock       shared.Clock
	metrics     *telemetry.PaymentMetrics
	logger      *zap.Logger
	config      Config
}

// NewProcessor creates a new Processor
func NewProcessor(deps Dependencies, config Config) *Processor {
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if config.Bindings == nil {
		config.Bindings = DefaultBindings()
	}
	if config.NumberingPlan == nil {
		config.NumberingPlan = DefaultConfig().NumberingPlan
	}
	if config.TransactionsLimit <= 0 {
		config.TransactionsLimit = 200
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = 24 * time.Hour
	}
	return &Processor{
		ledger:      deps.Ledger,
		authority:   deps.Authority,
		payments:    deps.Payments,
		users:       deps.Users,
		notifier:    deps.Notifier,
		tx:          deps.Transactor,
		idempotency: deps.Idempotency,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		config:      config,
	}
}

// Initiate checks that the order can be paid and, when the method requires
// it, issues a code and hands it to the notifier. A failed delivery is
// reported as a warning; the code stays valid and can be resent.
func (p *Processor) Initiate(ctx context.Context, userID uuid.UUID, req InitiateRequest) (*InitiateResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_processor", "initiate")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		telemetry.SpanAttrUserID, userID.String(),
	)

	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if _, err := p.loadPayable(ctx, req.OrderID, userID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	binding, err := p.config.Bindings.For(method)
	if err != nil {
		return nil, err
	}

	resp := &InitiateResponse{OrderID: req.OrderID, OtpRequired: binding.OtpRequired}
	if !binding.OtpRequired {
		return resp, nil
	}

	address, err := p.resolveAddress(ctx, userID, binding.Channel, req.ChannelAddress)
	if err != nil {
		return nil, err
	}

	var issued *otpapp.Issued
	telemetry.WithProfilingLabels(ctx, telemetry.PaymentOperationLabels(telemetry.OperationInitiatePayment, method.String()), func(c context.Context) {
		issued, err = p.authority.Issue(c, otp.PaymentKey(userID, req.OrderID), 0)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	resp.ChallengeIssued = true
	resp.Channel = string(binding.Channel)
	resp.ExpiresAt = &issued.ExpiresAt
	resp.DeliveryWarning = p.deliver(ctx, binding.Channel, address, issued)
	return resp, nil
}

// Resend issues a fresh code for an order that already has one.
func (p *Processor) Resend(ctx context.Context, userID uuid.UUID, req ResendRequest) (*ResendResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_processor", "resend")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderID, req.OrderID.String())

	method := payment.MethodCard
	if req.Method != "" {
		m, err := payment.ParseMethod(req.Method)
		if err != nil {
			return nil, err
		}
		method = m
	}
	if _, err := p.loadPayable(ctx, req.OrderID, userID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	binding, err := p.config.Bindings.For(method)
	if err != nil {
		return nil, err
	}
	address, err := p.resolveAddress(ctx, userID, binding.Channel, req.ChannelAddress)
	if err != nil {
		return nil, err
	}

	issued, err := p.authority.Resend(ctx, otp.PaymentKey(userID, req.OrderID))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	return &ResendResponse{
		OrderID:         req.OrderID,
		Channel:         string(binding.Channel),
		ExpiresAt:       issued.ExpiresAt,
		DeliveryWarning: p.deliver(ctx, binding.Channel, address, issued),
	}, nil
}

// Confirm verifies the code and pays the order. idempotencyKey, when set,
// may only be used once per user; a confirm that fails gives the key back.
func (p *Processor) Confirm(ctx context.Context, userID uuid.UUID, req ConfirmRequest, idempotencyKey string) (*ConfirmResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_processor", "confirm")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		telemetry.SpanAttrUserID, userID.String(),
		telemetry.SpanAttrPaymentMethod, req.Method,
	)
	started := time.Now()

	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	o, err := p.loadPayable(ctx, req.OrderID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	details, err := p.redact(method, req.Card, req.MobileMoney)
	if err != nil {
		return nil, err
	}
	if err := p.claim(ctx, userID, idempotencyKey); err != nil {
		return nil, err
	}

	var result *payment.Payment
	telemetry.WithProfilingLabels(ctx, telemetry.PaymentOperationLabels(telemetry.OperationConfirmPayment, method.String()), func(c context.Context) {
		if _, err = p.authority.Verify(c, otp.PaymentKey(userID, o.ID), req.Code); err != nil {
			return
		}
		if markErr := p.ledger.MarkOtpVerified(c, o.ID); markErr != nil {
			p.logger.Warn("Failed to flag order as otp verified",
				zap.String("order_id", o.ID.String()), zap.Error(markErr))
		}
		result, err = p.finalize(c, o, userID, method, details, flowOtp)
	})
	p.metrics.RecordConfirmDuration(ctx, method.String(), time.Since(started))
	if err != nil {
		p.release(ctx, userID, idempotencyKey)
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, result.ID.String())
	return toConfirmResponse(result), nil
}

// ProcessDirect pays an order without a code. It is allowed when the
// method's binding does not require a code, or when a code for the order was
// verified within the verified grace window.
func (p *Processor) ProcessDirect(ctx context.Context, userID uuid.UUID, req DirectRequest) (*ConfirmResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_processor", "process_direct")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		telemetry.SpanAttrPaymentMethod, req.Method,
	)

	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		return nil, err
	}
	o, err := p.loadPayable(ctx, req.OrderID, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	details, err := p.redact(method, req.Card, req.MobileMoney)
	if err != nil {
		return nil, err
	}
	binding, err := p.config.Bindings.For(method)
	if err != nil {
		return nil, err
	}

	key := otp.PaymentKey(userID, o.ID)
	if binding.OtpRequired {
		if _, err := p.authority.LatestVerified(ctx, key, p.authority.VerifiedGrace()); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewDomainError(shared.CodeForbidden, "OTP verification required")
			}
			return nil, err
		}
	}

	var result *payment.Payment
	telemetry.WithProfilingLabels(ctx, telemetry.PaymentOperationLabels(telemetry.OperationDirectPayment, method.String()), func(c context.Context) {
		result, err = p.finalize(c, o, userID, method, details, flowDirect)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if binding.OtpRequired {
		if err := p.authority.Invalidate(ctx, key); err != nil {
			p.logger.Warn("Failed to invalidate consumed challenges",
				zap.String("order_id", o.ID.String()), zap.Error(err))
		}
	}
	return toConfirmResponse(result), nil
}

// ListTransactions returns the newest payments, redacted. limit is capped at
// the configured maximum.
func (p *Processor) ListTransactions(ctx context.Context, limit int) ([]TransactionResponse, error) {
	if limit <= 0 || limit > p.config.TransactionsLimit {
		limit = p.config.TransactionsLimit
	}
	payments, err := p.payments.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionResponse, 0, len(payments))
	for i := range payments {
		out = append(out, ToTransactionResponse(&payments[i]))
	}
	return out, nil
}

// Summary returns paid totals per user, highest first.
func (p *Processor) Summary(ctx context.Context) ([]SummaryResponse, error) {
	summaries, err := p.payments.SummarizeByUser(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, SummaryResponse(s))
	}
	return out, nil
}

// UserPaidOrders lists the paid orders of one user.
func (p *Processor) UserPaidOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) (*UserPaidOrdersResponse, error) {
	u, err := p.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	orders, err := p.ledger.ListByUser(ctx, userID, order.StatusPaid, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &UserPaidOrdersResponse{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Orders: orders.Items,
		Total:  orders.Total,
	}, nil
}

// loadPayable loads the order and applies the ownership and pending guards.
func (p *Processor) loadPayable(ctx context.Context, orderID, userID uuid.UUID) (*order.Order, error) {
	o, err := p.ledger.Load(ctx, orderID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Order not found")
		}
		return nil, err
	}
	if err := p.ledger.RequireOwnership(o, userID); err != nil {
		return nil, err
	}
	if err := p.ledger.RequireStatus(o, order.StatusPending); err != nil {
		return nil, err
	}
	return o, nil
}

// finalize flips the order to paid and records the payment in one
// transaction. Losing the transition returns its CONFLICT unchanged.
func (p *Processor) finalize(ctx context.Context, o *order.Order, userID uuid.UUID, method payment.Method, details payment.Details, flow string) (*payment.Payment, error) {
	pay, err := payment.NewSucceeded(o.ID, userID, method, o.TotalAmount, details, p.clock.Now())
	if err != nil {
		return nil, err
	}

	err = p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := p.ledger.TransitionToPaid(txCtx, o.ID); err != nil {
			return err
		}
		return p.payments.Create(txCtx, pay)
	})
	if err != nil {
		status := telemetry.PaymentStatusFailed
		if errors.Is(err, shared.ErrConflict) {
			status = telemetry.PaymentStatusConflict
		}
		p.metrics.RecordPayment(ctx, method.String(), flow, status, o.TotalAmount)
		p.logger.Info("Payment finalization rejected",
			zap.String("order_id", o.ID.String()),
			zap.String("flow", flow),
			zap.Error(err))
		return nil, err
	}

	p.metrics.RecordPayment(ctx, method.String(), flow, telemetry.PaymentStatusSuccess, pay.Amount)
	p.logger.Info("Payment succeeded",
		zap.String("payment_id", pay.ID.String()),
		zap.String("order_id", o.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("method", method.String()),
		zap.String("amount", pay.Amount.String()),
		zap.String("reference", pay.Reference),
		zap.String("flow", flow))
	return pay, nil
}

// redact validates the details of method and returns what may be stored.
// Details for another method are rejected rather than ignored.
func (p *Processor) redact(method payment.Method, card *CardInput, mm *MobileMoneyInput) (payment.Details, error) {
	switch method {
	case payment.MethodCard:
		if card == nil || mm != nil {
			return payment.Details{}, shared.NewDomainError(shared.CodeInvalidInput, "Card details are required for card payments")
		}
		cd := payment.CardDetails{
			Number:      card.Number,
			ExpiryMonth: card.ExpiryMonth,
			ExpiryYear:  card.ExpiryYear,
			CVV:         card.CVV,
		}
		if err := cd.Validate(p.clock.Now()); err != nil {
			return payment.Details{}, err
		}
		return cd.Redact(), nil
	case payment.MethodMobileMoney:
		if mm == nil || card != nil {
			return payment.Details{}, shared.NewDomainError(shared.CodeInvalidInput, "Mobile money details are required for mobile money payments")
		}
		md := payment.MobileMoneyDetails{MSISDN: mm.MSISDN}
		if err := md.Validate(p.config.NumberingPlan); err != nil {
			return payment.Details{}, err
		}
		return md.Redact(), nil
	}
	return payment.Details{}, shared.NewDomainError(shared.CodeInvalidInput, "Invalid payment method")
}

// resolveAddress picks the delivery address: the one supplied by the client,
// else the email or phone on file.
func (p *Processor) resolveAddress(ctx context.Context, userID uuid.UUID, channel otp.Channel, supplied string) (string, error) {
	supplied = strings.TrimSpace(supplied)
	if supplied != "" {
		switch channel {
		case otp.ChannelEmail:
			if !strings.Contains(supplied, "@") {
				return "", shared.NewDomainError(shared.CodeInvalidInput, "Invalid email address")
			}
		case otp.ChannelSMS:
			if !p.config.NumberingPlan.Matches(supplied) && !strings.HasPrefix(supplied, "+") {
				return "", shared.NewDomainError(shared.CodeInvalidInput, "Invalid phone number")
			}
		}
		return supplied, nil
	}

	u, err := p.users.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load user contact: %w", err)
	}
	address := u.Email
	if channel == otp.ChannelSMS {
		address = u.Phone
	}
	if address == "" {
		return "", shared.NewDomainError(shared.CodeInvalidInput,
			fmt.Sprintf("No %s address on file; provide channel_address", channel))
	}
	return address, nil
}

// deliver hands the code to the notifier. It returns a warning for the client
// when delivery failed.
func (p *Processor) deliver(ctx context.Context, channel otp.Channel, address string, issued *otpapp.Issued) string {
	p.metrics.RecordOtpIssued(ctx, string(otp.PurposePayment), string(channel))

	err := p.notifier.Send(ctx, otp.Delivery{
		Channel: channel,
		Address: address,
		Code:    issued.Code,
		TTL:     issued.ExpiresAt.Sub(p.clock.Now()),
		Purpose: otp.PurposePayment,
	})
	if err == nil {
		return ""
	}

	p.metrics.RecordDeliveryFailure(ctx, string(channel))
	p.logger.Warn("OTP delivery failed",
		zap.String("channel", string(channel)),
		zap.Error(err))
	return "The code could not be delivered. Use resend to try again."
}

// claim records idempotencyKey for userID. A replayed key is rejected.
func (p *Processor) claim(ctx context.Context, userID uuid.UUID, idempotencyKey string) error {
	if idempotencyKey == "" || p.idempotency == nil {
		return nil
	}
	claimed, err := p.idempotency.Claim(ctx, confirmKey(userID, idempotencyKey), p.config.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if !claimed {
		return shared.NewDomainError(CodeDuplicateRequest, "This request has already been submitted")
	}
	return nil
}

func (p *Processor) release(ctx context.Context, userID uuid.UUID, idempotencyKey string) {
	if idempotencyKey == "" || p.idempotency == nil {
		return
	}
	if err := p.idempotency.Release(context.WithoutCancel(ctx), confirmKey(userID, idempotencyKey)); err != nil {
		p.logger.Warn("Failed to release idempotency key",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func confirmKey(userID uuid.UUID, idempotencyKey string) string {
	return "confirm:" + userID.String() + ":" + idempotencyKey
}
