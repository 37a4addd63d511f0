//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderapp "github.com/techdigits/backend/internal/application/order"
	otpapp "github.com/techdigits/backend/internal/application/otp"
	paymentapp "github.com/techdigits/backend/internal/application/payment"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/cache"
	"github.com/techdigits/backend/internal/infrastructure/persistence"
	"github.com/techdigits/backend/tests/testutil"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap"
)

type workflow struct {
	db         *TestDB
	clock      *shared.ManualClock
	orders     *persistence.GormOrderRepository
	payments   *persistence.GormPaymentRepository
	challenges *persistence.GormChallengeRepository
	ledger     *orderapp.Ledger
	authority  *otpapp.Authority
	processor  *paymentapp.Processor
	notifier   *testutil.RecordingNotifier
}

func newWorkflow(t *testing.T, db *TestDB) *workflow {
	t.Helper()
	db.CleanTables()

	w := &workflow{
		db:         db,
		clock:      shared.NewManualClock(time.Now().UTC()),
		orders:     persistence.NewGormOrderRepository(db.DB),
		payments:   persistence.NewGormPaymentRepository(db.DB),
		challenges: persistence.NewGormChallengeRepository(db.DB),
		notifier:   testutil.NewRecordingNotifier(),
	}
	w.ledger = orderapp.NewLedger(w.orders, persistence.NewGormProductRepository(db.DB), w.clock)
	w.authority = otpapp.NewAuthority(w.challenges, otp.NewBcryptHasher(bcrypt.MinCost), otpapp.DefaultConfig(), zap.NewNop(),
		otpapp.WithClock(w.clock))
	w.processor = paymentapp.NewProcessor(paymentapp.Dependencies{
		Ledger:      w.ledger,
		Authority:   w.authority,
		Payments:    w.payments,
		Users:       persistence.NewGormUserRepository(db.DB),
		Notifier:    w.notifier,
		Transactor:  persistence.NewTransactor(db.DB),
		Idempotency: cache.NewInMemoryIdempotencyStore(cache.WithStoreClock(w.clock)),
		Clock:       w.clock,
		Logger:      zap.NewNop(),
	}, paymentapp.DefaultConfig())
	return w
}

func (w *workflow) createOrder(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()
	resp, err := w.ledger.Create(context.Background(), userID, orderapp.CreateOrderRequest{
		Items: []orderapp.CreateOrderItemInput{
			{ProductID: seededEarbuds, Quantity: 2},
			{ProductID: seededCharger, Quantity: 1},
		},
	})
	require.NoError(t, err)
	return resp.ID
}

func validCard() *paymentapp.CardInput {
	return &paymentapp.CardInput{Number: "4111 1111 1111 1234", ExpiryMonth: 12, ExpiryYear: "35", CVV: "123"}
}

func TestPaymentWorkflow_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	db := NewTestDB(t)
	ctx := context.Background()

	t.Run("concurrent confirms pay the order once", func(t *testing.T) {
		w := newWorkflow(t, db)
		user := db.CreateUser("race@example.com")
		orderID := w.createOrder(t, user.ID)

		_, err := w.processor.Initiate(ctx, user.ID, paymentapp.InitiateRequest{OrderID: orderID, Method: "card"})
		require.NoError(t, err)
		code := w.notifier.LastCode()
		require.Len(t, code, 6)

		const callers = 8
		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
			start     = make(chan struct{})
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := w.processor.Confirm(ctx, user.ID, paymentapp.ConfirmRequest{
					OrderID: orderID, Method: "card", Code: code, Card: validCard(),
				}, "")
				if err == nil {
					succeeded.Add(1)
					return
				}
				var de *shared.DomainError
				assert.True(t, errors.As(err, &de), "unexpected error: %v", err)
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), succeeded.Load())

		payments, err := w.payments.FindByOrder(ctx, orderID)
		require.NoError(t, err)
		assert.Len(t, payments, 1)

		o, err := w.orders.FindByID(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, o.Status)
		assert.True(t, o.OtpVerified)
		assert.True(t, o.TotalAmount.Equal(payments[0].Amount))
	})

	t.Run("conditional transition has exactly one winner", func(t *testing.T) {
		w := newWorkflow(t, db)
		user := db.CreateUser("transition@example.com")
		orderID := w.createOrder(t, user.ID)

		const callers = 10
		var (
			wg        sync.WaitGroup
			won       atomic.Int32
			conflicts atomic.Int32
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := w.orders.TransitionToPaid(ctx, orderID, w.clock.Now())
				switch {
				case err == nil:
					won.Add(1)
				case errors.Is(err, shared.ErrConflict):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), won.Load())
		assert.Equal(t, int32(callers-1), conflicts.Load())
	})

	t.Run("a challenge is verified once", func(t *testing.T) {
		w := newWorkflow(t, db)
		user := db.CreateUser("verify@example.com")
		orderID := w.createOrder(t, user.ID)

		issued, err := w.authority.Issue(ctx, otp.PaymentKey(user.ID, orderID), 0)
		require.NoError(t, err)
		c, err := w.challenges.FindLatest(ctx, otp.PaymentKey(user.ID, orderID))
		require.NoError(t, err)
		require.NotEmpty(t, issued.Code)

		const callers = 10
		var (
			wg      sync.WaitGroup
			flipped atomic.Int32
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := w.challenges.MarkVerified(ctx, c.ID, w.clock.Now())
				assert.NoError(t, err)
				if ok {
					flipped.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), flipped.Load())
	})

	t.Run("reissue keeps one open challenge and carries the send count", func(t *testing.T) {
		w := newWorkflow(t, db)
		user := db.CreateUser("resend@example.com")
		orderID := w.createOrder(t, user.ID)
		key := otp.PaymentKey(user.ID, orderID)

		_, err := w.authority.Issue(ctx, key, 0)
		require.NoError(t, err)
		w.clock.Advance(time.Minute)
		resent, err := w.authority.Resend(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 2, resent.SentCount)

		history, err := w.challenges.FindHistory(ctx, key, w.clock.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("purge removes expired and retired challenges", func(t *testing.T) {
		w := newWorkflow(t, db)
		user := db.CreateUser("purge@example.com")
		stale := w.createOrder(t, user.ID)
		paid := w.createOrder(t, user.ID)

		_, err := w.authority.Issue(ctx, otp.PaymentKey(user.ID, stale), time.Minute)
		require.NoError(t, err)
		_, err = w.processor.Initiate(ctx, user.ID, paymentapp.InitiateRequest{OrderID: paid, Method: "card"})
		require.NoError(t, err)
		_, err = w.authority.Verify(ctx, otp.PaymentKey(user.ID, paid), w.notifier.LastCode())
		require.NoError(t, err)

		w.clock.Advance(time.Hour)
		expired, verified, err := w.authority.PurgeStale(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), expired)
		assert.Equal(t, int64(1), verified)
	})

	t.Run("admin summary aggregates paid orders", func(t *testing.T) {
		w := newWorkflow(t, db)
		user := db.CreateUser("summary@example.com")
		orderID := w.createOrder(t, user.ID)

		_, err := w.processor.Initiate(ctx, user.ID, paymentapp.InitiateRequest{OrderID: orderID, Method: "card"})
		require.NoError(t, err)
		_, err = w.processor.Confirm(ctx, user.ID, paymentapp.ConfirmRequest{
			OrderID: orderID, Method: "card", Code: w.notifier.LastCode(), Card: validCard(),
		}, "summary-1")
		require.NoError(t, err)

		summary, err := w.processor.Summary(ctx)
		require.NoError(t, err)
		require.Len(t, summary, 1)
		assert.Equal(t, user.ID, summary[0].UserID)
		assert.Equal(t, int64(1), summary[0].PaidOrders)

		page, err := w.processor.UserPaidOrders(ctx, user.ID, 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
	})
}
