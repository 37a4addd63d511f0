package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/techdigits/backend/internal/domain/identity"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/payment"
	"github.com/techdigits/backend/internal/domain/shared"
)

// Store is an in-memory backing store for the repository ports. It honours
// the conditional-update contracts of the real repositories so concurrency
// tests can run without a database. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	seq  int64

	orders     map[uuid.UUID]order.Order
	challenges map[uuid.UUID]otp.Challenge
	chalSeq    map[uuid.UUID]int64
	payments   map[uuid.UUID]payment.Payment
	users      map[uuid.UUID]identity.User
	prices     map[uuid.UUID]decimal.Decimal

	// FailPaymentCreate makes the next payment insert fail.
	FailPaymentCreate error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		orders:     make(map[uuid.UUID]order.Order),
		challenges: make(map[uuid.UUID]otp.Challenge),
		chalSeq:    make(map[uuid.UUID]int64),
		payments:   make(map[uuid.UUID]payment.Payment),
		users:      make(map[uuid.UUID]identity.User),
		prices:     make(map[uuid.UUID]decimal.Decimal),
	}
}

// Orders returns an order.Repository over the store.
func (s *Store) Orders() *MemOrderRepository { return &MemOrderRepository{s: s} }

// Challenges returns an otp.Repository over the store.
func (s *Store) Challenges() *MemChallengeRepository { return &MemChallengeRepository{s: s} }

// Payments returns a payment.Repository over the store.
func (s *Store) Payments() *MemPaymentRepository { return &MemPaymentRepository{s: s} }

// Users returns an identity.Repository over the store.
func (s *Store) Users() *MemUserRepository { return &MemUserRepository{s: s} }

// Catalog returns an order.PriceCatalog over the store.
func (s *Store) Catalog() *MemCatalog { return &MemCatalog{s: s} }

// Transactor returns a shared.Transactor that serializes transactions and
// restores the store when fn fails.
func (s *Store) Transactor() shared.Transactor { return &memTransactor{s: s} }

// AddProduct registers a product price and returns its id.
func (s *Store) AddProduct(price decimal.Decimal) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.prices[id] = price
	return id
}

// PutOrder stores o as is.
func (s *Store) PutOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = copyOrder(*o)
}

// PutUser stores u as is.
func (s *Store) PutUser(u *identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
}

// PutChallenge stores c as is, bypassing Replace.
func (s *Store) PutChallenge(c *otp.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.challenges[c.ID] = *c
	s.chalSeq[c.ID] = s.seq
}

// SucceededPayments returns the succeeded payments of an order.
func (s *Store) SucceededPayments(orderID uuid.UUID) []payment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payment.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID && p.Status == payment.StatusSucceeded {
			out = append(out, p)
		}
	}
	return out
}

// ChallengesFor returns every stored challenge of key.
func (s *Store) ChallengesFor(key otp.Key) []otp.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.challengesLocked(key)
}

func (s *Store) challengesLocked(key otp.Key) []otp.Challenge {
	var out []otp.Challenge
	for _, c := range s.challenges {
		if sameKey(c.Key(), key) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.chalSeq[out[i].ID] > s.chalSeq[out[j].ID] })
	return out
}

func sameKey(a, b otp.Key) bool {
	if a.UserID != b.UserID || a.Purpose != b.Purpose {
		return false
	}
	if a.OrderID == nil || b.OrderID == nil {
		return a.OrderID == nil && b.OrderID == nil
	}
	return *a.OrderID == *b.OrderID
}

func copyOrder(o order.Order) order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return o
}

// MemOrderRepository implements order.Repository.
type MemOrderRepository struct{ s *Store }

var _ order.Repository = (*MemOrderRepository)(nil)

func (r *MemOrderRepository) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (r *MemOrderRepository) list(match func(order.Order) bool, filter shared.Filter) ([]order.Order, int64) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []order.Order
	for _, o := range r.s.orders {
		if match(o) {
			all = append(all, copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := min(filter.Offset(), len(all))
	end := len(all)
	if filter.PageSize > 0 {
		end = min(start+filter.PageSize, len(all))
	}
	return all[start:end], total
}

func (r *MemOrderRepository) FindByUser(_ context.Context, userID uuid.UUID, filter shared.Filter) ([]order.Order, int64, error) {
	status, _ := filter.Filters["status"].(string)
	items, total := r.list(func(o order.Order) bool {
		return o.UserID == userID && (status == "" || string(o.Status) == status)
	}, filter)
	return items, total, nil
}

func (r *MemOrderRepository) FindAll(_ context.Context, filter shared.Filter) ([]order.Order, int64, error) {
	status, _ := filter.Filters["status"].(string)
	items, total := r.list(func(o order.Order) bool { return status == "" || string(o.Status) == status }, filter)
	return items, total, nil
}

func (r *MemOrderRepository) Create(_ context.Context, o *order.Order) error {
	r.s.PutOrder(o)
	return nil
}

func (r *MemOrderRepository) TransitionToPaid(_ context.Context, id uuid.UUID, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return shared.NewConflictError("Order", o.Status.String())
	}
	o.Status = order.StatusPaid
	o.PaidAt = &now
	o.UpdatedAt = now
	o.Version++
	r.s.orders[id] = o
	return nil
}

func (r *MemOrderRepository) MarkOtpVerified(_ context.Context, id uuid.UUID, verified bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.OtpVerified = verified
	r.s.orders[id] = o
	return nil
}

func (r *MemOrderRepository) SaveStatus(_ context.Context, o *order.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[o.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != o.Version-1 {
		return shared.NewConflictError("Order", stored.Status.String())
	}
	r.s.orders[o.ID] = copyOrder(*o)
	return nil
}

// MemChallengeRepository implements otp.Repository.
type MemChallengeRepository struct{ s *Store }

var _ otp.Repository = (*MemChallengeRepository)(nil)

func (r *MemChallengeRepository) FindLatest(_ context.Context, key otp.Key) (*otp.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.challengesLocked(key)
	if len(all) == 0 {
		return nil, shared.ErrNotFound
	}
	c := all[0]
	return &c, nil
}

func (r *MemChallengeRepository) FindLatestVerified(_ context.Context, key otp.Key, since time.Time) (*otp.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.challengesLocked(key) {
		if c.Verified && c.VerifiedAt != nil && !c.VerifiedAt.Before(since) {
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *MemChallengeRepository) FindHistory(_ context.Context, key otp.Key, since time.Time) ([]otp.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []otp.Challenge
	for _, c := range r.s.challengesLocked(key) {
		if !c.LastSentAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemChallengeRepository) Replace(_ context.Context, c *otp.Challenge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.challenges {
		if !existing.Verified && sameKey(existing.Key(), c.Key()) {
			delete(r.s.challenges, id)
			delete(r.s.chalSeq, id)
		}
	}
	r.s.seq++
	r.s.challenges[c.ID] = *c
	r.s.chalSeq[c.ID] = r.s.seq
	return nil
}

func (r *MemChallengeRepository) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challenges[id]
	if !ok || c.Verified {
		return false, nil
	}
	c.Verified = true
	c.VerifiedAt = &at
	c.UpdatedAt = at
	r.s.challenges[id] = c
	return true, nil
}

func (r *MemChallengeRepository) DeleteByKey(_ context.Context, key otp.Key) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, c := range r.s.challengesLocked(key) {
		delete(r.s.challenges, c.ID)
		delete(r.s.chalSeq, c.ID)
		n++
	}
	return n, nil
}

func (r *MemChallengeRepository) DeleteStale(_ context.Context, now, verifiedBefore time.Time) (int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var expired, verified int64
	for id, c := range r.s.challenges {
		if !c.IsStale(now, verifiedBefore) {
			continue
		}
		if c.Verified {
			verified++
		} else {
			expired++
		}
		delete(r.s.challenges, id)
		delete(r.s.chalSeq, id)
	}
	return expired, verified, nil
}

// MemPaymentRepository implements payment.Repository.
type MemPaymentRepository struct{ s *Store }

var _ payment.Repository = (*MemPaymentRepository)(nil)

func (r *MemPaymentRepository) Create(_ context.Context, p *payment.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.FailPaymentCreate; err != nil {
		r.s.FailPaymentCreate = nil
		return err
	}
	if p.Status == payment.StatusSucceeded {
		for _, existing := range r.s.payments {
			if existing.OrderID == p.OrderID && existing.Status == payment.StatusSucceeded {
				return shared.NewConflictError("Order", order.StatusPaid.String())
			}
		}
	}
	r.s.payments[p.ID] = *p
	return nil
}

func (r *MemPaymentRepository) FindByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r *MemPaymentRepository) sorted(match func(payment.Payment) bool) []payment.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []payment.Payment
	for _, p := range r.s.payments {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemPaymentRepository) FindByOrder(_ context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	return r.sorted(func(p payment.Payment) bool { return p.OrderID == orderID }), nil
}

func (r *MemPaymentRepository) ListRecent(_ context.Context, limit int) ([]payment.Payment, error) {
	out := r.sorted(func(payment.Payment) bool { return true })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemPaymentRepository) SummarizeByUser(_ context.Context) ([]payment.Summary, error) {
	paid := r.sorted(func(p payment.Payment) bool { return p.Status == payment.StatusSucceeded })

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byUser := make(map[uuid.UUID]*payment.Summary)
	var out []*payment.Summary
	for _, p := range paid {
		sum, ok := byUser[p.UserID]
		if !ok {
			u := r.s.users[p.UserID]
			sum = &payment.Summary{UserID: p.UserID, Name: u.Name, Email: u.Email, TotalPaid: decimal.Zero}
			byUser[p.UserID] = sum
			out = append(out, sum)
		}
		sum.PaidOrders++
		sum.TotalPaid = sum.TotalPaid.Add(p.Amount)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalPaid.GreaterThan(out[j].TotalPaid) })
	result := make([]payment.Summary, 0, len(out))
	for _, s := range out {
		result = append(result, *s)
	}
	return result, nil
}

// MemUserRepository implements identity.Repository.
type MemUserRepository struct{ s *Store }

var _ identity.Repository = (*MemUserRepository)(nil)

func (r *MemUserRepository) FindByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (r *MemUserRepository) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = identity.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *MemUserRepository) FindByIDs(_ context.Context, ids []uuid.UUID) ([]identity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []identity.User
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *MemUserRepository) Create(_ context.Context, u *identity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return shared.NewDomainError(shared.CodeConflict, "Email already registered")
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r *MemUserRepository) UpdatePassword(_ context.Context, u *identity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; !ok {
		return shared.ErrNotFound
	}
	r.s.users[u.ID] = *u
	return nil
}

// MemCatalog implements order.PriceCatalog.
type MemCatalog struct{ s *Store }

var _ order.PriceCatalog = (*MemCatalog)(nil)

func (c *MemCatalog) Prices(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := make(map[uuid.UUID]decimal.Decimal, len(ids))
	for _, id := range ids {
		if p, ok := c.s.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type memTransactor struct{ s *Store }

func (t *memTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	t.s.mu.Lock()
	orders := make(map[uuid.UUID]order.Order, len(t.s.orders))
	for k, v := range t.s.orders {
		orders[k] = copyOrder(v)
	}
	payments := make(map[uuid.UUID]payment.Payment, len(t.s.payments))
	for k, v := range t.s.payments {
		payments[k] = v
	}
	t.s.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.s.mu.Lock()
		t.s.orders = orders
		t.s.payments = payments
		t.s.mu.Unlock()
		return err
	}
	return nil
}
