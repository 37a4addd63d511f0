package shared

import "context"

// Transactor runs fn inside a storage transaction carried by the context.
// Repositories called with the context passed to fn join that transaction.
// A non-nil error from fn rolls the transaction back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
