package testutil

import (
	"context"
	"sync"

	"github.com/techdigits/backend/internal/domain/otp"
)

// RecordingNotifier is an otp.Notifier that keeps every delivery in memory.
type RecordingNotifier struct {
	mu         sync.Mutex
	deliveries []otp.Delivery
	err        error
}

var _ otp.Notifier = (*RecordingNotifier)(nil)

// NewRecordingNotifier creates an empty RecordingNotifier.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// Send records d and returns the configured error.
func (n *RecordingNotifier) Send(_ context.Context, d otp.Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	return n.err
}

// SetError sets the error returned by Send.
func (n *RecordingNotifier) SetError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Deliveries returns a copy of all recorded deliveries.
func (n *RecordingNotifier) Deliveries() []otp.Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]otp.Delivery(nil), n.deliveries...)
}

// LastCode returns the code of the most recent delivery, or "".
func (n *RecordingNotifier) LastCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.deliveries) == 0 {
		return ""
	}
	return n.deliveries[len(n.deliveries)-1].Code
}

// Count returns the number of recorded deliveries.
func (n *RecordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}
