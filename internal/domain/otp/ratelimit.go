package otp

import (
	"time"

	"github.com/techdigits/backend/internal/domain/shared"
)

// SendRecord is one challenge's contribution to the send history of a pair.
type SendRecord struct {
	LastSentAt time.Time
	SentAt     []time.Time
}

// RateLimitPolicy decides whether another code may be sent. It keeps no
// state; the history comes from the stored challenges of the pair.
type RateLimitPolicy struct {
	// Cooldown is the minimum time between two sends. Zero disables it.
	Cooldown time.Duration
	// Window and MaxSends cap the number of sends within a trailing window.
	// Zero in either disables the cap.
	Window   time.Duration
	MaxSends int
}

// Evaluate returns nil if a send is allowed at now, otherwise a RATE_LIMITED
// error with the time until the vetoing policy would allow it.
func (p RateLimitPolicy) Evaluate(history []SendRecord, now time.Time) error {
	if len(history) == 0 {
		return nil
	}

	if p.Cooldown > 0 {
		var last time.Time
		for _, r := range history {
			if r.LastSentAt.After(last) {
				last = r.LastSentAt
			}
		}
		if elapsed := now.Sub(last); elapsed < p.Cooldown {
			return shared.NewRateLimitedError("Please wait before requesting a new code", p.Cooldown-elapsed)
		}
	}

	if p.Window > 0 && p.MaxSends > 0 {
		// sends in (now-Window, now]
		windowStart := now.Add(-p.Window)
		total := 0
		var oldest time.Time
		for _, r := range history {
			for _, at := range r.SentAt {
				if !at.After(windowStart) || at.After(now) {
					continue
				}
				total++
				if oldest.IsZero() || at.Before(oldest) {
					oldest = at
				}
			}
		}
		if total >= p.MaxSends {
			return shared.NewRateLimitedError("Resend limit reached. Try again later.", oldest.Add(p.Window).Sub(now))
		}
	}

	return nil
}

// Records converts challenges into send history.
func Records(challenges []Challenge) []SendRecord {
	out := make([]SendRecord, 0, len(challenges))
	for i := range challenges {
		out = append(out, challenges[i].SendRecord())
	}
	return out
}
