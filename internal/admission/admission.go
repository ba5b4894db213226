// Package admission gates how uploads enter the system: a sliding-window
// rate limiter on upload-URL issuance and a quota on documents owned per
// anonymous identifier.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/records"
)

// Controller admits upload attempts against a per-identifier rolling
// window. The window resets lazily: expiry is derived from (now,
// windowStart) on each check, never by a background timer, so a saturated
// window still grants exactly one admission once its duration has elapsed.
type Controller struct {
	windows records.RateWindowStore
	window  time.Duration
	ceiling int
}

func NewController(windows records.RateWindowStore, window time.Duration, ceiling int) *Controller {
	return &Controller{windows: windows, window: window, ceiling: ceiling}
}

// Authorize admits or rejects one upload attempt for identifier at the
// given instant. Returns flipbook.ErrRateLimited when the live window is
// saturated. The check-and-increment runs atomically in the store, so
// concurrent checks for one identifier cannot exceed the ceiling.
func (c *Controller) Authorize(ctx context.Context, identifier string, now time.Time) error {
	if identifier == "" {
		return fmt.Errorf("identifier must not be empty")
	}

	return c.windows.Mutate(ctx, identifier, func(w *flipbook.RateWindow) (*flipbook.RateWindow, error) {
		return c.admit(identifier, w, now)
	})
}

// admit is the pure admission decision: the window to persist, or an
// error leaving the stored window untouched.
func (c *Controller) admit(identifier string, w *flipbook.RateWindow, now time.Time) (*flipbook.RateWindow, error) {
	if w == nil || w.Expired(now, c.window) {
		return &flipbook.RateWindow{
			Identifier:  identifier,
			Count:       1,
			WindowStart: now,
		}, nil
	}
	if w.Count >= c.ceiling {
		return nil, flipbook.ErrRateLimited
	}
	w.Count++
	return w, nil
}

// Quota caps the number of documents one identifier may own. Enforced as a
// precondition before an upload starts and again at registration time.
type Quota struct {
	docs    records.DocumentStore
	ceiling int
}

func NewQuota(docs records.DocumentStore, ceiling int) *Quota {
	return &Quota{docs: docs, ceiling: ceiling}
}

// CanCreate reports whether identifier may register another document.
func (q *Quota) CanCreate(ctx context.Context, identifier string) (bool, error) {
	count, err := q.docs.CountByIdentifier(ctx, identifier)
	if err != nil {
		return false, fmt.Errorf("failed to check document quota: %w", err)
	}
	return count < q.ceiling, nil
}
