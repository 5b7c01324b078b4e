package summaryclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/muneeb-ashraf/yt-summarizer-app/pkg/domain"
)

// PollOptions tunes Poll. Zero values use the defaults.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// OnStatus is called after every successful status read.
	OnStatus func(domain.StatusView)
}

// Poll reads the job status at a fixed interval until it is completed or
// failed. A failed job is returned without error; callers check Status.
// Transport errors and 429/5xx answers count as attempts and polling goes on.
// Other API errors, such as 404 after a delete, stop polling.
func (c *Client) Poll(ctx context.Context, id string, opts PollOptions) (domain.StatusView, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var last domain.StatusView
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		view, err := c.Status(ctx, id)
		switch {
		case err == nil:
			last = view
			if opts.OnStatus != nil {
				opts.OnStatus(view)
			}
			if view.Status.Terminal() {
				return view, nil
			}
		case ctx.Err() != nil:
			return last, ctx.Err()
		case !retryable(err):
			return last, err
		}
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
	return last, ErrPollTimeout
}

func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
}
