package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// backoff decides whether a failed non-streaming attempt is tried again and
// how long to wait first. Delays double from base up to ceiling.
type backoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleep    func(time.Duration)
}

func defaultBackoff() backoff {
	return backoff{attempts: 1, base: time.Second, ceiling: 10 * time.Second}
}

// next reports the wait before attempt+1, or false when err is final.
func (b backoff) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= b.attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var status *statusError
	var empty *emptyReplyError
	var netErr net.Error
	switch {
	case errors.As(err, &status):
		if !retryableStatus(status.code) {
			return 0, false
		}
		if hint, ok := retryAfter(status.retryAfter, time.Now()); ok && hint > 0 {
			return min(hint, b.ceiling), true
		}
	case errors.As(err, &empty):
	case errors.As(err, &netErr) && netErr.Timeout():
	default:
		return 0, false
	}
	return b.delay(attempt), true
}

// delay is base·2^(attempt-1), capped at ceiling.
func (b backoff) delay(attempt int) time.Duration {
	if b.base <= 0 {
		return 0
	}
	d := b.base
	for i := 1; i < attempt && d < b.ceiling; i++ {
		d *= 2
	}
	return min(d, b.ceiling)
}

func (b backoff) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if b.sleep != nil {
		b.sleep(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// retryAfter reads a Retry-After header in either seconds or HTTP-date form.
func retryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, seconds >= 0
	}
	when, err := http.ParseTime(value)
	if err != nil || when.Before(now) {
		return 0, false
	}
	return when.Sub(now), true
}
