package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestBackoffDelayDoublesToCeiling(t *testing.T) {
	b := backoff{attempts: 6, base: 100 * time.Millisecond, ceiling: 500 * time.Millisecond}
	want := []time.Duration{100, 200, 400, 500, 500}
	for i, w := range want {
		if got := b.delay(i + 1); got != w*time.Millisecond {
			t.Fatalf("attempt %d: got %s want %s", i+1, got, w*time.Millisecond)
		}
	}
	if (backoff{}).delay(3) != 0 {
		t.Fatal("zero base should not wait")
	}
}

func TestBackoffNextClassifiesErrors(t *testing.T) {
	ctx := context.Background()
	b := backoff{attempts: 3, base: time.Second, ceiling: 4 * time.Second}

	cases := []struct {
		name  string
		err   error
		retry bool
		wait  time.Duration
	}{
		{"rate limited", &statusError{code: http.StatusTooManyRequests}, true, time.Second},
		{"retry-after hint", &statusError{code: http.StatusServiceUnavailable, retryAfter: "2"}, true, 2 * time.Second},
		{"hint capped", &statusError{code: http.StatusBadGateway, retryAfter: "60"}, true, 4 * time.Second},
		{"bad request", &statusError{code: http.StatusBadRequest}, false, 0},
		{"empty reply", &emptyReplyError{op: "deepseek complete"}, true, time.Second},
		{"cancelled", context.Canceled, false, 0},
		{"plain", errors.New("decode response"), false, 0},
	}
	for _, tc := range cases {
		wait, retry := b.next(ctx, tc.err, 1)
		if retry != tc.retry || wait != tc.wait {
			t.Fatalf("%s: got (%s, %v) want (%s, %v)", tc.name, wait, retry, tc.wait, tc.retry)
		}
	}
	if _, retry := b.next(ctx, &statusError{code: http.StatusBadGateway}, 3); retry {
		t.Fatal("last attempt must not retry")
	}
}

func TestRetryAfterForms(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if d, ok := retryAfter("3", now); !ok || d != 3*time.Second {
		t.Fatalf("seconds form: %s %v", d, ok)
	}
	if d, ok := retryAfter(now.Add(5*time.Second).Format(http.TimeFormat), now); !ok || d != 5*time.Second {
		t.Fatalf("date form: %s %v", d, ok)
	}
	for _, value := range []string{"", "-1", "soon", now.Add(-time.Minute).Format(http.TimeFormat)} {
		if _, ok := retryAfter(value, now); ok {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}
