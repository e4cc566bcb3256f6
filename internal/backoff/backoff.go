package backoff

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy turns a 429 into the moment a stream may fetch again.
type Policy struct {
	// Margin is added on top of the upstream Retry-After.
	Margin time.Duration
	// DefaultRetryAfter is used when a 429 arrives without a usable Retry-After.
	DefaultRetryAfter time.Duration
}

// ResumeAt returns now + retryAfter + margin. When the upstream did not say how
// long to wait, DefaultRetryAfter stands in for retryAfter.
func (p Policy) ResumeAt(now time.Time, retryAfter time.Duration, known bool) time.Time {
	if !known || retryAfter < 0 {
		retryAfter = p.DefaultRetryAfter
	}
	margin := p.Margin
	if margin < 0 {
		margin = 0
	}
	return now.Add(retryAfter + margin)
}

// ParseRetryAfter reads a Retry-After header given either as delay-seconds or
// as an HTTP-date. The boolean is false when the header is missing or unusable.
func ParseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
