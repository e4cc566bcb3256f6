package fetcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	KindInvalidURL Kind = iota + 1
	KindNetwork
	KindBadStatus
	KindRateLimited
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindNetwork:
		return "network"
	case KindBadStatus:
		return "bad_status"
	case KindRateLimited:
		return "rate_limited"
	case KindDecode:
		return "decode"
	}
	return "unknown"
}

// Error is returned by every upstream fetch.
type Error struct {
	Kind       Kind
	Source     string
	URL        string
	StatusCode int
	// RetryAfter is only meaningful when HasRetryAfter is set on a 429.
	RetryAfter    time.Duration
	HasRetryAfter bool
	Err           error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBadStatus:
		return fmt.Sprintf("%s: unexpected status %d", e.Source, e.StatusCode)
	case KindRateLimited:
		if e.HasRetryAfter {
			return fmt.Sprintf("%s: rate limited (retry after %s)", e.Source, e.RetryAfter)
		}
		return fmt.Sprintf("%s: rate limited", e.Source)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the fetch error kind carried by err, or 0 if err is not a fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// RateLimit finds the first 429 inside err, including inside a PartialError.
func RateLimit(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindRateLimited {
		return fe, true
	}
	var pe *PartialError
	if errors.As(err, &pe) {
		for _, name := range pe.sources() {
			if fe, ok := RateLimit(pe.Errs[name]); ok {
				return fe, true
			}
		}
	}
	return nil, false
}

// PartialError reports the sources that failed in a cycle whose other sources succeeded.
type PartialError struct {
	Errs map[string]error
}

func (e *PartialError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for _, name := range e.sources() {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Errs[name]))
	}
	return "partial failure: " + strings.Join(parts, "; ")
}

func (e *PartialError) Unwrap() []error {
	out := make([]error, 0, len(e.Errs))
	for _, name := range e.sources() {
		out = append(out, e.Errs[name])
	}
	return out
}

func (e *PartialError) sources() []string {
	names := make([]string, 0, len(e.Errs))
	for name := range e.Errs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Partial collects non-nil errors by source and returns nil when there are none.
func Partial(errs map[string]error) error {
	failed := make(map[string]error)
	for name, err := range errs {
		if err != nil {
			failed[name] = err
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &PartialError{Errs: failed}
}
