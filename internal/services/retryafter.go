package services

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryAfterHint returns the wait a remote service asked for before the
// next attempt, when err carries one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var hinted interface{ RetryAfter() time.Duration }
	if !errors.As(err, &hinted) {
		return 0, false
	}
	delay := hinted.RetryAfter()
	if delay <= 0 {
		return 0, false
	}
	return delay, true
}

// ParseRetryAfter reads a Retry-After header value, either delta seconds or
// an HTTP date relative to now.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := when.Sub(now)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
