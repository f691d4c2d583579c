package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrTransient marks provider failures worth retrying (network errors,
	// unreachable backends, 5xx responses).
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks a provider call that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrInvalidOutput marks provider output that violates the expected
	// schema or content contract. Stages with a fallback switch to it
	// instead of retrying.
	ErrInvalidOutput = errors.New("invalid provider output")
	// ErrMissingCredential marks an absent credential for an optional
	// backend. Diarization treats this as a deterministic fallback, never
	// an error state.
	ErrMissingCredential = errors.New("missing credential")
	// ErrConfiguration marks unusable configuration detected at run time.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups for unknown jobs or artifacts.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an optimistic-concurrency revision mismatch; the
	// caller must re-read and retry.
	ErrConflict = errors.New("revision conflict")
	// ErrExhausted marks a stage whose retry budget ran out with no
	// fallback available.
	ErrExhausted = errors.New("retries exhausted")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later outcome classification. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether an error should be retried with backoff
// rather than escalated immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// NeedsFallback reports whether an error should bypass retry and go
// straight to the stage's fallback provider when one exists.
func NeedsFallback(err error) bool {
	return errors.Is(err, ErrInvalidOutput) ||
		errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
