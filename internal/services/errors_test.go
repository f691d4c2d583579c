package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrTransient, "transcribing", "post request", "ASR backend unreachable", cause)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("expected ErrTransient marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}
	if !strings.Contains(err.Error(), "transcribing: post request: ASR backend unreachable") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapNilMarkerDefaultsTransient(t *testing.T) {
	err := Wrap(nil, "stage", "op", "msg", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatal("nil marker should default to transient")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrTransient, true},
		{ErrTimeout, true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{ErrInvalidOutput, false},
		{fmt.Errorf("wrapped: %w", ErrTransient), true},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNeedsFallback(t *testing.T) {
	if !NeedsFallback(ErrInvalidOutput) || !NeedsFallback(ErrMissingCredential) {
		t.Fatal("invalid output and missing credential must trigger fallback")
	}
	if NeedsFallback(ErrTransient) || NeedsFallback(nil) {
		t.Fatal("transient/nil must not trigger fallback")
	}
}
