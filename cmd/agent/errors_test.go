package main

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeForMapsKnownErrorTypes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitSuccess},
		{"user", &userError{fmt.Errorf("bad flag")}, exitUserError},
		{"validation", &validationError{fmt.Errorf("cyclic dependency")}, exitValidationError},
		{"execution", &executionFailure{fmt.Errorf("task failed")}, exitExecutionFailure},
		{"aborted", &abortedError{fmt.Errorf("cancelled")}, exitAborted},
		{"unrecognized", fmt.Errorf("plain error"), exitUserError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := exitCodeFor(c.err); got != c.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", c.err, got, c.want)
			}
		})
	}
}

func TestExitCodeForUnwrapsThroughFmtErrorf(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", &executionFailure{fmt.Errorf("boom")})
	if got := exitCodeFor(wrapped); got != exitExecutionFailure {
		t.Fatalf("exitCodeFor(wrapped) = %d, want %d", got, exitExecutionFailure)
	}
	if !errors.Is(wrapped, wrapped) {
		t.Fatal("sanity check failed")
	}
}
