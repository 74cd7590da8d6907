// Package testutil provides testing utilities for aide.
//
// This package contains mock errors and test helpers used across test
// files. It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors for testing purposes.
// These errors are used to simulate various failure scenarios in tests.
var (
	// ErrMockIO indicates a mock filesystem failure (used in tests).
	ErrMockIO = errors.New("io failure")

	// ErrMockExecutor indicates a mock executor failure (used in tests).
	ErrMockExecutor = errors.New("executor failure")

	// ErrMockWatcher indicates a mock watcher failure (used in tests).
	ErrMockWatcher = errors.New("watcher failure")

	// ErrMockSink indicates a mock audit sink failure (used in tests).
	ErrMockSink = errors.New("audit sink unavailable")

	// ErrMockJob indicates a mock scheduled job failure (used in tests).
	ErrMockJob = errors.New("job failure")
)
