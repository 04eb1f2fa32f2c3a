package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrAuthFailed indicates the backend does not know the device password
	ErrAuthFailed = errors.New("device password was rejected")

	// ErrServerOffline indicates the backend is unreachable
	ErrServerOffline = errors.New("backend is unreachable")

	// ErrCycleInProgress indicates a sync cycle is already running
	ErrCycleInProgress = errors.New("sync cycle already in progress")

	// ErrNotAuthenticated indicates no device password is known
	ErrNotAuthenticated = errors.New("device is not authenticated")
)

// StoreError reports a failed persistence operation.
// It is never swallowed: the current operation fails with it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// FetchError reports a single content download that failed.
// The cycle skips the item and continues.
type FetchError struct {
	Key string
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Key, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
