package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying page fetch failures. Use errors.Is to check.
var (
	// ErrTransient marks failures worth retrying with backoff: network
	// errors, rate limits, server-side errors.
	ErrTransient = errors.New("transient fetch failure")

	// ErrPermanent marks failures that retrying cannot fix: malformed source
	// URLs, authentication failures, unusable payloads. The source is marked
	// failed immediately.
	ErrPermanent = errors.New("permanent fetch failure")
)

// Transient wraps err as a retryable fetch failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err as a non-retryable fetch failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
