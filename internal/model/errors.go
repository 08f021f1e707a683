package model

import (
	"errors"
	"fmt"
)

// Pipeline-level failure kinds. Every error returned across the pipeline
// boundary wraps exactly one of these.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNoSourcesAvailable = errors.New("no sources available")
	ErrCancelled          = errors.New("cancelled")
	ErrCacheUnavailable   = errors.New("cache unavailable")
)

// ErrNotFound is returned by stores when a key or record does not exist
var ErrNotFound = errors.New("not found")

// SourceError records the failure of a single provider call
type SourceError struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s", e.Source, e.Reason)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
