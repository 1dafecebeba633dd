// Copyright 2024-2026 Aiku AI

package bridge

import "errors"

// Fatal startup conditions. Everything else is recovered locally.
var (
	// ErrNoSubscriptions is returned by the registry when no configured
	// route matches any live source channel. The process cannot do useful
	// work and must stop.
	ErrNoSubscriptions = errors.New("no configured route matches a live source channel")

	// ErrSourceNotConnected is returned when the source client never became
	// connected within the registry's retry budget.
	ErrSourceNotConnected = errors.New("source client not connected")
)

// Per-operation destination failures. These are logged, the unit of work is
// abandoned, and processing continues for other routes and messages.
var (
	ErrDestinationNotFound  = errors.New("destination target not found")
	ErrDestinationForbidden = errors.New("destination operation forbidden")
)

// ErrMappingNotFound is the expected "nothing to do" result when an edit,
// delete or reply-reference lookup has no recorded mapping.
var ErrMappingNotFound = errors.New("no mapping recorded for source message")

// FailureKind classifies a destination-side delivery failure for missed
// records and metrics.
type FailureKind string

const (
	FailureNotFound  FailureKind = "not_found"
	FailureForbidden FailureKind = "forbidden"
	FailureTransport FailureKind = "transport"
)

// ClassifyFailure maps a destination error to its failure kind. Anything
// that is not a recognized sentinel counts as a transport failure.
func ClassifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, ErrDestinationNotFound):
		return FailureNotFound
	case errors.Is(err, ErrDestinationForbidden):
		return FailureForbidden
	default:
		return FailureTransport
	}
}
