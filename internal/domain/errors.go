package domain

import "errors"

var (
	// ErrNotFound is the sentinel for missing nodes or edges.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input: self-loops, out-of-range
	// percentages, missing required fields. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrAmbiguous marks a resolution that matched several distinct
	// entities; the caller applies a policy.
	ErrAmbiguous = errors.New("ambiguous resolution")
	// ErrUnavailable marks a collaborator (store, extraction, embedding,
	// analytics) timeout or failure. Retryable with backoff.
	ErrUnavailable = errors.New("collaborator unavailable")
	// ErrNoFilings means the extraction collaborator found no documents for
	// the entity. The branch simply has no portfolio.
	ErrNoFilings = errors.New("no filings found")
	// ErrMalformedDocument means the extraction collaborator could not parse
	// the filing it found. Not retryable.
	ErrMalformedDocument = errors.New("malformed document")
)
