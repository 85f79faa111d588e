package domain

import "errors"

var (
	// ErrSourceUnavailable is returned when an upstream source is down or timing out.
	// Retryable.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNotFound is returned when an item does not exist upstream. Terminal.
	ErrNotFound = errors.New("not found upstream")

	// ErrMalformedSource is returned when the minimum identity fields
	// (contract address + token id, or an explicit title) cannot be extracted.
	// Terminal.
	ErrMalformedSource = errors.New("malformed source payload")

	// ErrMediaFetch is returned after bounded media download retries are
	// exhausted. Retryable at the orchestrator level.
	ErrMediaFetch = errors.New("media fetch failed")

	// ErrUnsupportedMediaType is returned when a media payload cannot be
	// classified or hosted. Terminal for that media field only.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrIdentityConflict is returned when the create-then-refetch-on-conflict
	// round trip still cannot produce a record. Transient.
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrPersistence is returned when the transactional artwork write failed
	// as a whole. Nothing is partially applied.
	ErrPersistence = errors.New("persistence failed")
)

// Retryable reports whether an error class is worth re-attempting on a sweep
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, ErrMediaFetch),
		errors.Is(err, ErrIdentityConflict),
		errors.Is(err, ErrPersistence):
		return true
	}
	return false
}
