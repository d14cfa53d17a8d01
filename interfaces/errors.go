package interfaces

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors below wrap one of these so callers can
// branch on the category with errors.Is.
var (
	// ErrValidation is returned for malformed input. No side effects have occurred.
	ErrValidation = errors.New("validation error")

	// ErrCryptographic covers random source failures, key import failures and
	// authentication failures. Always fatal to the current operation.
	ErrCryptographic = errors.New("cryptographic failure")

	// ErrExternalUnavailable is returned when the registry or object storage
	// errors or times out.
	ErrExternalUnavailable = errors.New("external service unavailable")

	// ErrNotFound is returned when a lookup finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRegistered is returned when the registry already holds a
	// record for the submitted content hash.
	ErrAlreadyRegistered = errors.New("credential already registered")
)

var (
	// ErrInvalidParameters is returned for out-of-range protocol parameters,
	// such as a threshold above the share count or a wrong key length.
	ErrInvalidParameters = fmt.Errorf("%w: invalid parameters", ErrValidation)

	// ErrAuthenticationFailed is returned when an AES-GCM tag does not verify.
	ErrAuthenticationFailed = fmt.Errorf("%w: authentication failed", ErrCryptographic)

	// ErrInputTooLarge is returned when a payload exceeds the RSA-OAEP limit for the key.
	ErrInputTooLarge = fmt.Errorf("%w: input too large", ErrCryptographic)

	// ErrBackendUnavailable is returned when a backend could not be reached
	// and nothing was written.
	ErrBackendUnavailable = fmt.Errorf("%w: backend unavailable", ErrExternalUnavailable)

	// ErrOutcomeUnknown is returned when a registry write was sent but its
	// outcome could not be observed. Such a write must not be retried blindly.
	ErrOutcomeUnknown = fmt.Errorf("%w: outcome unknown", ErrExternalUnavailable)

	// ErrContentNotFound is returned when requested content is not in a storage backend.
	ErrContentNotFound = fmt.Errorf("%w: content", ErrNotFound)

	// ErrRecordNotFound is returned when neither the registry nor the record
	// store holds a record for a hash.
	ErrRecordNotFound = fmt.Errorf("%w: record", ErrNotFound)

	// ErrInvalidLocationURI is returned when a storage URI or locator is malformed or unsupported.
	ErrInvalidLocationURI = fmt.Errorf("%w: invalid storage location URI", ErrValidation)
)
