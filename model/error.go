package model

import (
	"fmt"
)

// InvalidArgumentError is an error signaling that a required argument was
// nil, empty, or otherwise unusable. It is always raised before any
// database round-trip.
type InvalidArgumentError string

// Error implements the error interface
func (e InvalidArgumentError) Error() string {
	return string(e)
}

// InvalidArgumentErrorFmt returns an InvalidArgumentError from the passed
// format string and parameters
func InvalidArgumentErrorFmt(format string, params ...any) InvalidArgumentError {
	return InvalidArgumentError(fmt.Sprintf(format, params...))
}

// ConcurrencyError is an error signaling that an update or delete targeted
// a row whose persisted concurrency token no longer matches the caller's:
// the entity was changed or removed since it was last read. It is never
// retried by the store; re-fetch and reapply is a caller concern.
type ConcurrencyError string

// Error implements the error interface
func (e ConcurrencyError) Error() string {
	return string(e)
}

// ConcurrencyErrorFmt returns a ConcurrencyError from the passed format
// string and parameters
func ConcurrencyErrorFmt(format string, params ...any) ConcurrencyError {
	return ConcurrencyError(fmt.Sprintf(format, params...))
}

// ConfigurationError is an error signaling a setup mistake, e.g. a store
// resolver that cannot map an entity type to a registered store. Fatal,
// not retried.
type ConfigurationError string

// Error implements the error interface
func (e ConfigurationError) Error() string {
	return string(e)
}

// ConfigurationErrorFmt returns a ConfigurationError from the passed format
// string and parameters
func ConfigurationErrorFmt(format string, params ...any) ConfigurationError {
	return ConfigurationError(fmt.Sprintf(format, params...))
}
