package oidcstore

import (
	"strconv"

	"github.com/gofrs/uuid/v5"
	"github.com/pkg/errors"
)

// KeyConverter converts between the string identifier representation used
// at the framework boundary and the strongly typed primary key used by the
// models. Implementations must be round-trip stable for all non-zero keys:
// FromString(s) == k whenever ToString(k) == (s, true).
type KeyConverter[K comparable] interface {
	// FromString parses text into a key. Empty text yields the zero key
	// without error; text that is not a valid literal for the key type
	// yields an error.
	FromString(text string) (K, error)

	// ToString renders a key. The zero key yields ("", false); any other
	// key yields its invariant string representation and true.
	ToString(key K) (string, bool)
}

// StringKeys converts string primary keys. The conversion is the identity.
type StringKeys struct{}

func (StringKeys) FromString(text string) (string, error) { return text, nil }

func (StringKeys) ToString(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	return key, true
}

// Int64Keys converts int64 primary keys using base-10 literals.
type Int64Keys struct{}

func (Int64Keys) FromString(text string) (int64, error) {
	if text == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot convert '%s' to an int64 key", text)
	}
	return id, nil
}

func (Int64Keys) ToString(key int64) (string, bool) {
	if key == 0 {
		return "", false
	}
	return strconv.FormatInt(key, 10), true
}

// UUIDKeys converts uuid.UUID primary keys using the canonical textual
// representation.
type UUIDKeys struct{}

func (UUIDKeys) FromString(text string) (uuid.UUID, error) {
	if text == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.FromString(text)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "cannot convert '%s' to a UUID key", text)
	}
	return id, nil
}

func (UUIDKeys) ToString(key uuid.UUID) (string, bool) {
	if key == uuid.Nil {
		return "", false
	}
	return key.String(), true
}
