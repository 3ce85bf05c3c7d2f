package oidcstore

import (
	"github.com/gofrs/uuid/v5"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/provenid/oidcstore/model"
)

// Store is a GORM-based persistence adapter for OAuth2/OIDC entities.
// The primary-key type K is chosen once per deployment.
type Store[K comparable] struct {
	db    *gorm.DB
	conv  KeyConverter[K]
	codec *Codec
}

func storeModels[K comparable]() []any {
	return []any{
		&model.Application[K]{},
		&model.Authorization[K]{},
		&model.Scope[K]{},
		&model.Token[K]{},
	}
}

// New connects to the configured database, migrates the entity tables and
// returns a ready Store.
func New[K comparable](cfg Config, conv KeyConverter[K]) (*Store[K], error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return NewWithDB(db, conv)
}

// NewWithDB builds a Store on an existing GORM connection, migrating the
// entity tables. Useful when the caller manages the connection itself.
func NewWithDB[K comparable](db *gorm.DB, conv KeyConverter[K]) (*Store[K], error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if conv == nil {
		return nil, errors.New("key converter must not be nil")
	}
	if err := db.AutoMigrate(storeModels[K]()...); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return &Store[K]{
		db:    db,
		conv:  conv,
		codec: NewCodec(),
	}, nil
}

// Applications returns an ApplicationStore
func (s *Store[K]) Applications() *ApplicationStore[K] {
	return &ApplicationStore[K]{db: s.db, conv: s.conv, codec: s.codec}
}

// Authorizations returns an AuthorizationStore
func (s *Store[K]) Authorizations() *AuthorizationStore[K] {
	return &AuthorizationStore[K]{db: s.db, conv: s.conv, codec: s.codec}
}

// Scopes returns a ScopeStore
func (s *Store[K]) Scopes() *ScopeStore[K] {
	return &ScopeStore[K]{db: s.db, conv: s.conv, codec: s.codec}
}

// Tokens returns a TokenStore
func (s *Store[K]) Tokens() *TokenStore[K] {
	return &TokenStore[K]{db: s.db, conv: s.conv, codec: s.codec}
}

// Resolver returns a Resolver with the four default entity models
// registered against this store's instances. Custom entity types embedding
// the default models resolve to the same stores; additional registrations
// may be added by the caller.
func (s *Store[K]) Resolver() *Resolver {
	r := NewResolver()
	r.RegisterStore(model.Application[K]{}, s.Applications())
	r.RegisterStore(model.Authorization[K]{}, s.Authorizations())
	r.RegisterStore(model.Scope[K]{}, s.Scopes())
	r.RegisterStore(model.Token[K]{}, s.Tokens())
	return r
}

// newConcurrencyToken returns a fresh opaque token value.
func newConcurrencyToken() string {
	return uuid.Must(uuid.NewV4()).String()
}

// QueryFunc is a caller-supplied transform over the underlying row query,
// the escape hatch for queries not covered by the named finder methods.
type QueryFunc func(*gorm.DB) *gorm.DB

// likeEscapeChar is used for LIKE predicates instead of the backslash, as
// SQLite has no default escape character and PostgreSQL rejects a
// backslash literal under standard_conforming_strings.
const likeEscapeChar = '|'

// escapeLike replaces LIKE wildcard characters so user-supplied needles
// match literally in coarse substring predicates. Pair with
// "LIKE ? ESCAPE '|'".
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', likeEscapeChar:
			out = append(out, likeEscapeChar)
		}
		out = append(out, s[i])
	}
	return string(out)
}
