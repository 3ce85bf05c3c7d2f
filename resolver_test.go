package oidcstore

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/provenid/oidcstore/model"
)

type customApplication struct {
	model.Application[int64]
	TenantID string
}

// TestResolverExactMatch checks that a registered entity type resolves to
// its store directly
func TestResolverExactMatch(t *testing.T) {
	r := NewResolver()
	store := &ApplicationStore[int64]{}
	r.RegisterStore(model.Application[int64]{}, store)

	resolved, err := r.StoreFor(&model.Application[int64]{})
	if err != nil {
		t.Fatalf("StoreFor failed: %v", err)
	}
	if resolved != store {
		t.Fatal("resolved store is not the registered instance")
	}
}

// TestResolverEmbeddedBase checks that a custom entity embedding a default
// model resolves to the base model's store
func TestResolverEmbeddedBase(t *testing.T) {
	r := NewResolver()
	store := &ApplicationStore[int64]{}
	r.RegisterStore(model.Application[int64]{}, store)

	resolved, err := StoreForAs[*ApplicationStore[int64]](r, customApplication{})
	if err != nil {
		t.Fatalf("StoreForAs failed: %v", err)
	}
	if resolved != store {
		t.Fatal("resolved store is not the registered instance")
	}

	// Second resolution hits the memoized entry
	resolved, err = StoreForAs[*ApplicationStore[int64]](r, customApplication{})
	if err != nil {
		t.Fatalf("memoized StoreForAs failed: %v", err)
	}
	if resolved != store {
		t.Fatal("memoized resolution returned a different store")
	}
}

// TestResolverCustomRegistrationWins checks that an exact registration for
// a subtype takes precedence over its embedded base
func TestResolverCustomRegistrationWins(t *testing.T) {
	r := NewResolver()
	baseStore := &ApplicationStore[int64]{}
	customStore := &ApplicationStore[int64]{}
	r.RegisterStore(model.Application[int64]{}, baseStore)
	r.RegisterStore(customApplication{}, customStore)

	resolved, err := r.StoreFor(customApplication{})
	if err != nil {
		t.Fatalf("StoreFor failed: %v", err)
	}
	if resolved != customStore {
		t.Fatal("exact registration did not take precedence")
	}
}

// TestResolverUnknownType checks that an unregistered type surfaces a
// configuration error
func TestResolverUnknownType(t *testing.T) {
	r := NewResolver()
	r.RegisterStore(model.Application[int64]{}, &ApplicationStore[int64]{})

	_, err := r.StoreFor(model.Token[int64]{})
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	var confErr model.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected a ConfigurationError, got %T: %v", err, err)
	}
}
