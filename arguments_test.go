package oidcstore

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/provenid/oidcstore/model"
)

func assertInvalidArgument(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an invalid-argument error")
	}
	var argErr model.InvalidArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected an InvalidArgumentError, got %T: %v", err, err)
	}
}

// Argument validation happens before any database round-trip, so a
// zero-value store is sufficient for these tests.

func TestApplicationStoreArgumentValidation(t *testing.T) {
	ctx := context.Background()
	s := &ApplicationStore[int64]{conv: Int64Keys{}, codec: NewCodec()}

	if err := s.Create(ctx, nil); err == nil {
		t.Fatal("expected an error for a nil application")
	} else {
		assertInvalidArgument(t, err)
	}
	assertInvalidArgument(t, s.Update(ctx, nil))
	assertInvalidArgument(t, s.Delete(ctx, nil))

	_, err := s.FindByID(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByClientID(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByRedirectURI(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByPostLogoutRedirectURI(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.GetQuery(ctx, nil)
	assertInvalidArgument(t, err)
	_, err = s.ListQuery(ctx, nil)
	assertInvalidArgument(t, err)
	_, err = s.CountQuery(ctx, nil)
	assertInvalidArgument(t, err)

	_, err = s.ClientID(nil)
	assertInvalidArgument(t, err)
	assertInvalidArgument(t, s.SetClientID(nil, "x"))
	_, err = s.RedirectURIs(nil)
	assertInvalidArgument(t, err)
	assertInvalidArgument(t, s.SetRedirectURIs(nil, []string{"https://example.com/cb"}))
	_, err = s.Properties(nil)
	assertInvalidArgument(t, err)
	_, err = s.JSONWebKeySet(nil)
	assertInvalidArgument(t, err)
}

func TestAuthorizationStoreArgumentValidation(t *testing.T) {
	ctx := context.Background()
	s := &AuthorizationStore[int64]{conv: Int64Keys{}, codec: NewCodec()}

	assertInvalidArgument(t, s.Create(ctx, nil))
	assertInvalidArgument(t, s.Update(ctx, nil))
	assertInvalidArgument(t, s.Delete(ctx, nil))

	_, err := s.FindByID(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.Find(ctx, "", "client")
	assertInvalidArgument(t, err)
	_, err = s.Find(ctx, "subject", "")
	assertInvalidArgument(t, err)
	_, err = s.FindWithStatus(ctx, "subject", "client", "")
	assertInvalidArgument(t, err)
	_, err = s.FindWithType(ctx, "subject", "client", "valid", "")
	assertInvalidArgument(t, err)

	_, err = s.Scopes(nil)
	assertInvalidArgument(t, err)
	assertInvalidArgument(t, s.SetScopes(nil, []string{"read"}))
}

func TestScopeStoreArgumentValidation(t *testing.T) {
	ctx := context.Background()
	s := &ScopeStore[int64]{conv: Int64Keys{}, codec: NewCodec()}

	assertInvalidArgument(t, s.Create(ctx, nil))
	assertInvalidArgument(t, s.Update(ctx, nil))
	assertInvalidArgument(t, s.Delete(ctx, nil))

	_, err := s.FindByID(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByName(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByNames(ctx, nil)
	assertInvalidArgument(t, err)
	_, err = s.FindByNames(ctx, []string{"openid", ""})
	assertInvalidArgument(t, err)
	_, err = s.FindByResource(ctx, "")
	assertInvalidArgument(t, err)

	_, err = s.Name(nil)
	assertInvalidArgument(t, err)
	assertInvalidArgument(t, s.SetResources(nil, []string{"https://api.example.com"}))
}

func TestTokenStoreArgumentValidation(t *testing.T) {
	ctx := context.Background()
	s := &TokenStore[int64]{conv: Int64Keys{}, codec: NewCodec()}

	assertInvalidArgument(t, s.Create(ctx, nil))
	assertInvalidArgument(t, s.Update(ctx, nil))
	assertInvalidArgument(t, s.Delete(ctx, nil))

	_, err := s.FindByID(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByReferenceID(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindBySubject(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByApplicationID(ctx, "")
	assertInvalidArgument(t, err)
	_, err = s.FindByAuthorizationID(ctx, "")
	assertInvalidArgument(t, err)

	_, err = s.Payload(nil)
	assertInvalidArgument(t, err)
	assertInvalidArgument(t, s.SetStatus(nil, model.StatusValid))
}

// TestStoreConstructorsRequireCollaborators checks that the per-entity
// store constructors reject missing collaborators
func TestStoreConstructorsRequireCollaborators(t *testing.T) {
	if _, err := NewApplicationStore[int64](nil, Int64Keys{}, NewCodec()); err == nil {
		t.Fatal("expected an error for a nil db")
	}
	if _, err := NewAuthorizationStore[int64](nil, Int64Keys{}, NewCodec()); err == nil {
		t.Fatal("expected an error for a nil db")
	}
	if _, err := NewScopeStore[int64](nil, Int64Keys{}, NewCodec()); err == nil {
		t.Fatal("expected an error for a nil db")
	}
	if _, err := NewTokenStore[int64](nil, Int64Keys{}, NewCodec()); err == nil {
		t.Fatal("expected an error for a nil db")
	}
}
