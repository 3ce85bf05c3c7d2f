package oidcstore

import (
	"context"
	"encoding/json"
	"time"

	arrays "github.com/adam-hanna/arrayOperations"
	"github.com/fatih/structs"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"tideland.dev/go/slices"

	"github.com/provenid/oidcstore/model"
)

// AuthorizationStore provides CRUD, query and field access for
// Authorization entities.
type AuthorizationStore[K comparable] struct {
	db    *gorm.DB
	conv  KeyConverter[K]
	codec *Codec
}

// NewAuthorizationStore creates an AuthorizationStore. All collaborators
// are required.
func NewAuthorizationStore[K comparable](db *gorm.DB, conv KeyConverter[K], codec *Codec) (*AuthorizationStore[K], error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if conv == nil {
		return nil, errors.New("key converter must not be nil")
	}
	if codec == nil {
		return nil, errors.New("codec must not be nil")
	}
	return &AuthorizationStore[K]{db: db, conv: conv, codec: codec}, nil
}

// Instantiate returns a new, unpersisted authorization with a fresh
// concurrency token.
func (s *AuthorizationStore[K]) Instantiate() *model.Authorization[K] {
	return &model.Authorization[K]{ConcurrencyToken: newConcurrencyToken()}
}

// Count returns the total number of authorizations.
func (s *AuthorizationStore[K]) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Authorization[K]{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "authorizations: count failed")
	}
	return count, nil
}

// CountQuery returns the number of authorizations matching a
// caller-supplied query transform.
func (s *AuthorizationStore[K]) CountQuery(ctx context.Context, query QueryFunc) (int64, error) {
	if query == nil {
		return 0, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var count int64
	if err := query(s.db.WithContext(ctx).Model(&model.Authorization[K]{})).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "authorizations: count failed")
	}
	return count, nil
}

// FindByID retrieves an authorization by its string identifier. Returns
// (nil, nil) when no row matches.
func (s *AuthorizationStore[K]) FindByID(ctx context.Context, id string) (*model.Authorization[K], error) {
	if id == "" {
		return nil, model.InvalidArgumentErrorFmt("id must not be empty")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return nil, errors.Wrap(err, "authorizations: invalid id")
	}
	var authorization model.Authorization[K]
	if err = s.db.WithContext(ctx).Where("id = ?", key).First(&authorization).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "authorizations: find by id failed")
	}
	return &authorization, nil
}

// FindByApplicationID returns the authorizations associated with an
// application.
func (s *AuthorizationStore[K]) FindByApplicationID(ctx context.Context, applicationID string) ([]*model.Authorization[K], error) {
	if applicationID == "" {
		return nil, model.InvalidArgumentErrorFmt("applicationID must not be empty")
	}
	key, err := s.conv.FromString(applicationID)
	if err != nil {
		return nil, errors.Wrap(err, "authorizations: invalid application id")
	}
	var authorizations []*model.Authorization[K]
	if err = s.db.WithContext(ctx).Where("application_id = ?", key).Order("id").
		Find(&authorizations).Error; err != nil {
		return nil, errors.Wrap(err, "authorizations: find by application failed")
	}
	return authorizations, nil
}

// FindBySubject returns the authorizations belonging to a subject.
func (s *AuthorizationStore[K]) FindBySubject(ctx context.Context, subject string) ([]*model.Authorization[K], error) {
	if subject == "" {
		return nil, model.InvalidArgumentErrorFmt("subject must not be empty")
	}
	var authorizations []*model.Authorization[K]
	if err := s.db.WithContext(ctx).Where("subject = ?", subject).Order("id").
		Find(&authorizations).Error; err != nil {
		return nil, errors.Wrap(err, "authorizations: find by subject failed")
	}
	return authorizations, nil
}

// Find returns the authorizations matching both subject and application.
func (s *AuthorizationStore[K]) Find(ctx context.Context, subject, client string) ([]*model.Authorization[K], error) {
	if subject == "" {
		return nil, model.InvalidArgumentErrorFmt("subject must not be empty")
	}
	if client == "" {
		return nil, model.InvalidArgumentErrorFmt("client must not be empty")
	}
	return s.find(ctx, subject, client, nil, nil)
}

// FindWithStatus returns the authorizations matching subject, application
// and status.
func (s *AuthorizationStore[K]) FindWithStatus(ctx context.Context, subject, client, status string) ([]*model.Authorization[K], error) {
	if subject == "" {
		return nil, model.InvalidArgumentErrorFmt("subject must not be empty")
	}
	if client == "" {
		return nil, model.InvalidArgumentErrorFmt("client must not be empty")
	}
	if status == "" {
		return nil, model.InvalidArgumentErrorFmt("status must not be empty")
	}
	return s.find(ctx, subject, client, &status, nil)
}

// FindWithType returns the authorizations matching subject, application,
// status and type.
func (s *AuthorizationStore[K]) FindWithType(ctx context.Context, subject, client, status, authorizationType string) ([]*model.Authorization[K], error) {
	if subject == "" {
		return nil, model.InvalidArgumentErrorFmt("subject must not be empty")
	}
	if client == "" {
		return nil, model.InvalidArgumentErrorFmt("client must not be empty")
	}
	if status == "" {
		return nil, model.InvalidArgumentErrorFmt("status must not be empty")
	}
	if authorizationType == "" {
		return nil, model.InvalidArgumentErrorFmt("authorizationType must not be empty")
	}
	return s.find(ctx, subject, client, &status, &authorizationType)
}

// FindWithScopes returns the authorizations matching subject, application,
// status and type whose decoded scope set is a superset of the requested
// scopes. The superset check runs in application code after the SQL-level
// filter, as it is not expressible as a simple column predicate.
func (s *AuthorizationStore[K]) FindWithScopes(
	ctx context.Context, subject, client, status, authorizationType string, scopes []string,
) ([]*model.Authorization[K], error) {
	candidates, err := s.FindWithType(ctx, subject, client, status, authorizationType)
	if err != nil {
		return nil, err
	}
	requested := slices.Unique(scopes)
	var out []*model.Authorization[K]
	for _, authorization := range candidates {
		granted, err := s.codec.decodeArray(nsAuthorizationScopes, authorization.Scopes)
		if err != nil {
			return nil, err
		}
		if len(arrays.Intersect(granted, requested)) == len(requested) {
			out = append(out, authorization)
		}
	}
	return out, nil
}

func (s *AuthorizationStore[K]) find(
	ctx context.Context, subject, client string, status, authorizationType *string,
) ([]*model.Authorization[K], error) {
	key, err := s.conv.FromString(client)
	if err != nil {
		return nil, errors.Wrap(err, "authorizations: invalid client id")
	}
	q := s.db.WithContext(ctx).
		Where("subject = ?", subject).
		Where("application_id = ?", key)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if authorizationType != nil {
		q = q.Where("type = ?", *authorizationType)
	}
	var authorizations []*model.Authorization[K]
	if err = q.Order("id").Find(&authorizations).Error; err != nil {
		return nil, errors.Wrap(err, "authorizations: find failed")
	}
	return authorizations, nil
}

// List returns authorizations ordered by primary key ascending. A
// non-positive count or offset disables the respective bound.
func (s *AuthorizationStore[K]) List(ctx context.Context, count, offset int) ([]*model.Authorization[K], error) {
	q := s.db.WithContext(ctx).Order("id")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if count > 0 {
		q = q.Limit(count)
	}
	var authorizations []*model.Authorization[K]
	if err := q.Find(&authorizations).Error; err != nil {
		return nil, errors.Wrap(err, "authorizations: list failed")
	}
	return authorizations, nil
}

// GetQuery runs a caller-supplied query transform and returns the first
// matching authorization, or (nil, nil) when none matches.
func (s *AuthorizationStore[K]) GetQuery(ctx context.Context, query QueryFunc) (*model.Authorization[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var authorization model.Authorization[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Authorization[K]{})).First(&authorization).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "authorizations: get failed")
	}
	return &authorization, nil
}

// ListQuery runs a caller-supplied query transform and returns all
// matching authorizations.
func (s *AuthorizationStore[K]) ListQuery(ctx context.Context, query QueryFunc) ([]*model.Authorization[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var authorizations []*model.Authorization[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Authorization[K]{})).Find(&authorizations).Error; err != nil {
		return nil, errors.Wrap(err, "authorizations: list failed")
	}
	return authorizations, nil
}

// Create inserts a new authorization.
func (s *AuthorizationStore[K]) Create(ctx context.Context, authorization *model.Authorization[K]) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	if authorization.ConcurrencyToken == "" {
		authorization.ConcurrencyToken = newConcurrencyToken()
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(authorization).Error, "authorizations: create failed")
}

// Update persists the full row in a single conditional update matching
// both id and the caller's concurrency token.
func (s *AuthorizationStore[K]) Update(ctx context.Context, authorization *model.Authorization[K]) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	previous := authorization.ConcurrencyToken
	authorization.ConcurrencyToken = newConcurrencyToken()
	res := s.db.WithContext(ctx).
		Model(&model.Authorization[K]{}).
		Where("id = ? AND concurrency_token = ?", authorization.ID, previous).
		Updates(structs.Map(authorization))
	if res.Error != nil {
		authorization.ConcurrencyToken = previous
		return errors.Wrap(res.Error, "authorizations: update failed")
	}
	if res.RowsAffected == 0 {
		authorization.ConcurrencyToken = previous
		return model.ConcurrencyErrorFmt("authorization was concurrently modified or deleted")
	}
	return nil
}

// Delete removes the authorization in a conditional delete matching both
// id and concurrency token, then cascades to the tokens referencing it.
func (s *AuthorizationStore[K]) Delete(ctx context.Context, authorization *model.Authorization[K]) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	return s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			res := tx.Where(
				"id = ? AND concurrency_token = ?", authorization.ID, authorization.ConcurrencyToken,
			).Delete(&model.Authorization[K]{})
			if res.Error != nil {
				return errors.Wrap(res.Error, "authorizations: delete failed")
			}
			if res.RowsAffected == 0 {
				return model.ConcurrencyErrorFmt("authorization was concurrently modified or deleted")
			}
			if err := tx.Where("authorization_id = ?", authorization.ID).
				Delete(&model.Token[K]{}).Error; err != nil {
				return errors.Wrap(err, "authorizations: cascade delete of tokens failed")
			}
			return nil
		},
	)
}

// Prune removes authorizations created before the threshold that are no
// longer useful: any non-valid authorization, and ad-hoc authorizations
// without an associated token. Returns the number of rows removed.
func (s *AuthorizationStore[K]) Prune(ctx context.Context, before time.Time) (int64, error) {
	authTable := model.AuthorizationsTable
	tokenTable := model.TokensTable
	var pruned int64
	err := s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			var ids []K
			err := tx.Model(&model.Authorization[K]{}).
				Joins("LEFT JOIN "+tokenTable+" ON "+tokenTable+".authorization_id = "+authTable+".id").
				Where(authTable+".creation_date < ?", before).
				Where(
					"("+authTable+".status <> ? OR ("+authTable+".type = ? AND "+tokenTable+".id IS NULL))",
					model.StatusValid, model.AuthorizationTypeAdHoc,
				).
				Distinct().
				Pluck(authTable+".id", &ids).Error
			if err != nil {
				return errors.Wrap(err, "authorizations: prune query failed")
			}
			if len(ids) == 0 {
				return nil
			}
			res := tx.Where("id IN ?", ids).Delete(&model.Authorization[K]{})
			if res.Error != nil {
				return errors.Wrap(res.Error, "authorizations: prune failed")
			}
			pruned = res.RowsAffected
			return nil
		},
	)
	return pruned, err
}

// ID returns the authorization's identifier in its string representation.
func (s *AuthorizationStore[K]) ID(authorization *model.Authorization[K]) (string, error) {
	if authorization == nil {
		return "", model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	id, _ := s.conv.ToString(authorization.ID)
	return id, nil
}

// SetID assigns the authorization's identifier from its string
// representation.
func (s *AuthorizationStore[K]) SetID(authorization *model.Authorization[K], id string) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return errors.Wrap(err, "authorizations: invalid id")
	}
	authorization.ID = key
	return nil
}

// ApplicationID returns the owning application's identifier, empty when
// the authorization is not attached to an application.
func (s *AuthorizationStore[K]) ApplicationID(authorization *model.Authorization[K]) (string, error) {
	if authorization == nil {
		return "", model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	if authorization.ApplicationID == nil {
		return "", nil
	}
	id, _ := s.conv.ToString(*authorization.ApplicationID)
	return id, nil
}

// SetApplicationID assigns the owning application's identifier. An empty
// value detaches the authorization.
func (s *AuthorizationStore[K]) SetApplicationID(authorization *model.Authorization[K], applicationID string) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	if applicationID == "" {
		authorization.ApplicationID = nil
		return nil
	}
	key, err := s.conv.FromString(applicationID)
	if err != nil {
		return errors.Wrap(err, "authorizations: invalid application id")
	}
	authorization.ApplicationID = &key
	return nil
}

// CreationDate returns the creation timestamp.
func (s *AuthorizationStore[K]) CreationDate(authorization *model.Authorization[K]) (*time.Time, error) {
	if authorization == nil {
		return nil, model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	return authorization.CreationDate, nil
}

// SetCreationDate assigns the creation timestamp.
func (s *AuthorizationStore[K]) SetCreationDate(authorization *model.Authorization[K], date *time.Time) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	authorization.CreationDate = date
	return nil
}

// Properties returns the opaque authorization properties. All entries are
// retained, including explicit nulls and empty strings.
func (s *AuthorizationStore[K]) Properties(authorization *model.Authorization[K]) (map[string]json.RawMessage, error) {
	if authorization == nil {
		return nil, model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	return s.codec.decodeRawMap(nsAuthorizationProperties, authorization.Properties)
}

// SetProperties assigns the opaque authorization properties. An empty map
// clears the column.
func (s *AuthorizationStore[K]) SetProperties(authorization *model.Authorization[K], properties map[string]json.RawMessage) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	text, err := encodeRawMap(properties)
	if err != nil {
		return err
	}
	authorization.Properties = text
	return nil
}

// Scopes returns the granted scopes.
func (s *AuthorizationStore[K]) Scopes(authorization *model.Authorization[K]) ([]string, error) {
	if authorization == nil {
		return nil, model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	return s.codec.decodeArray(nsAuthorizationScopes, authorization.Scopes)
}

// SetScopes assigns the granted scopes. An empty slice clears the column.
func (s *AuthorizationStore[K]) SetScopes(authorization *model.Authorization[K], scopes []string) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	text, err := encodeArray(scopes)
	if err != nil {
		return err
	}
	authorization.Scopes = text
	return nil
}

// Status returns the authorization status.
func (s *AuthorizationStore[K]) Status(authorization *model.Authorization[K]) (string, error) {
	if authorization == nil {
		return "", model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	return authorization.Status, nil
}

// SetStatus assigns the authorization status.
func (s *AuthorizationStore[K]) SetStatus(authorization *model.Authorization[K], status string) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	authorization.Status = status
	return nil
}

// Subject returns the subject.
func (s *AuthorizationStore[K]) Subject(authorization *model.Authorization[K]) (string, error) {
	if authorization == nil {
		return "", model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	return authorization.Subject, nil
}

// SetSubject assigns the subject.
func (s *AuthorizationStore[K]) SetSubject(authorization *model.Authorization[K], subject string) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	authorization.Subject = subject
	return nil
}

// Type returns the authorization type (ad-hoc or permanent).
func (s *AuthorizationStore[K]) Type(authorization *model.Authorization[K]) (string, error) {
	if authorization == nil {
		return "", model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	return authorization.Type, nil
}

// SetType assigns the authorization type.
func (s *AuthorizationStore[K]) SetType(authorization *model.Authorization[K], authorizationType string) error {
	if authorization == nil {
		return model.InvalidArgumentErrorFmt("authorization must not be nil")
	}
	authorization.Type = authorizationType
	return nil
}
