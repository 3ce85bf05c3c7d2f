package oidcstore

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/fatih/structs"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	tideland "tideland.dev/go/slices"

	"github.com/provenid/oidcstore/model"
)

// ScopeStore provides CRUD, query and field access for Scope entities.
type ScopeStore[K comparable] struct {
	db    *gorm.DB
	conv  KeyConverter[K]
	codec *Codec
}

// NewScopeStore creates a ScopeStore. All collaborators are required.
func NewScopeStore[K comparable](db *gorm.DB, conv KeyConverter[K], codec *Codec) (*ScopeStore[K], error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if conv == nil {
		return nil, errors.New("key converter must not be nil")
	}
	if codec == nil {
		return nil, errors.New("codec must not be nil")
	}
	return &ScopeStore[K]{db: db, conv: conv, codec: codec}, nil
}

// Instantiate returns a new, unpersisted scope with a fresh concurrency
// token.
func (s *ScopeStore[K]) Instantiate() *model.Scope[K] {
	return &model.Scope[K]{ConcurrencyToken: newConcurrencyToken()}
}

// Count returns the total number of scopes.
func (s *ScopeStore[K]) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Scope[K]{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "scopes: count failed")
	}
	return count, nil
}

// CountQuery returns the number of scopes matching a caller-supplied query
// transform.
func (s *ScopeStore[K]) CountQuery(ctx context.Context, query QueryFunc) (int64, error) {
	if query == nil {
		return 0, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var count int64
	if err := query(s.db.WithContext(ctx).Model(&model.Scope[K]{})).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "scopes: count failed")
	}
	return count, nil
}

// FindByID retrieves a scope by its string identifier. Returns (nil, nil)
// when no row matches.
func (s *ScopeStore[K]) FindByID(ctx context.Context, id string) (*model.Scope[K], error) {
	if id == "" {
		return nil, model.InvalidArgumentErrorFmt("id must not be empty")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return nil, errors.Wrap(err, "scopes: invalid id")
	}
	var scope model.Scope[K]
	if err = s.db.WithContext(ctx).Where("id = ?", key).First(&scope).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "scopes: find by id failed")
	}
	return &scope, nil
}

// FindByName retrieves the scope with the given name. Returns (nil, nil)
// when no row matches.
func (s *ScopeStore[K]) FindByName(ctx context.Context, name string) (*model.Scope[K], error) {
	if name == "" {
		return nil, model.InvalidArgumentErrorFmt("name must not be empty")
	}
	var scope model.Scope[K]
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&scope).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "scopes: find by name failed")
	}
	return &scope, nil
}

// FindByNames returns the scopes whose name is in the given set. Every
// name must be non-empty.
func (s *ScopeStore[K]) FindByNames(ctx context.Context, names []string) ([]*model.Scope[K], error) {
	if len(names) == 0 {
		return nil, model.InvalidArgumentErrorFmt("names must not be empty")
	}
	for _, name := range names {
		if name == "" {
			return nil, model.InvalidArgumentErrorFmt("names must not contain empty values")
		}
	}
	var scopes []*model.Scope[K]
	if err := s.db.WithContext(ctx).Where("name IN ?", tideland.Unique(names)).Order("id").
		Find(&scopes).Error; err != nil {
		return nil, errors.Wrap(err, "scopes: find by names failed")
	}
	return scopes, nil
}

// FindByResource returns the scopes whose decoded resource array contains
// resource as an exact element, using the coarse-substring-then-exact
// two-phase filter.
func (s *ScopeStore[K]) FindByResource(ctx context.Context, resource string) ([]*model.Scope[K], error) {
	if resource == "" {
		return nil, model.InvalidArgumentErrorFmt("resource must not be empty")
	}
	pattern := "%" + escapeLike(resource) + "%"
	var candidates []*model.Scope[K]
	err := s.db.WithContext(ctx).
		Where("resources LIKE ? ESCAPE '|'", pattern).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, errors.Wrap(err, "scopes: find by resource failed")
	}
	var out []*model.Scope[K]
	for _, scope := range candidates {
		resources, err := s.codec.decodeArray(nsScopeResources, scope.Resources)
		if err != nil {
			return nil, err
		}
		if slices.Contains(resources, resource) {
			out = append(out, scope)
		}
	}
	return out, nil
}

// List returns scopes ordered by primary key ascending. A non-positive
// count or offset disables the respective bound.
func (s *ScopeStore[K]) List(ctx context.Context, count, offset int) ([]*model.Scope[K], error) {
	q := s.db.WithContext(ctx).Order("id")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if count > 0 {
		q = q.Limit(count)
	}
	var scopes []*model.Scope[K]
	if err := q.Find(&scopes).Error; err != nil {
		return nil, errors.Wrap(err, "scopes: list failed")
	}
	return scopes, nil
}

// GetQuery runs a caller-supplied query transform and returns the first
// matching scope, or (nil, nil) when none matches.
func (s *ScopeStore[K]) GetQuery(ctx context.Context, query QueryFunc) (*model.Scope[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var scope model.Scope[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Scope[K]{})).First(&scope).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "scopes: get failed")
	}
	return &scope, nil
}

// ListQuery runs a caller-supplied query transform and returns all
// matching scopes.
func (s *ScopeStore[K]) ListQuery(ctx context.Context, query QueryFunc) ([]*model.Scope[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var scopes []*model.Scope[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Scope[K]{})).Find(&scopes).Error; err != nil {
		return nil, errors.Wrap(err, "scopes: list failed")
	}
	return scopes, nil
}

// Create inserts a new scope.
func (s *ScopeStore[K]) Create(ctx context.Context, scope *model.Scope[K]) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	if scope.ConcurrencyToken == "" {
		scope.ConcurrencyToken = newConcurrencyToken()
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(scope).Error, "scopes: create failed")
}

// Update persists the full row in a single conditional update matching
// both id and the caller's concurrency token.
func (s *ScopeStore[K]) Update(ctx context.Context, scope *model.Scope[K]) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	previous := scope.ConcurrencyToken
	scope.ConcurrencyToken = newConcurrencyToken()
	res := s.db.WithContext(ctx).
		Model(&model.Scope[K]{}).
		Where("id = ? AND concurrency_token = ?", scope.ID, previous).
		Updates(structs.Map(scope))
	if res.Error != nil {
		scope.ConcurrencyToken = previous
		return errors.Wrap(res.Error, "scopes: update failed")
	}
	if res.RowsAffected == 0 {
		scope.ConcurrencyToken = previous
		return model.ConcurrencyErrorFmt("scope was concurrently modified or deleted")
	}
	return nil
}

// Delete removes the scope in a conditional delete matching both id and
// concurrency token. Scopes have no dependent rows, so there is no
// cascade.
func (s *ScopeStore[K]) Delete(ctx context.Context, scope *model.Scope[K]) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	res := s.db.WithContext(ctx).Where(
		"id = ? AND concurrency_token = ?", scope.ID, scope.ConcurrencyToken,
	).Delete(&model.Scope[K]{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "scopes: delete failed")
	}
	if res.RowsAffected == 0 {
		return model.ConcurrencyErrorFmt("scope was concurrently modified or deleted")
	}
	return nil
}

// ID returns the scope's identifier in its string representation.
func (s *ScopeStore[K]) ID(scope *model.Scope[K]) (string, error) {
	if scope == nil {
		return "", model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	id, _ := s.conv.ToString(scope.ID)
	return id, nil
}

// SetID assigns the scope's identifier from its string representation.
func (s *ScopeStore[K]) SetID(scope *model.Scope[K], id string) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return errors.Wrap(err, "scopes: invalid id")
	}
	scope.ID = key
	return nil
}

// Name returns the scope name.
func (s *ScopeStore[K]) Name(scope *model.Scope[K]) (string, error) {
	if scope == nil {
		return "", model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	return scope.Name, nil
}

// SetName assigns the scope name.
func (s *ScopeStore[K]) SetName(scope *model.Scope[K], name string) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	scope.Name = name
	return nil
}

// DisplayName returns the default display name.
func (s *ScopeStore[K]) DisplayName(scope *model.Scope[K]) (string, error) {
	if scope == nil {
		return "", model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	return scope.DisplayName, nil
}

// SetDisplayName assigns the default display name.
func (s *ScopeStore[K]) SetDisplayName(scope *model.Scope[K], displayName string) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	scope.DisplayName = displayName
	return nil
}

// DisplayNames returns the localized display names, keyed by locale.
func (s *ScopeStore[K]) DisplayNames(scope *model.Scope[K]) (map[string]string, error) {
	if scope == nil {
		return nil, model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	return s.codec.decodeLocaleMap(nsScopeDisplayNames, scope.DisplayNames)
}

// SetDisplayNames assigns the localized display names. An empty map clears
// the column.
func (s *ScopeStore[K]) SetDisplayNames(scope *model.Scope[K], displayNames map[string]string) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	text, err := encodeStringMap(displayNames)
	if err != nil {
		return err
	}
	scope.DisplayNames = text
	return nil
}

// Description returns the default description.
func (s *ScopeStore[K]) Description(scope *model.Scope[K]) (string, error) {
	if scope == nil {
		return "", model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	return scope.Description, nil
}

// SetDescription assigns the default description.
func (s *ScopeStore[K]) SetDescription(scope *model.Scope[K], description string) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	scope.Description = description
	return nil
}

// Descriptions returns the localized descriptions, keyed by locale.
func (s *ScopeStore[K]) Descriptions(scope *model.Scope[K]) (map[string]string, error) {
	if scope == nil {
		return nil, model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	return s.codec.decodeLocaleMap(nsScopeDescriptions, scope.Descriptions)
}

// SetDescriptions assigns the localized descriptions. An empty map clears
// the column.
func (s *ScopeStore[K]) SetDescriptions(scope *model.Scope[K], descriptions map[string]string) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	text, err := encodeStringMap(descriptions)
	if err != nil {
		return err
	}
	scope.Descriptions = text
	return nil
}

// Resources returns the resources covered by the scope.
func (s *ScopeStore[K]) Resources(scope *model.Scope[K]) ([]string, error) {
	if scope == nil {
		return nil, model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	return s.codec.decodeArray(nsScopeResources, scope.Resources)
}

// SetResources assigns the resources covered by the scope. An empty slice
// clears the column.
func (s *ScopeStore[K]) SetResources(scope *model.Scope[K], resources []string) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	text, err := encodeArray(resources)
	if err != nil {
		return err
	}
	scope.Resources = text
	return nil
}

// Properties returns the opaque scope properties. All entries are
// retained, including explicit nulls and empty strings.
func (s *ScopeStore[K]) Properties(scope *model.Scope[K]) (map[string]json.RawMessage, error) {
	if scope == nil {
		return nil, model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	return s.codec.decodeRawMap(nsScopeProperties, scope.Properties)
}

// SetProperties assigns the opaque scope properties. An empty map clears
// the column.
func (s *ScopeStore[K]) SetProperties(scope *model.Scope[K], properties map[string]json.RawMessage) error {
	if scope == nil {
		return model.InvalidArgumentErrorFmt("scope must not be nil")
	}
	text, err := encodeRawMap(properties)
	if err != nil {
		return err
	}
	scope.Properties = text
	return nil
}
