package oidcstore

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/fatih/structs"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/provenid/oidcstore/model"
)

// ApplicationStore provides CRUD, query and field access for Application
// entities.
type ApplicationStore[K comparable] struct {
	db    *gorm.DB
	conv  KeyConverter[K]
	codec *Codec
}

// NewApplicationStore creates an ApplicationStore. All collaborators are
// required.
func NewApplicationStore[K comparable](db *gorm.DB, conv KeyConverter[K], codec *Codec) (*ApplicationStore[K], error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if conv == nil {
		return nil, errors.New("key converter must not be nil")
	}
	if codec == nil {
		return nil, errors.New("codec must not be nil")
	}
	return &ApplicationStore[K]{db: db, conv: conv, codec: codec}, nil
}

// Instantiate returns a new, unpersisted application with a fresh
// concurrency token.
func (s *ApplicationStore[K]) Instantiate() *model.Application[K] {
	return &model.Application[K]{ConcurrencyToken: newConcurrencyToken()}
}

// Count returns the total number of applications.
func (s *ApplicationStore[K]) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Application[K]{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "applications: count failed")
	}
	return count, nil
}

// CountQuery returns the number of applications matching a caller-supplied
// query transform.
func (s *ApplicationStore[K]) CountQuery(ctx context.Context, query QueryFunc) (int64, error) {
	if query == nil {
		return 0, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var count int64
	if err := query(s.db.WithContext(ctx).Model(&model.Application[K]{})).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "applications: count failed")
	}
	return count, nil
}

// FindByID retrieves an application by its string identifier. Returns
// (nil, nil) when no row matches.
func (s *ApplicationStore[K]) FindByID(ctx context.Context, id string) (*model.Application[K], error) {
	if id == "" {
		return nil, model.InvalidArgumentErrorFmt("id must not be empty")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return nil, errors.Wrap(err, "applications: invalid id")
	}
	var app model.Application[K]
	if err = s.db.WithContext(ctx).Where("id = ?", key).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "applications: find by id failed")
	}
	return &app, nil
}

// FindByClientID retrieves the application with the given client
// identifier. Returns (nil, nil) when no row matches.
func (s *ApplicationStore[K]) FindByClientID(ctx context.Context, clientID string) (*model.Application[K], error) {
	if clientID == "" {
		return nil, model.InvalidArgumentErrorFmt("clientID must not be empty")
	}
	var app model.Application[K]
	if err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "applications: find by client id failed")
	}
	return &app, nil
}

// FindByRedirectURI returns the applications whose decoded redirect URI
// array contains uri as an exact element. A coarse substring predicate is
// pushed to the query first; the stored text may contain the needle as
// part of a longer URI, so candidates are re-checked against the decoded
// collection.
func (s *ApplicationStore[K]) FindByRedirectURI(ctx context.Context, uri string) ([]*model.Application[K], error) {
	if uri == "" {
		return nil, model.InvalidArgumentErrorFmt("uri must not be empty")
	}
	return s.findByURIColumn(ctx, "redirect_uris", nsAppRedirectURIs, uri, func(app *model.Application[K]) *string {
		return app.RedirectURIs
	})
}

// FindByPostLogoutRedirectURI returns the applications whose decoded
// post-logout redirect URI array contains uri as an exact element, using
// the same two-phase filter as FindByRedirectURI.
func (s *ApplicationStore[K]) FindByPostLogoutRedirectURI(ctx context.Context, uri string) ([]*model.Application[K], error) {
	if uri == "" {
		return nil, model.InvalidArgumentErrorFmt("uri must not be empty")
	}
	return s.findByURIColumn(ctx, "post_logout_redirect_uris", nsAppPostLogoutRedirectURIs, uri, func(app *model.Application[K]) *string {
		return app.PostLogoutRedirectURIs
	})
}

func (s *ApplicationStore[K]) findByURIColumn(
	ctx context.Context, column, ns, uri string, text func(*model.Application[K]) *string,
) ([]*model.Application[K], error) {
	pattern := "%" + escapeLike(uri) + "%"
	var candidates []*model.Application[K]
	err := s.db.WithContext(ctx).
		Where(column+" LIKE ? ESCAPE '|'", pattern).
		Order("id").
		Find(&candidates).Error
	if err != nil {
		return nil, errors.Wrap(err, "applications: find by uri failed")
	}
	var out []*model.Application[K]
	for _, app := range candidates {
		uris, err := s.codec.decodeArray(ns, text(app))
		if err != nil {
			return nil, err
		}
		if slices.Contains(uris, uri) {
			out = append(out, app)
		}
	}
	return out, nil
}

// List returns applications ordered by primary key ascending. A
// non-positive count or offset disables the respective bound.
func (s *ApplicationStore[K]) List(ctx context.Context, count, offset int) ([]*model.Application[K], error) {
	q := s.db.WithContext(ctx).Order("id")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if count > 0 {
		q = q.Limit(count)
	}
	var apps []*model.Application[K]
	if err := q.Find(&apps).Error; err != nil {
		return nil, errors.Wrap(err, "applications: list failed")
	}
	return apps, nil
}

// GetQuery runs a caller-supplied query transform and returns the first
// matching application, or (nil, nil) when none matches.
func (s *ApplicationStore[K]) GetQuery(ctx context.Context, query QueryFunc) (*model.Application[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var app model.Application[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Application[K]{})).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "applications: get failed")
	}
	return &app, nil
}

// ListQuery runs a caller-supplied query transform and returns all
// matching applications.
func (s *ApplicationStore[K]) ListQuery(ctx context.Context, query QueryFunc) ([]*model.Application[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var apps []*model.Application[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Application[K]{})).Find(&apps).Error; err != nil {
		return nil, errors.Wrap(err, "applications: list failed")
	}
	return apps, nil
}

// Create inserts a new application. Auto-generated keys are backfilled
// into the entity; pre-set keys are inserted as-is.
func (s *ApplicationStore[K]) Create(ctx context.Context, application *model.Application[K]) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	if application.ConcurrencyToken == "" {
		application.ConcurrencyToken = newConcurrencyToken()
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(application).Error, "applications: create failed")
}

// Update persists the full row in a single conditional update matching
// both id and the caller's concurrency token. A fresh token is assigned on
// success; if no row matched, the token is restored and a concurrency
// error is returned.
func (s *ApplicationStore[K]) Update(ctx context.Context, application *model.Application[K]) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	previous := application.ConcurrencyToken
	application.ConcurrencyToken = newConcurrencyToken()
	res := s.db.WithContext(ctx).
		Model(&model.Application[K]{}).
		Where("id = ? AND concurrency_token = ?", application.ID, previous).
		Updates(structs.Map(application))
	if res.Error != nil {
		application.ConcurrencyToken = previous
		return errors.Wrap(res.Error, "applications: update failed")
	}
	if res.RowsAffected == 0 {
		application.ConcurrencyToken = previous
		return model.ConcurrencyErrorFmt("application was concurrently modified or deleted")
	}
	return nil
}

// Delete removes the application in a conditional delete matching both id
// and concurrency token, then cascades to the authorizations and tokens
// referencing it. The primary delete and the cascade run in one
// transaction.
func (s *ApplicationStore[K]) Delete(ctx context.Context, application *model.Application[K]) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			res := tx.Where(
				"id = ? AND concurrency_token = ?", application.ID, application.ConcurrencyToken,
			).Delete(&model.Application[K]{})
			if res.Error != nil {
				return errors.Wrap(res.Error, "applications: delete failed")
			}
			if res.RowsAffected == 0 {
				return model.ConcurrencyErrorFmt("application was concurrently modified or deleted")
			}
			if err := tx.Where("application_id = ?", application.ID).
				Delete(&model.Authorization[K]{}).Error; err != nil {
				return errors.Wrap(err, "applications: cascade delete of authorizations failed")
			}
			if err := tx.Where("application_id = ?", application.ID).
				Delete(&model.Token[K]{}).Error; err != nil {
				return errors.Wrap(err, "applications: cascade delete of tokens failed")
			}
			return nil
		},
	)
}

// ID returns the application's identifier in its string representation,
// empty for an unassigned key.
func (s *ApplicationStore[K]) ID(application *model.Application[K]) (string, error) {
	if application == nil {
		return "", model.InvalidArgumentErrorFmt("application must not be nil")
	}
	id, _ := s.conv.ToString(application.ID)
	return id, nil
}

// SetID assigns the application's identifier from its string
// representation.
func (s *ApplicationStore[K]) SetID(application *model.Application[K], id string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return errors.Wrap(err, "applications: invalid id")
	}
	application.ID = key
	return nil
}

// ClientID returns the client identifier.
func (s *ApplicationStore[K]) ClientID(application *model.Application[K]) (string, error) {
	if application == nil {
		return "", model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return application.ClientID, nil
}

// SetClientID assigns the client identifier verbatim, including empty
// values.
func (s *ApplicationStore[K]) SetClientID(application *model.Application[K], clientID string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	application.ClientID = clientID
	return nil
}

// ClientSecret returns the client secret.
func (s *ApplicationStore[K]) ClientSecret(application *model.Application[K]) (string, error) {
	if application == nil {
		return "", model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return application.ClientSecret, nil
}

// SetClientSecret assigns the client secret.
func (s *ApplicationStore[K]) SetClientSecret(application *model.Application[K], secret string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	application.ClientSecret = secret
	return nil
}

// ClientType returns the client type (e.g. confidential or public).
func (s *ApplicationStore[K]) ClientType(application *model.Application[K]) (string, error) {
	if application == nil {
		return "", model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return application.ClientType, nil
}

// SetClientType assigns the client type.
func (s *ApplicationStore[K]) SetClientType(application *model.Application[K], clientType string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	application.ClientType = clientType
	return nil
}

// ApplicationType returns the application type (e.g. web or native).
func (s *ApplicationStore[K]) ApplicationType(application *model.Application[K]) (string, error) {
	if application == nil {
		return "", model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return application.ApplicationType, nil
}

// SetApplicationType assigns the application type.
func (s *ApplicationStore[K]) SetApplicationType(application *model.Application[K], applicationType string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	application.ApplicationType = applicationType
	return nil
}

// ConsentType returns the consent type.
func (s *ApplicationStore[K]) ConsentType(application *model.Application[K]) (string, error) {
	if application == nil {
		return "", model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return application.ConsentType, nil
}

// SetConsentType assigns the consent type.
func (s *ApplicationStore[K]) SetConsentType(application *model.Application[K], consentType string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	application.ConsentType = consentType
	return nil
}

// DisplayName returns the default display name.
func (s *ApplicationStore[K]) DisplayName(application *model.Application[K]) (string, error) {
	if application == nil {
		return "", model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return application.DisplayName, nil
}

// SetDisplayName assigns the default display name.
func (s *ApplicationStore[K]) SetDisplayName(application *model.Application[K], displayName string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	application.DisplayName = displayName
	return nil
}

// DisplayNames returns the localized display names, keyed by locale.
func (s *ApplicationStore[K]) DisplayNames(application *model.Application[K]) (map[string]string, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.codec.decodeLocaleMap(nsAppDisplayNames, application.DisplayNames)
}

// SetDisplayNames assigns the localized display names. An empty map clears
// the column.
func (s *ApplicationStore[K]) SetDisplayNames(application *model.Application[K], displayNames map[string]string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	text, err := encodeStringMap(displayNames)
	if err != nil {
		return err
	}
	application.DisplayNames = text
	return nil
}

// Permissions returns the granted permissions.
func (s *ApplicationStore[K]) Permissions(application *model.Application[K]) ([]string, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.codec.decodeArray(nsAppPermissions, application.Permissions)
}

// SetPermissions assigns the granted permissions. An empty slice clears
// the column.
func (s *ApplicationStore[K]) SetPermissions(application *model.Application[K], permissions []string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	text, err := encodeArray(permissions)
	if err != nil {
		return err
	}
	application.Permissions = text
	return nil
}

// RedirectURIs returns the registered redirect URIs.
func (s *ApplicationStore[K]) RedirectURIs(application *model.Application[K]) ([]string, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.codec.decodeArray(nsAppRedirectURIs, application.RedirectURIs)
}

// SetRedirectURIs assigns the registered redirect URIs. An empty slice
// clears the column.
func (s *ApplicationStore[K]) SetRedirectURIs(application *model.Application[K], uris []string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	text, err := encodeArray(uris)
	if err != nil {
		return err
	}
	application.RedirectURIs = text
	return nil
}

// PostLogoutRedirectURIs returns the registered post-logout redirect URIs.
func (s *ApplicationStore[K]) PostLogoutRedirectURIs(application *model.Application[K]) ([]string, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.codec.decodeArray(nsAppPostLogoutRedirectURIs, application.PostLogoutRedirectURIs)
}

// SetPostLogoutRedirectURIs assigns the registered post-logout redirect
// URIs. An empty slice clears the column.
func (s *ApplicationStore[K]) SetPostLogoutRedirectURIs(application *model.Application[K], uris []string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	text, err := encodeArray(uris)
	if err != nil {
		return err
	}
	application.PostLogoutRedirectURIs = text
	return nil
}

// Requirements returns the enforced requirements.
func (s *ApplicationStore[K]) Requirements(application *model.Application[K]) ([]string, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.codec.decodeArray(nsAppRequirements, application.Requirements)
}

// SetRequirements assigns the enforced requirements. An empty slice clears
// the column.
func (s *ApplicationStore[K]) SetRequirements(application *model.Application[K], requirements []string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	text, err := encodeArray(requirements)
	if err != nil {
		return err
	}
	application.Requirements = text
	return nil
}

// Properties returns the opaque application properties. All entries are
// retained, including explicit nulls and empty strings.
func (s *ApplicationStore[K]) Properties(application *model.Application[K]) (map[string]json.RawMessage, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.codec.decodeRawMap(nsAppProperties, application.Properties)
}

// SetProperties assigns the opaque application properties. An empty map
// clears the column.
func (s *ApplicationStore[K]) SetProperties(application *model.Application[K], properties map[string]json.RawMessage) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	text, err := encodeRawMap(properties)
	if err != nil {
		return err
	}
	application.Properties = text
	return nil
}

// Settings returns the application settings.
func (s *ApplicationStore[K]) Settings(application *model.Application[K]) (map[string]string, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	return s.codec.decodeStringMap(nsAppSettings, application.Settings)
}

// SetSettings assigns the application settings. An empty map clears the
// column.
func (s *ApplicationStore[K]) SetSettings(application *model.Application[K], settings map[string]string) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	text, err := encodeStringMap(settings)
	if err != nil {
		return err
	}
	application.Settings = text
	return nil
}

// JSONWebKeySet returns the application's JSON Web Key Set, or (nil, nil)
// when none is stored.
func (s *ApplicationStore[K]) JSONWebKeySet(application *model.Application[K]) (jwk.Set, error) {
	if application == nil {
		return nil, model.InvalidArgumentErrorFmt("application must not be nil")
	}
	if application.JSONWebKeySet == nil || *application.JSONWebKeySet == "" {
		return nil, nil
	}
	set, err := jwk.Parse([]byte(*application.JSONWebKeySet))
	if err != nil {
		return nil, errors.Wrap(err, "applications: malformed json_web_key_set")
	}
	return set, nil
}

// SetJSONWebKeySet assigns the application's JSON Web Key Set. A nil set
// clears the column.
func (s *ApplicationStore[K]) SetJSONWebKeySet(application *model.Application[K], set jwk.Set) error {
	if application == nil {
		return model.InvalidArgumentErrorFmt("application must not be nil")
	}
	if set == nil {
		application.JSONWebKeySet = nil
		return nil
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return errors.Wrap(err, "applications: cannot encode json_web_key_set")
	}
	text := string(raw)
	application.JSONWebKeySet = &text
	return nil
}
