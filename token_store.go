package oidcstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fatih/structs"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/provenid/oidcstore/model"
)

// pruneBatchSize bounds the cost of a single token pruning pass. Callers
// are expected to invoke Prune repeatedly until it reports zero rows.
const pruneBatchSize = 1000

// TokenStore provides CRUD, query and field access for Token entities.
type TokenStore[K comparable] struct {
	db    *gorm.DB
	conv  KeyConverter[K]
	codec *Codec
}

// NewTokenStore creates a TokenStore. All collaborators are required.
func NewTokenStore[K comparable](db *gorm.DB, conv KeyConverter[K], codec *Codec) (*TokenStore[K], error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if conv == nil {
		return nil, errors.New("key converter must not be nil")
	}
	if codec == nil {
		return nil, errors.New("codec must not be nil")
	}
	return &TokenStore[K]{db: db, conv: conv, codec: codec}, nil
}

// Instantiate returns a new, unpersisted token with a fresh concurrency
// token.
func (s *TokenStore[K]) Instantiate() *model.Token[K] {
	return &model.Token[K]{ConcurrencyToken: newConcurrencyToken()}
}

// Count returns the total number of tokens.
func (s *TokenStore[K]) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Token[K]{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "tokens: count failed")
	}
	return count, nil
}

// CountQuery returns the number of tokens matching a caller-supplied query
// transform.
func (s *TokenStore[K]) CountQuery(ctx context.Context, query QueryFunc) (int64, error) {
	if query == nil {
		return 0, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var count int64
	if err := query(s.db.WithContext(ctx).Model(&model.Token[K]{})).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "tokens: count failed")
	}
	return count, nil
}

// FindByID retrieves a token by its string identifier. Returns (nil, nil)
// when no row matches.
func (s *TokenStore[K]) FindByID(ctx context.Context, id string) (*model.Token[K], error) {
	if id == "" {
		return nil, model.InvalidArgumentErrorFmt("id must not be empty")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return nil, errors.Wrap(err, "tokens: invalid id")
	}
	var token model.Token[K]
	if err = s.db.WithContext(ctx).Where("id = ?", key).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "tokens: find by id failed")
	}
	return &token, nil
}

// FindByReferenceID retrieves the token with the given reference
// identifier. Returns (nil, nil) when no row matches.
func (s *TokenStore[K]) FindByReferenceID(ctx context.Context, referenceID string) (*model.Token[K], error) {
	if referenceID == "" {
		return nil, model.InvalidArgumentErrorFmt("referenceID must not be empty")
	}
	var token model.Token[K]
	if err := s.db.WithContext(ctx).Where("reference_id = ?", referenceID).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "tokens: find by reference id failed")
	}
	return &token, nil
}

// FindBySubject returns the tokens belonging to a subject.
func (s *TokenStore[K]) FindBySubject(ctx context.Context, subject string) ([]*model.Token[K], error) {
	if subject == "" {
		return nil, model.InvalidArgumentErrorFmt("subject must not be empty")
	}
	var tokens []*model.Token[K]
	if err := s.db.WithContext(ctx).Where("subject = ?", subject).Order("id").
		Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "tokens: find by subject failed")
	}
	return tokens, nil
}

// FindByApplicationID returns the tokens associated with an application.
func (s *TokenStore[K]) FindByApplicationID(ctx context.Context, applicationID string) ([]*model.Token[K], error) {
	if applicationID == "" {
		return nil, model.InvalidArgumentErrorFmt("applicationID must not be empty")
	}
	key, err := s.conv.FromString(applicationID)
	if err != nil {
		return nil, errors.Wrap(err, "tokens: invalid application id")
	}
	var tokens []*model.Token[K]
	if err = s.db.WithContext(ctx).Where("application_id = ?", key).Order("id").
		Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "tokens: find by application failed")
	}
	return tokens, nil
}

// FindByAuthorizationID returns the tokens associated with an
// authorization.
func (s *TokenStore[K]) FindByAuthorizationID(ctx context.Context, authorizationID string) ([]*model.Token[K], error) {
	if authorizationID == "" {
		return nil, model.InvalidArgumentErrorFmt("authorizationID must not be empty")
	}
	key, err := s.conv.FromString(authorizationID)
	if err != nil {
		return nil, errors.Wrap(err, "tokens: invalid authorization id")
	}
	var tokens []*model.Token[K]
	if err = s.db.WithContext(ctx).Where("authorization_id = ?", key).Order("id").
		Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "tokens: find by authorization failed")
	}
	return tokens, nil
}

// Find returns the tokens matching both subject and application.
func (s *TokenStore[K]) Find(ctx context.Context, subject, client string) ([]*model.Token[K], error) {
	if subject == "" {
		return nil, model.InvalidArgumentErrorFmt("subject must not be empty")
	}
	if client == "" {
		return nil, model.InvalidArgumentErrorFmt("client must not be empty")
	}
	return s.find(ctx, subject, client, nil, nil)
}

// FindWithStatus returns the tokens matching subject, application and
// status.
func (s *TokenStore[K]) FindWithStatus(ctx context.Context, subject, client, status string) ([]*model.Token[K], error) {
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

// FindWithType returns the tokens matching subject, application, status
// and type.
func (s *TokenStore[K]) FindWithType(ctx context.Context, subject, client, status, tokenType string) ([]*model.Token[K], error) {
	if subject == "" {
		return nil, model.InvalidArgumentErrorFmt("subject must not be empty")
	}
	if client == "" {
		return nil, model.InvalidArgumentErrorFmt("client must not be empty")
	}
	if status == "" {
		return nil, model.InvalidArgumentErrorFmt("status must not be empty")
	}
	if tokenType == "" {
		return nil, model.InvalidArgumentErrorFmt("tokenType must not be empty")
	}
	return s.find(ctx, subject, client, &status, &tokenType)
}

func (s *TokenStore[K]) find(
	ctx context.Context, subject, client string, status, tokenType *string,
) ([]*model.Token[K], error) {
	key, err := s.conv.FromString(client)
	if err != nil {
		return nil, errors.Wrap(err, "tokens: invalid client id")
	}
	q := s.db.WithContext(ctx).
		Where("subject = ?", subject).
		Where("application_id = ?", key)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if tokenType != nil {
		q = q.Where("type = ?", *tokenType)
	}
	var tokens []*model.Token[K]
	if err = q.Order("id").Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "tokens: find failed")
	}
	return tokens, nil
}

// List returns tokens ordered by primary key ascending. A non-positive
// count or offset disables the respective bound.
func (s *TokenStore[K]) List(ctx context.Context, count, offset int) ([]*model.Token[K], error) {
	q := s.db.WithContext(ctx).Order("id")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if count > 0 {
		q = q.Limit(count)
	}
	var tokens []*model.Token[K]
	if err := q.Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "tokens: list failed")
	}
	return tokens, nil
}

// GetQuery runs a caller-supplied query transform and returns the first
// matching token, or (nil, nil) when none matches.
func (s *TokenStore[K]) GetQuery(ctx context.Context, query QueryFunc) (*model.Token[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var token model.Token[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Token[K]{})).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "tokens: get failed")
	}
	return &token, nil
}

// ListQuery runs a caller-supplied query transform and returns all
// matching tokens.
func (s *TokenStore[K]) ListQuery(ctx context.Context, query QueryFunc) ([]*model.Token[K], error) {
	if query == nil {
		return nil, model.InvalidArgumentErrorFmt("query must not be nil")
	}
	var tokens []*model.Token[K]
	if err := query(s.db.WithContext(ctx).Model(&model.Token[K]{})).Find(&tokens).Error; err != nil {
		return nil, errors.Wrap(err, "tokens: list failed")
	}
	return tokens, nil
}

// Create inserts a new token.
func (s *TokenStore[K]) Create(ctx context.Context, token *model.Token[K]) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	if token.ConcurrencyToken == "" {
		token.ConcurrencyToken = newConcurrencyToken()
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(token).Error, "tokens: create failed")
}

// Update persists the full row in a single conditional update matching
// both id and the caller's concurrency token.
func (s *TokenStore[K]) Update(ctx context.Context, token *model.Token[K]) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	previous := token.ConcurrencyToken
	token.ConcurrencyToken = newConcurrencyToken()
	res := s.db.WithContext(ctx).
		Model(&model.Token[K]{}).
		Where("id = ? AND concurrency_token = ?", token.ID, previous).
		Updates(structs.Map(token))
	if res.Error != nil {
		token.ConcurrencyToken = previous
		return errors.Wrap(res.Error, "tokens: update failed")
	}
	if res.RowsAffected == 0 {
		token.ConcurrencyToken = previous
		return model.ConcurrencyErrorFmt("token was concurrently modified or deleted")
	}
	return nil
}

// Delete removes the token in a conditional delete matching both id and
// concurrency token. Token deletion has no further cascade.
func (s *TokenStore[K]) Delete(ctx context.Context, token *model.Token[K]) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	res := s.db.WithContext(ctx).Where(
		"id = ? AND concurrency_token = ?", token.ID, token.ConcurrencyToken,
	).Delete(&model.Token[K]{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "tokens: delete failed")
	}
	if res.RowsAffected == 0 {
		return model.ConcurrencyErrorFmt("token was concurrently modified or deleted")
	}
	return nil
}

// Prune removes up to pruneBatchSize tokens created before the threshold
// that are no longer useful: tokens that are neither inactive nor valid,
// tokens whose owning authorization is no longer valid, and expired
// tokens. Returns the number of rows removed; invoke repeatedly until it
// reports zero.
func (s *TokenStore[K]) Prune(ctx context.Context, before time.Time) (int64, error) {
	tokenTable := model.TokensTable
	appTable := model.ApplicationsTable
	authTable := model.AuthorizationsTable
	var pruned int64
	err := s.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			var ids []K
			err := tx.Model(&model.Token[K]{}).
				Joins("LEFT JOIN "+appTable+" ON "+appTable+".id = "+tokenTable+".application_id").
				Joins("LEFT JOIN "+authTable+" ON "+authTable+".id = "+tokenTable+".authorization_id").
				Where(tokenTable+".creation_date < ?", before).
				Where(
					"("+tokenTable+".status NOT IN ? OR ("+authTable+".id IS NOT NULL AND "+authTable+".status <> ?) OR "+tokenTable+".expiration_date < ?)",
					[]string{model.StatusInactive, model.StatusValid},
					model.StatusValid,
					time.Now().UTC(),
				).
				Distinct().
				Limit(pruneBatchSize).
				Pluck(tokenTable+".id", &ids).Error
			if err != nil {
				return errors.Wrap(err, "tokens: prune query failed")
			}
			if len(ids) == 0 {
				return nil
			}
			res := tx.Where("id IN ?", ids).Delete(&model.Token[K]{})
			if res.Error != nil {
				return errors.Wrap(res.Error, "tokens: prune failed")
			}
			pruned = res.RowsAffected
			return nil
		},
	)
	return pruned, err
}

// ID returns the token's identifier in its string representation.
func (s *TokenStore[K]) ID(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	id, _ := s.conv.ToString(token.ID)
	return id, nil
}

// SetID assigns the token's identifier from its string representation.
func (s *TokenStore[K]) SetID(token *model.Token[K], id string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	key, err := s.conv.FromString(id)
	if err != nil {
		return errors.Wrap(err, "tokens: invalid id")
	}
	token.ID = key
	return nil
}

// ApplicationID returns the owning application's identifier, empty when
// the token is not attached to an application.
func (s *TokenStore[K]) ApplicationID(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	if token.ApplicationID == nil {
		return "", nil
	}
	id, _ := s.conv.ToString(*token.ApplicationID)
	return id, nil
}

// SetApplicationID assigns the owning application's identifier. An empty
// value detaches the token from its application.
func (s *TokenStore[K]) SetApplicationID(token *model.Token[K], applicationID string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	if applicationID == "" {
		token.ApplicationID = nil
		return nil
	}
	key, err := s.conv.FromString(applicationID)
	if err != nil {
		return errors.Wrap(err, "tokens: invalid application id")
	}
	token.ApplicationID = &key
	return nil
}

// AuthorizationID returns the owning authorization's identifier, empty
// when the token is not attached to an authorization.
func (s *TokenStore[K]) AuthorizationID(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	if token.AuthorizationID == nil {
		return "", nil
	}
	id, _ := s.conv.ToString(*token.AuthorizationID)
	return id, nil
}

// SetAuthorizationID assigns the owning authorization's identifier. An
// empty value detaches the token from its authorization.
func (s *TokenStore[K]) SetAuthorizationID(token *model.Token[K], authorizationID string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	if authorizationID == "" {
		token.AuthorizationID = nil
		return nil
	}
	key, err := s.conv.FromString(authorizationID)
	if err != nil {
		return errors.Wrap(err, "tokens: invalid authorization id")
	}
	token.AuthorizationID = &key
	return nil
}

// CreationDate returns the creation timestamp.
func (s *TokenStore[K]) CreationDate(token *model.Token[K]) (*time.Time, error) {
	if token == nil {
		return nil, model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.CreationDate, nil
}

// SetCreationDate assigns the creation timestamp.
func (s *TokenStore[K]) SetCreationDate(token *model.Token[K], date *time.Time) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.CreationDate = date
	return nil
}

// ExpirationDate returns the expiration timestamp.
func (s *TokenStore[K]) ExpirationDate(token *model.Token[K]) (*time.Time, error) {
	if token == nil {
		return nil, model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.ExpirationDate, nil
}

// SetExpirationDate assigns the expiration timestamp.
func (s *TokenStore[K]) SetExpirationDate(token *model.Token[K], date *time.Time) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.ExpirationDate = date
	return nil
}

// RedemptionDate returns the redemption timestamp.
func (s *TokenStore[K]) RedemptionDate(token *model.Token[K]) (*time.Time, error) {
	if token == nil {
		return nil, model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.RedemptionDate, nil
}

// SetRedemptionDate assigns the redemption timestamp.
func (s *TokenStore[K]) SetRedemptionDate(token *model.Token[K], date *time.Time) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.RedemptionDate = date
	return nil
}

// Payload returns the token payload.
func (s *TokenStore[K]) Payload(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.Payload, nil
}

// SetPayload assigns the token payload.
func (s *TokenStore[K]) SetPayload(token *model.Token[K], payload string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.Payload = payload
	return nil
}

// Properties returns the opaque token properties. All entries are
// retained, including explicit nulls and empty strings.
func (s *TokenStore[K]) Properties(token *model.Token[K]) (map[string]json.RawMessage, error) {
	if token == nil {
		return nil, model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return s.codec.decodeRawMap(nsTokenProperties, token.Properties)
}

// SetProperties assigns the opaque token properties. An empty map clears
// the column.
func (s *TokenStore[K]) SetProperties(token *model.Token[K], properties map[string]json.RawMessage) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	text, err := encodeRawMap(properties)
	if err != nil {
		return err
	}
	token.Properties = text
	return nil
}

// ReferenceID returns the reference identifier.
func (s *TokenStore[K]) ReferenceID(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.ReferenceID, nil
}

// SetReferenceID assigns the reference identifier.
func (s *TokenStore[K]) SetReferenceID(token *model.Token[K], referenceID string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.ReferenceID = referenceID
	return nil
}

// Status returns the token status.
func (s *TokenStore[K]) Status(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.Status, nil
}

// SetStatus assigns the token status.
func (s *TokenStore[K]) SetStatus(token *model.Token[K], status string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.Status = status
	return nil
}

// Subject returns the subject.
func (s *TokenStore[K]) Subject(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.Subject, nil
}

// SetSubject assigns the subject.
func (s *TokenStore[K]) SetSubject(token *model.Token[K], subject string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.Subject = subject
	return nil
}

// Type returns the token type.
func (s *TokenStore[K]) Type(token *model.Token[K]) (string, error) {
	if token == nil {
		return "", model.InvalidArgumentErrorFmt("token must not be nil")
	}
	return token.Type, nil
}

// SetType assigns the token type.
func (s *TokenStore[K]) SetType(token *model.Token[K], tokenType string) error {
	if token == nil {
		return model.InvalidArgumentErrorFmt("token must not be nil")
	}
	token.Type = tokenType
	return nil
}
