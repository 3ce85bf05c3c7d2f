package model

// Application represents an OAuth2/OIDC client application.
//
// Collection-valued attributes (permissions, redirect URIs, display names,
// properties, settings) are denormalized into JSON text columns; the text
// is the source of truth and decoded representations are derived on read.
// A nil pointer means the column is NULL, i.e. the collection is empty.
//
// The primary-key type K is chosen once per deployment (string, integer,
// or UUID).
type Application[K comparable] struct {
	ID K `gorm:"primaryKey" structs:"-" json:"id"`

	ClientID        string `gorm:"index" structs:"client_id" json:"client_id"`
	ClientSecret    string `structs:"client_secret" json:"-"`
	ClientType      string `structs:"client_type" json:"client_type"`
	ApplicationType string `structs:"application_type" json:"application_type"`
	ConsentType     string `structs:"consent_type" json:"consent_type"`
	DisplayName     string `structs:"display_name" json:"display_name"`

	// ConcurrencyToken is regenerated on every successful update and
	// checked on update and delete (optimistic locking).
	ConcurrencyToken string `structs:"concurrency_token" json:"-"`

	DisplayNames           *string `gorm:"type:text" structs:"display_names" json:"display_names,omitempty"`
	Permissions            *string `gorm:"type:text" structs:"permissions" json:"permissions,omitempty"`
	RedirectURIs           *string `gorm:"type:text" structs:"redirect_uris" json:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs *string `gorm:"type:text" structs:"post_logout_redirect_uris" json:"post_logout_redirect_uris,omitempty"`
	Requirements           *string `gorm:"type:text" structs:"requirements" json:"requirements,omitempty"`
	Properties             *string `gorm:"type:text" structs:"properties" json:"properties,omitempty"`
	Settings               *string `gorm:"type:text" structs:"settings" json:"settings,omitempty"`
	JSONWebKeySet          *string `gorm:"column:json_web_key_set;type:text" structs:"json_web_key_set" json:"json_web_key_set,omitempty"`
}

// TableName implements the gorm table name interface
func (Application[K]) TableName() string {
	return ApplicationsTable
}
