package model

import (
	"time"
)

// Token represents an issued token (access, refresh, authorization code,
// device code, ...). ApplicationID and AuthorizationID are nullable
// references cleaned up by the owning stores' cascading deletes.
type Token[K comparable] struct {
	ID K `gorm:"primaryKey" structs:"-" json:"id"`

	Subject     string `gorm:"index" structs:"subject" json:"subject"`
	Status      string `gorm:"index" structs:"status" json:"status"`
	Type        string `structs:"type" json:"type"`
	ReferenceID string `gorm:"index" structs:"reference_id" json:"reference_id"`
	Payload     string `gorm:"type:text" structs:"payload" json:"-"`

	CreationDate   *time.Time `structs:"creation_date" json:"creation_date,omitempty"`
	ExpirationDate *time.Time `structs:"expiration_date" json:"expiration_date,omitempty"`
	RedemptionDate *time.Time `structs:"redemption_date" json:"redemption_date,omitempty"`

	ConcurrencyToken string `structs:"concurrency_token" json:"-"`

	Properties *string `gorm:"type:text" structs:"properties" json:"properties,omitempty"`

	ApplicationID   *K `gorm:"index" structs:"application_id" json:"application_id,omitempty"`
	AuthorizationID *K `gorm:"index" structs:"authorization_id" json:"authorization_id,omitempty"`
}

// TableName implements the gorm table name interface
func (Token[K]) TableName() string {
	return TokensTable
}
