package model

import (
	"time"
)

// Authorization represents a consent grant given by a subject to a client
// application. ApplicationID is a nullable reference to the owning
// Application; it is not database-enforced, referential cleanup is done by
// the application store's cascading delete.
type Authorization[K comparable] struct {
	ID K `gorm:"primaryKey" structs:"-" json:"id"`

	Subject string `gorm:"index" structs:"subject" json:"subject"`
	Status  string `gorm:"index" structs:"status" json:"status"`
	Type    string `structs:"type" json:"type"`

	CreationDate *time.Time `structs:"creation_date" json:"creation_date,omitempty"`

	ConcurrencyToken string `structs:"concurrency_token" json:"-"`

	Scopes     *string `gorm:"type:text" structs:"scopes" json:"scopes,omitempty"`
	Properties *string `gorm:"type:text" structs:"properties" json:"properties,omitempty"`

	ApplicationID *K `gorm:"index" structs:"application_id" json:"application_id,omitempty"`
}

// TableName implements the gorm table name interface
func (Authorization[K]) TableName() string {
	return AuthorizationsTable
}
