package model

// Scope represents an OAuth2 scope definition, including its localized
// display names and descriptions and the resources it covers.
type Scope[K comparable] struct {
	ID K `gorm:"primaryKey" structs:"-" json:"id"`

	Name        string `gorm:"index" structs:"name" json:"name"`
	DisplayName string `structs:"display_name" json:"display_name"`
	Description string `structs:"description" json:"description"`

	ConcurrencyToken string `structs:"concurrency_token" json:"-"`

	DisplayNames *string `gorm:"type:text" structs:"display_names" json:"display_names,omitempty"`
	Descriptions *string `gorm:"type:text" structs:"descriptions" json:"descriptions,omitempty"`
	Resources    *string `gorm:"type:text" structs:"resources" json:"resources,omitempty"`
	Properties   *string `gorm:"type:text" structs:"properties" json:"properties,omitempty"`
}

// TableName implements the gorm table name interface
func (Scope[K]) TableName() string {
	return ScopesTable
}
