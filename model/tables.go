package model

// Table names are caller-configurable but fixed at schema-design time:
// override them once before connecting and migrating, never at runtime.
var (
	ApplicationsTable   = "applications"
	AuthorizationsTable = "authorizations"
	ScopesTable         = "scopes"
	TokensTable         = "tokens"
)

// Statuses assigned to authorizations and tokens by the consuming
// framework. The store only interprets StatusValid and StatusInactive
// (for pruning); the rest are stored verbatim.
const (
	StatusInactive = "inactive"
	StatusRedeemed = "redeemed"
	StatusRejected = "rejected"
	StatusRevoked  = "revoked"
	StatusValid    = "valid"
)

// Authorization types.
const (
	AuthorizationTypeAdHoc     = "ad-hoc"
	AuthorizationTypePermanent = "permanent"
)
