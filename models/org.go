package models

// OrgID identifies the tenant that owns a row. Every persistent entity except
// OAuthClient is scoped by it, and every query must filter on it.
type OrgID string

func (o OrgID) String() string {
	return string(o)
}
